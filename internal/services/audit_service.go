package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/internal/auditctx"
	"github.com/bsudfrance/bsf-server/internal/models"
)

// AuditEntry captures a single privileged action to persist.
type AuditEntry struct {
	ActorUserID  *string
	Action       string
	TargetUserID *string
	Metadata     map[string]any
}

// AuditFilters encapsulates optional filters when querying audit logs.
type AuditFilters struct {
	ActorUserID  string
	Action       string
	TargetUserID string
	Since        *time.Time
	Until        *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService persists and retrieves audit log entries. Entries are never
// updated or deleted by the application.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService using the provided database
// handle, which must be non-nil.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Log stores an audit entry, marshalling metadata into JSON form.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}

	var payload datatypes.JSON
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		payload = datatypes.JSON(encoded)
	}

	log := models.AuditLog{
		Action:   strings.TrimSpace(entry.Action),
		Metadata: payload,
	}

	if info, ok := auditctx.FromContext(ctx); ok {
		log.IPAddress = info.IPAddress
		log.UserAgent = info.UserAgent
	}

	if entry.ActorUserID != nil && strings.TrimSpace(*entry.ActorUserID) != "" {
		id := strings.TrimSpace(*entry.ActorUserID)
		log.ActorUserID = &id
	}
	if entry.TargetUserID != nil && strings.TrimSpace(*entry.TargetUserID) != "" {
		id := strings.TrimSpace(*entry.TargetUserID)
		log.TargetUserID = &id
	}

	return s.db.WithContext(ctx).Create(&log).Error
}

// List returns paginated audit logs ordered by creation time descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.AuditLog
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	if err := query.
		Preload("Actor").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	return results, total, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.ActorUserID != "" {
		query = query.Where("actor_user_id = ?", filters.ActorUserID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.TargetUserID != "" {
		query = query.Where("target_user_id = ?", filters.TargetUserID)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}
