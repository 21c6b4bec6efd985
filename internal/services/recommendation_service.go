package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/internal/models"
	appErrors "github.com/bsudfrance/bsf-server/pkg/errors"
	"github.com/bsudfrance/bsf-server/pkg/logger"
	"github.com/bsudfrance/bsf-server/pkg/mail"
	"github.com/bsudfrance/bsf-server/pkg/metrics"
)

// DefaultFollowupDelay is the delay before a SENT recommendation is due for a
// follow-up reminder.
const DefaultFollowupDelay = 14 * 24 * time.Hour

// Audit actions recorded by the recommendation service.
const (
	auditRecommendationCreated       = "RECOMMENDATION_CREATED"
	auditRecommendationStatusChanged = "RECOMMENDATION_STATUS_CHANGED"
)

// RecommendationOption customises RecommendationService behaviour.
type RecommendationOption func(*RecommendationService)

// WithRecommendationClock injects a custom clock primarily for testing.
func WithRecommendationClock(clock func() time.Time) RecommendationOption {
	return func(s *RecommendationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithRecommendationMailer wires best-effort notification email.
func WithRecommendationMailer(mailer mail.Mailer) RecommendationOption {
	return func(s *RecommendationService) {
		s.mailer = mailer
	}
}

// RecommendationService manages the referral ledger: creation, status
// transitions with history, and revenue capture on validation.
type RecommendationService struct {
	db     *gorm.DB
	audit  *AuditService
	mailer mail.Mailer
	now    func() time.Time
}

// NewRecommendationService constructs a RecommendationService.
func NewRecommendationService(db *gorm.DB, audit *AuditService, opts ...RecommendationOption) (*RecommendationService, error) {
	if db == nil {
		return nil, errors.New("recommendation service: db is required")
	}

	service := &RecommendationService{
		db:    db,
		audit: audit,
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// CreateRecommendationInput carries the fields of a new referral.
type CreateRecommendationInput struct {
	RecipientMemberID string  `json:"recipient_member_id" validate:"required,uuid"`
	ContactFirstname  string  `json:"contact_firstname" validate:"required"`
	ContactLastname   string  `json:"contact_lastname" validate:"required"`
	ContactCompany    *string `json:"contact_company" validate:"omitempty,max=200"`
	ContactEmail      *string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone      *string `json:"contact_phone" validate:"omitempty,max=40"`
	Text              string  `json:"text" validate:"required"`
}

// Create opens a referral in SENT state, records the implicit initial
// transition and schedules the follow-up reminder.
func (s *RecommendationService) Create(ctx context.Context, actor *models.User, input CreateRecommendationInput) (*models.Recommendation, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	var recipient models.Member
	err := s.db.WithContext(ctx).Take(&recipient, "id = ?", input.RecipientMemberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrMissingMember
	}
	if err != nil {
		return nil, fmt.Errorf("recommendation service: find recipient: %w", err)
	}

	now := s.now()
	due := now.Add(DefaultFollowupDelay)
	recommendation := &models.Recommendation{
		SenderUserID:      actor.ID,
		RecipientMemberID: recipient.ID,
		ContactFirstname:  input.ContactFirstname,
		ContactLastname:   input.ContactLastname,
		ContactCompany:    optionalString(input.ContactCompany),
		ContactEmail:      optionalString(input.ContactEmail),
		ContactPhone:      optionalString(input.ContactPhone),
		Text:              input.Text,
		Status:            models.RecommendationSent,
		StatusUpdatedAt:   &now,
		FollowupDueAt:     &due,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(recommendation).Error; err != nil {
			return fmt.Errorf("create recommendation: %w", err)
		}
		history := models.RecommendationStatusHistory{
			RecommendationID: recommendation.ID,
			OldStatus:        models.RecommendationSent,
			NewStatus:        models.RecommendationSent,
			ChangedByUserID:  actor.ID,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("record initial status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recommendation service: create: %w", err)
	}
	recommendation.Recipient = &recipient

	s.notifyRecipient(ctx, recommendation)

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &actor.ID,
			Action:      auditRecommendationCreated,
			Metadata: map[string]any{
				"recommendation_id": recommendation.ID,
				"recipient_member":  recipient.ID,
			},
		})
	}

	return recommendation, nil
}

// UpdateStatusInput carries a status transition. Revenue fields are only
// honoured when the new status is VALIDATED.
type UpdateStatusInput struct {
	Status          string   `json:"status" validate:"required,oneof=SENT IN_PROGRESS VALIDATED ABANDONED"`
	RevenueAmount   *float64 `json:"revenue_amount" validate:"omitempty,min=0"`
	RevenueCurrency *string  `json:"revenue_currency" validate:"omitempty,iso4217"`
}

// UpdateStatus moves a referral to a new status. Any transition within the
// enum is allowed; only the sender or an admin may perform it. Moving away
// from VALIDATED clears the stored revenue.
func (s *RecommendationService) UpdateStatus(ctx context.Context, actor *models.User, recommendationID string, input UpdateStatusInput) (*models.Recommendation, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !models.ValidRecommendationStatus(input.Status) {
		return nil, appErrors.NewBadRequest("unknown recommendation status")
	}

	recommendation, err := s.find(ctx, recommendationID)
	if err != nil {
		return nil, err
	}
	if recommendation.SenderUserID != actor.ID && !actor.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}

	now := s.now()
	oldStatus := recommendation.Status

	updates := map[string]any{
		"status":            input.Status,
		"status_updated_at": now,
	}
	if input.Status == models.RecommendationValidated {
		updates["revenue_amount"] = input.RevenueAmount
		updates["revenue_currency"] = optionalString(input.RevenueCurrency)
	} else {
		updates["revenue_amount"] = nil
		updates["revenue_currency"] = nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Recommendation{}).
			Where("id = ?", recommendation.ID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		history := models.RecommendationStatusHistory{
			RecommendationID: recommendation.ID,
			OldStatus:        oldStatus,
			NewStatus:        input.Status,
			ChangedByUserID:  actor.ID,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("record transition: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recommendation service: update status: %w", err)
	}

	recommendation.Status = input.Status
	recommendation.StatusUpdatedAt = &now
	if input.Status == models.RecommendationValidated {
		recommendation.RevenueAmount = input.RevenueAmount
		recommendation.RevenueCurrency = optionalString(input.RevenueCurrency)
	} else {
		recommendation.RevenueAmount = nil
		recommendation.RevenueCurrency = nil
	}

	if actor.ID != recommendation.SenderUserID {
		s.notifySender(ctx, recommendation, oldStatus)
	}

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &actor.ID,
			Action:      auditRecommendationStatusChanged,
			Metadata: map[string]any{
				"recommendation_id": recommendation.ID,
				"old_status":        oldStatus,
				"new_status":        input.Status,
			},
		})
	}

	return recommendation, nil
}

// RecommendationFilters narrow List results.
type RecommendationFilters struct {
	Status string
}

// List returns the referrals visible to the user: the ones they sent plus the
// ones addressed to their member profile. Admins see everything.
func (s *RecommendationService) List(ctx context.Context, user *models.User, filters RecommendationFilters) ([]models.Recommendation, error) {
	ctx = ensureContext(ctx)
	if user == nil {
		return nil, appErrors.ErrUnauthorized
	}

	query := s.db.WithContext(ctx).
		Model(&models.Recommendation{}).
		Preload("Sender").
		Preload("Recipient")

	if !user.IsAdmin() {
		memberID := ""
		if user.MemberID != nil {
			memberID = *user.MemberID
		}
		query = query.Where("sender_user_id = ? OR recipient_member_id = ?", user.ID, memberID)
	}
	if filters.Status != "" {
		if !models.ValidRecommendationStatus(filters.Status) {
			return nil, appErrors.NewBadRequest("unknown recommendation status")
		}
		query = query.Where("status = ?", filters.Status)
	}

	var recommendations []models.Recommendation
	if err := query.Order("created_at DESC").Find(&recommendations).Error; err != nil {
		return nil, fmt.Errorf("recommendation service: list: %w", err)
	}
	return recommendations, nil
}

// History returns the full transition trail, oldest first. Visible to the
// sender, the recipient and admins.
func (s *RecommendationService) History(ctx context.Context, user *models.User, recommendationID string) ([]models.RecommendationStatusHistory, error) {
	ctx = ensureContext(ctx)
	if user == nil {
		return nil, appErrors.ErrUnauthorized
	}

	recommendation, err := s.find(ctx, recommendationID)
	if err != nil {
		return nil, err
	}
	if !s.canView(recommendation, user) {
		return nil, appErrors.ErrForbidden
	}

	var history []models.RecommendationStatusHistory
	if err := s.db.WithContext(ctx).
		Where("recommendation_id = ?", recommendation.ID).
		Order("created_at ASC").
		Find(&history).Error; err != nil {
		return nil, fmt.Errorf("recommendation service: load history: %w", err)
	}
	return history, nil
}

// Get returns a single referral with its parties, subject to the same
// visibility rule as History.
func (s *RecommendationService) Get(ctx context.Context, user *models.User, recommendationID string) (*models.Recommendation, error) {
	ctx = ensureContext(ctx)
	if user == nil {
		return nil, appErrors.ErrUnauthorized
	}

	var recommendation models.Recommendation
	err := s.db.WithContext(ctx).
		Preload("Sender").
		Preload("Recipient").
		Take(&recommendation, "id = ?", recommendationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recommendation service: find: %w", err)
	}

	if !s.canView(&recommendation, user) {
		return nil, appErrors.ErrForbidden
	}
	return &recommendation, nil
}

func (s *RecommendationService) find(ctx context.Context, id string) (*models.Recommendation, error) {
	var recommendation models.Recommendation
	err := s.db.WithContext(ctx).Take(&recommendation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recommendation service: find: %w", err)
	}
	return &recommendation, nil
}

func (s *RecommendationService) canView(recommendation *models.Recommendation, user *models.User) bool {
	if user.IsAdmin() || recommendation.SenderUserID == user.ID {
		return true
	}
	return user.MemberID != nil && *user.MemberID == recommendation.RecipientMemberID
}

func (s *RecommendationService) notifyRecipient(ctx context.Context, recommendation *models.Recommendation) {
	if s.mailer == nil || recommendation.Recipient == nil || recommendation.Recipient.Email == nil {
		return
	}

	msg := mail.Message{
		To:      []string{*recommendation.Recipient.Email},
		Subject: "Nouvelle recommandation reçue",
		Text: fmt.Sprintf(
			"Bonjour %s,\n\nVous avez reçu une nouvelle recommandation concernant %s %s.\n\nBusiness Sud de France",
			recommendation.Recipient.FullName(),
			recommendation.ContactFirstname, recommendation.ContactLastname,
		),
	}
	s.send(ctx, msg)
}

func (s *RecommendationService) notifySender(ctx context.Context, recommendation *models.Recommendation, oldStatus string) {
	if s.mailer == nil {
		return
	}

	var sender models.User
	if err := s.db.WithContext(ctx).Take(&sender, "id = ?", recommendation.SenderUserID).Error; err != nil {
		logger.WithModule("recommendations").Warn("load sender for notice", zap.Error(err))
		return
	}
	if sender.AuthEmail == "" {
		return
	}

	msg := mail.Message{
		To:      []string{sender.AuthEmail},
		Subject: "Mise à jour de votre recommandation",
		Text: fmt.Sprintf(
			"Bonjour,\n\nVotre recommandation pour %s %s est passée de %s à %s.\n\nBusiness Sud de France",
			recommendation.ContactFirstname, recommendation.ContactLastname,
			oldStatus, recommendation.Status,
		),
	}
	s.send(ctx, msg)
}

func (s *RecommendationService) send(ctx context.Context, msg mail.Message) {
	err := s.mailer.Send(ctx, msg)
	switch {
	case errors.Is(err, mail.ErrSMTPDisabled):
	case err != nil:
		metrics.EmailsSent.WithLabelValues("failure").Inc()
		logger.WithModule("recommendations").Warn("send notice", zap.Error(err))
	default:
		metrics.EmailsSent.WithLabelValues("success").Inc()
	}
}
