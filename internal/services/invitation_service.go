package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/internal/models"
	"github.com/bsudfrance/bsf-server/pkg/crypto"
	appErrors "github.com/bsudfrance/bsf-server/pkg/errors"
	"github.com/bsudfrance/bsf-server/pkg/logger"
	"github.com/bsudfrance/bsf-server/pkg/mail"
	"github.com/bsudfrance/bsf-server/pkg/metrics"
)

// DefaultInvitationTTL is how long an invitation token stays redeemable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Audit actions recorded by the invitation service.
const (
	auditInvitationIssued   = "INVITATION_ISSUED"
	auditInvitationResent   = "INVITATION_RESENT"
	auditInvitationAccepted = "INVITATION_ACCEPTED"
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithInvitationTTL overrides the redemption window.
func WithInvitationTTL(ttl time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithInvitationMailer wires outbound invitation email. Delivery is
// best-effort: a send failure never rolls back the invitation row.
func WithInvitationMailer(mailer mail.Mailer, baseURL string) InvitationOption {
	return func(s *InvitationService) {
		s.mailer = mailer
		s.baseURL = baseURL
	}
}

// InvitationService manages the invitation lifecycle: issue, resend
// (supersede), validate and accept.
type InvitationService struct {
	db      *gorm.DB
	audit   *AuditService
	mailer  mail.Mailer
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(db *gorm.DB, audit *AuditService, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}

	service := &InvitationService{
		db:    db,
		audit: audit,
		ttl:   DefaultInvitationTTL,
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// IssueInvitationInput captures the fields required to issue an invitation.
// MemberID may be left empty; linking happens before acceptance and a
// member-less token fails validation with MISSING_MEMBER.
type IssueInvitationInput struct {
	Email    string  `json:"email" validate:"required,email"`
	MemberID *string `json:"member_id" validate:"omitempty,uuid"`
	Role     string  `json:"role" validate:"omitempty,oneof=SUPER_ADMIN ADMIN USER"`
}

// Issue creates a new pending invitation and returns it with the raw token.
// The raw token appears only here and in the delivery email; the row stores a
// hash. No account-existence check happens at issue time: a collision with an
// existing account surfaces when the token is validated or accepted.
func (s *InvitationService) Issue(ctx context.Context, actor *models.User, input IssueInvitationInput) (*models.Invitation, string, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, "", appErrors.ErrUnauthorized
	}

	role := input.Role
	if role == "" {
		role = models.RoleUser
	}
	if !models.ValidRole(role) {
		return nil, "", appErrors.NewBadRequest("unknown role")
	}
	if role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, "", appErrors.ErrForbidden
	}

	email := normaliseEmail(input.Email)

	memberID := input.MemberID
	if memberID != nil && *memberID == "" {
		memberID = nil
	}

	// The member link is optional and only personalises the email; a stale
	// or missing id does not block issuance.
	var member *models.Member
	if memberID != nil {
		var found models.Member
		err := s.db.WithContext(ctx).Take(&found, "id = ?", *memberID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", fmt.Errorf("invitation service: find member: %w", err)
		}
		if err == nil {
			member = &found
		}
	}

	token, err := crypto.GenerateToken(crypto.DefaultTokenLength)
	if err != nil {
		return nil, "", fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now()
	invitation := &models.Invitation{
		Email:       email,
		MemberID:    memberID,
		Role:        role,
		TokenHash:   crypto.HashToken(token),
		InvitedByID: &actor.ID,
		SentAt:      now,
		ExpireAt:    now.Add(s.ttl),
	}

	if err := s.db.WithContext(ctx).Create(invitation).Error; err != nil {
		return nil, "", fmt.Errorf("invitation service: create invitation: %w", err)
	}
	invitation.Member = member

	metrics.InvitationsIssued.Inc()
	s.deliver(ctx, invitation, token)

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &actor.ID,
			Action:      auditInvitationIssued,
			Metadata:    map[string]any{"email": email, "role": role, "invitation_id": invitation.ID},
		})
	}

	return invitation, token, nil
}

// Resend supersedes a pending invitation: the old row is force-expired and a
// fresh row with a new token is inserted, both inside one transaction.
func (s *InvitationService) Resend(ctx context.Context, actor *models.User, invitationID string) (*models.Invitation, string, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, "", appErrors.ErrUnauthorized
	}

	var old models.Invitation
	err := s.db.WithContext(ctx).Preload("Member").Take(&old, "id = ?", invitationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", appErrors.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("invitation service: find invitation: %w", err)
	}

	if old.Role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, "", appErrors.ErrForbidden
	}
	if old.AcceptedAt != nil {
		return nil, "", appErrors.ErrAlreadyAccepted
	}

	token, err := crypto.GenerateToken(crypto.DefaultTokenLength)
	if err != nil {
		return nil, "", fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now()
	fresh := &models.Invitation{
		Email:       old.Email,
		MemberID:    old.MemberID,
		Role:        old.Role,
		TokenHash:   crypto.HashToken(token),
		InvitedByID: &actor.ID,
		SentAt:      now,
		ExpireAt:    now.Add(s.ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Invitation{}).
			Where("id = ?", old.ID).
			Update("expire_at", now).Error; err != nil {
			return fmt.Errorf("expire superseded invitation: %w", err)
		}
		if err := tx.Create(fresh).Error; err != nil {
			return fmt.Errorf("create invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("invitation service: resend: %w", err)
	}
	fresh.Member = old.Member

	metrics.InvitationsIssued.Inc()
	s.deliver(ctx, fresh, token)

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &actor.ID,
			Action:      auditInvitationResent,
			Metadata:    map[string]any{"email": fresh.Email, "superseded_id": old.ID, "invitation_id": fresh.ID},
		})
	}

	return fresh, token, nil
}

// Validate checks a raw token without consuming it, so the activation page
// can show a meaningful state before asking for a password.
func (s *InvitationService) Validate(ctx context.Context, token string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	invitation, err := s.lookup(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	return invitation, nil
}

// Accept consumes a redeemable invitation: it creates the account and marks
// the invitation accepted inside one transaction.
func (s *InvitationService) Accept(ctx context.Context, token, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("invitation service: hash password: %w", err)
	}

	now := s.now()
	var user *models.User

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invitation, err := s.lookup(ctx, tx, token)
		if err != nil {
			return err
		}

		user = &models.User{
			AuthEmail:       invitation.Email,
			Role:            invitation.Role,
			PasswordHash:    hash,
			MemberID:        invitation.MemberID,
			IsActive:        true,
			EmailVerifiedAt: &now,
		}
		if err := tx.Create(user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return appErrors.ErrAccountExists
			}
			return fmt.Errorf("create user: %w", err)
		}

		if err := tx.Model(&models.Invitation{}).
			Where("id = ?", invitation.ID).
			Update("accepted_at", now).Error; err != nil {
			return fmt.Errorf("mark accepted: %w", err)
		}
		return nil
	})
	if err != nil {
		if appErr := (*appErrors.AppError)(nil); errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("invitation service: accept: %w", err)
	}

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &user.ID,
			Action:      auditInvitationAccepted,
			Metadata:    map[string]any{"email": user.AuthEmail},
		})
	}

	return user, nil
}

// lookup resolves a raw token to its invitation and reports the same errors
// for Validate and Accept.
func (s *InvitationService) lookup(ctx context.Context, tx *gorm.DB, token string) (*models.Invitation, error) {
	if token == "" {
		return nil, appErrors.ErrInvalidToken
	}

	var invitation models.Invitation
	err := tx.WithContext(ctx).
		Preload("Member").
		Where("token_hash = ?", crypto.HashToken(token)).
		Take(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: find invitation: %w", err)
	}

	now := s.now()
	if invitation.AcceptedAt != nil {
		return nil, appErrors.ErrAlreadyAccepted
	}
	if !invitation.ExpireAt.After(now) {
		return nil, appErrors.ErrInvalidToken
	}
	if invitation.MemberID == nil || invitation.Member == nil {
		return nil, appErrors.ErrMissingMember
	}

	// One account per member: the token is dead once the email or the
	// linked member already belongs to a user.
	var existing int64
	if err := tx.WithContext(ctx).
		Model(&models.User{}).
		Where("auth_email = ? OR member_id = ?", invitation.Email, *invitation.MemberID).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("invitation service: check account: %w", err)
	}
	if existing > 0 {
		return nil, appErrors.ErrAccountExists
	}

	return &invitation, nil
}

// InvitationFilters narrow List results.
type InvitationFilters struct {
	Status string // PENDING, ACCEPTED or EXPIRED; empty means all
	Email  string
}

// List returns invitations newest first with their derived status computed
// against the service clock.
func (s *InvitationService) List(ctx context.Context, filters InvitationFilters) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	query := s.db.WithContext(ctx).Model(&models.Invitation{}).Preload("Member")
	if filters.Email != "" {
		query = query.Where("email = ?", normaliseEmail(filters.Email))
	}
	switch filters.Status {
	case models.InvitationAccepted:
		query = query.Where("accepted_at IS NOT NULL")
	case models.InvitationPending:
		query = query.Where("accepted_at IS NULL AND expire_at > ?", now)
	case models.InvitationExpired:
		query = query.Where("accepted_at IS NULL AND expire_at <= ?", now)
	case "":
	default:
		return nil, appErrors.NewBadRequest("unknown invitation status")
	}

	var invitations []models.Invitation
	if err := query.Order("sent_at DESC").Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list invitations: %w", err)
	}
	return invitations, nil
}

// PurgeExpired deletes unaccepted invitations whose expiry is older than the
// retention window. Accepted rows are kept as history.
func (s *InvitationService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	ctx = ensureContext(ctx)
	cutoff := s.now().Add(-retention)

	result := s.db.WithContext(ctx).
		Where("accepted_at IS NULL AND expire_at < ?", cutoff).
		Delete(&models.Invitation{})
	if result.Error != nil {
		return 0, fmt.Errorf("invitation service: purge expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *InvitationService) deliver(ctx context.Context, invitation *models.Invitation, token string) {
	if s.mailer == nil {
		return
	}

	link := fmt.Sprintf("%s/invitations/accept?token=%s", s.baseURL, token)
	name := invitation.Email
	if invitation.Member != nil {
		name = invitation.Member.FullName()
	}
	msg := mail.Message{
		To:      []string{invitation.Email},
		Subject: "Votre invitation Business Sud de France",
		Text: fmt.Sprintf(
			"Bonjour %s,\n\nVous êtes invité(e) à rejoindre Business Sud de France.\nActivez votre compte : %s\n\nCe lien expire le %s.",
			name, link, invitation.ExpireAt.Format("02/01/2006"),
		),
	}

	err := s.mailer.Send(ctx, msg)
	switch {
	case errors.Is(err, mail.ErrSMTPDisabled):
	case err != nil:
		metrics.EmailsSent.WithLabelValues("failure").Inc()
		logger.WithModule("invitations").Warn("send invitation email",
			zap.String("email", invitation.Email), zap.Error(err))
	default:
		metrics.EmailsSent.WithLabelValues("success").Inc()
	}
}
