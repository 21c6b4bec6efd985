package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/internal/models"
	"github.com/bsudfrance/bsf-server/pkg/crypto"
	appErrors "github.com/bsudfrance/bsf-server/pkg/errors"
	"github.com/bsudfrance/bsf-server/pkg/logger"
	"github.com/bsudfrance/bsf-server/pkg/metrics"
)

// Lockout policy applied to repeated failed logins.
const (
	DefaultMaxFailedLogins = 5
	DefaultLockDuration    = 15 * time.Minute
)

// Audit actions recorded by the user service.
const (
	auditUserLoggedIn    = "USER_LOGGED_IN"
	auditUserActivated   = "USER_ACTIVATED"
	auditUserDeactivated = "USER_DEACTIVATED"
)

// SessionRevoker revokes every live session of a user. Satisfied by
// auth.SessionService; injected so deactivation can cut access immediately.
type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID string) error
}

// UserOption customises UserService behaviour.
type UserOption func(*UserService)

// WithUserClock injects a custom clock primarily for testing.
func WithUserClock(clock func() time.Time) UserOption {
	return func(s *UserService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithLockoutPolicy overrides the failed-login threshold and lock duration.
func WithLockoutPolicy(maxFailed int, lock time.Duration) UserOption {
	return func(s *UserService) {
		if maxFailed > 0 {
			s.maxFailed = maxFailed
		}
		if lock > 0 {
			s.lockFor = lock
		}
	}
}

// WithSessionRevoker wires session revocation into account deactivation.
func WithSessionRevoker(revoker SessionRevoker) UserOption {
	return func(s *UserService) {
		s.revoker = revoker
	}
}

// UserService handles authentication against stored credentials and
// administrative account state changes.
type UserService struct {
	db        *gorm.DB
	audit     *AuditService
	revoker   SessionRevoker
	maxFailed int
	lockFor   time.Duration
	now       func() time.Time
}

// NewUserService constructs a UserService with the provided dependencies.
func NewUserService(db *gorm.DB, audit *AuditService, opts ...UserOption) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}

	service := &UserService{
		db:        db,
		audit:     audit,
		maxFailed: DefaultMaxFailedLogins,
		lockFor:   DefaultLockDuration,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Authenticate verifies credentials and applies the lockout policy. The
// returned errors deliberately do not distinguish unknown email from wrong
// password.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Member").
		Where("auth_email = ?", normaliseEmail(email)).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return nil, appErrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find user: %w", err)
	}

	if user.PasswordHash == "" {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return nil, appErrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return nil, appErrors.ErrAccountDisabled
	}
	if user.Locked(now) {
		metrics.LoginAttempts.WithLabelValues("locked").Inc()
		return nil, appErrors.ErrAccountLocked
	}

	if !crypto.VerifyPassword(user.PasswordHash, password) {
		if err := s.recordFailedLogin(ctx, &user, now); err != nil {
			logger.WithModule("users").Warn("record failed login", zap.Error(err))
		}
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return nil, appErrors.ErrInvalidCredentials
	}

	updates := map[string]any{
		"failed_login_count": 0,
		"locked_until":       nil,
		"last_login_at":      now,
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}
	user.FailedLoginCount = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	metrics.LoginAttempts.WithLabelValues("success").Inc()

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &user.ID,
			Action:      auditUserLoggedIn,
			Metadata:    map[string]any{"email": user.AuthEmail},
		})
	}

	return &user, nil
}

func (s *UserService) recordFailedLogin(ctx context.Context, user *models.User, now time.Time) error {
	updates := map[string]any{
		"failed_login_count": gorm.Expr("failed_login_count + 1"),
	}
	if user.FailedLoginCount+1 >= s.maxFailed {
		updates["locked_until"] = now.Add(s.lockFor)
	}
	return s.db.WithContext(ctx).Model(user).Updates(updates).Error
}

// SetActive activates or deactivates a user account. Self-deactivation is
// rejected, and only a SUPER_ADMIN may act on another SUPER_ADMIN.
func (s *UserService) SetActive(ctx context.Context, actor *models.User, targetID string, active bool) (*models.User, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.ID == targetID {
		return nil, appErrors.ErrSelfActionForbidden
	}

	var target models.User
	err := s.db.WithContext(ctx).Take(&target, "id = ?", targetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find user: %w", err)
	}

	if target.Role == models.RoleSuperAdmin && actor.Role != models.RoleSuperAdmin {
		return nil, appErrors.ErrForbidden
	}

	now := s.now()
	updates := map[string]any{"is_active": active}
	if active {
		updates["deactivated_at"] = nil
		updates["deactivated_by_id"] = nil
	} else {
		updates["deactivated_at"] = now
		updates["deactivated_by_id"] = actor.ID
	}

	if err := s.db.WithContext(ctx).Model(&target).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update active state: %w", err)
	}
	target.IsActive = active

	if !active && s.revoker != nil {
		if err := s.revoker.RevokeUserSessions(ctx, target.ID); err != nil {
			logger.WithModule("users").Warn("revoke sessions on deactivate", zap.Error(err))
		}
	}

	if s.audit != nil {
		action := auditUserDeactivated
		if active {
			action = auditUserActivated
		}
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID:  &actor.ID,
			Action:       action,
			TargetUserID: &target.ID,
			Metadata:     map[string]any{"email": target.AuthEmail},
		})
	}

	return &target, nil
}

// List returns every account with its directory profile.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	ctx = ensureContext(ctx)

	var users []models.User
	if err := s.db.WithContext(ctx).
		Preload("Member").
		Order("created_at ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user service: list users: %w", err)
	}
	return users, nil
}

// OnboardingSteps flags individual checklist items. Nil pointers in a patch
// leave the stored value untouched.
type OnboardingSteps struct {
	Profile        *bool `json:"profile,omitempty"`
	Directory      *bool `json:"directory,omitempty"`
	Recommendation *bool `json:"recommendation,omitempty"`
}

// OnboardingState is the structured onboarding record stored inside the
// user's notification preferences.
type OnboardingState struct {
	Steps       OnboardingSteps `json:"steps"`
	SeenAt      *time.Time      `json:"seen_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type notificationPrefs struct {
	Onboarding *OnboardingState `json:"onboarding,omitempty"`
}

// Onboarding returns the stored onboarding record, or an empty state when the
// user has none yet. Malformed stored JSON is treated as absent.
func (s *UserService) Onboarding(ctx context.Context, userID string) (OnboardingState, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OnboardingState{}, appErrors.ErrNotFound
	}
	if err != nil {
		return OnboardingState{}, fmt.Errorf("user service: find user: %w", err)
	}

	return decodePrefs(user.NotificationPrefs), nil
}

// UpdateOnboarding merges the patch into the stored onboarding record field
// by field and persists the result.
func (s *UserService) UpdateOnboarding(ctx context.Context, userID string, patch OnboardingState) (OnboardingState, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OnboardingState{}, appErrors.ErrNotFound
	}
	if err != nil {
		return OnboardingState{}, fmt.Errorf("user service: find user: %w", err)
	}

	state := decodePrefs(user.NotificationPrefs)
	if patch.Steps.Profile != nil {
		state.Steps.Profile = patch.Steps.Profile
	}
	if patch.Steps.Directory != nil {
		state.Steps.Directory = patch.Steps.Directory
	}
	if patch.Steps.Recommendation != nil {
		state.Steps.Recommendation = patch.Steps.Recommendation
	}
	if patch.SeenAt != nil {
		state.SeenAt = patch.SeenAt
	}
	if patch.CompletedAt != nil {
		state.CompletedAt = patch.CompletedAt
	}

	encoded, err := json.Marshal(notificationPrefs{Onboarding: &state})
	if err != nil {
		return OnboardingState{}, fmt.Errorf("user service: encode prefs: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&user).
		Update("notification_prefs", datatypes.JSON(encoded)).Error; err != nil {
		return OnboardingState{}, fmt.Errorf("user service: update prefs: %w", err)
	}

	return state, nil
}

func decodePrefs(raw datatypes.JSON) OnboardingState {
	if len(raw) == 0 {
		return OnboardingState{}
	}
	var prefs notificationPrefs
	if err := json.Unmarshal(raw, &prefs); err != nil || prefs.Onboarding == nil {
		return OnboardingState{}
	}
	return *prefs.Onboarding
}
