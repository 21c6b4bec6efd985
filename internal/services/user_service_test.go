package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bsudfrance/bsf-server/internal/database/testutil"
	"github.com/bsudfrance/bsf-server/internal/models"
	"github.com/bsudfrance/bsf-server/pkg/crypto"
	appErrors "github.com/bsudfrance/bsf-server/pkg/errors"
)

type recordingRevoker struct {
	userIDs []string
}

func (r *recordingRevoker) RevokeUserSessions(_ context.Context, userID string) error {
	r.userIDs = append(r.userIDs, userID)
	return nil
}

func seedUser(t *testing.T, svc *UserService, email, password, role string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		AuthEmail:    email,
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
	}
	require.NoError(t, svc.db.Create(user).Error)
	return user
}

func newUserService(t *testing.T, opts ...UserOption) *UserService {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	svc, err := NewUserService(db, NewAuditService(db), opts...)
	require.NoError(t, err)
	return svc
}

func TestAuthenticateSuccess(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := newUserService(t, WithUserClock(func() time.Time { return now }))
	seedUser(t, svc, "alice@example.com", "s3cret-pass", models.RoleUser)

	user, err := svc.Authenticate(context.Background(), "Alice@Example.com ", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", user.AuthEmail)
	require.NotNil(t, user.LastLoginAt)
	require.Zero(t, user.FailedLoginCount)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc := newUserService(t)

	_, err := svc.Authenticate(context.Background(), "ghost@example.com", "whatever")
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := newUserService(t)
	seeded := seedUser(t, svc, "bob@example.com", "right-pass", models.RoleUser)

	_, err := svc.Authenticate(context.Background(), "bob@example.com", "wrong-pass")
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	var stored models.User
	require.NoError(t, svc.db.Take(&stored, "id = ?", seeded.ID).Error)
	require.Equal(t, 1, stored.FailedLoginCount)
	require.Nil(t, stored.LockedUntil)
}

func TestAuthenticateLockout(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := newUserService(t, WithUserClock(func() time.Time { return now }))
	seeded := seedUser(t, svc, "carol@example.com", "right-pass", models.RoleUser)

	for i := 0; i < DefaultMaxFailedLogins; i++ {
		_, err := svc.Authenticate(context.Background(), "carol@example.com", "wrong-pass")
		require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
	}

	var stored models.User
	require.NoError(t, svc.db.Take(&stored, "id = ?", seeded.ID).Error)
	require.NotNil(t, stored.LockedUntil)

	// Even the correct password is rejected while the lock holds.
	_, err := svc.Authenticate(context.Background(), "carol@example.com", "right-pass")
	require.ErrorIs(t, err, appErrors.ErrAccountLocked)
}

func TestAuthenticateLockExpires(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := &now
	svc := newUserService(t, WithUserClock(func() time.Time { return *clock }))
	seedUser(t, svc, "dave@example.com", "right-pass", models.RoleUser)

	for i := 0; i < DefaultMaxFailedLogins; i++ {
		_, _ = svc.Authenticate(context.Background(), "dave@example.com", "wrong-pass")
	}

	later := now.Add(DefaultLockDuration + time.Minute)
	clock = &later

	user, err := svc.Authenticate(context.Background(), "dave@example.com", "right-pass")
	require.NoError(t, err)
	require.Nil(t, user.LockedUntil)
	require.Zero(t, user.FailedLoginCount)
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	svc := newUserService(t)
	seeded := seedUser(t, svc, "eve@example.com", "right-pass", models.RoleUser)
	require.NoError(t, svc.db.Model(seeded).Update("is_active", false).Error)

	_, err := svc.Authenticate(context.Background(), "eve@example.com", "right-pass")
	require.ErrorIs(t, err, appErrors.ErrAccountDisabled)
}

func TestSetActiveSelfGuard(t *testing.T) {
	svc := newUserService(t)
	admin := seedUser(t, svc, "admin@example.com", "pass", models.RoleAdmin)

	_, err := svc.SetActive(context.Background(), admin, admin.ID, false)
	require.ErrorIs(t, err, appErrors.ErrSelfActionForbidden)
}

func TestSetActiveSuperAdminGuard(t *testing.T) {
	svc := newUserService(t)
	admin := seedUser(t, svc, "admin@example.com", "pass", models.RoleAdmin)
	root := seedUser(t, svc, "root@example.com", "pass", models.RoleSuperAdmin)

	_, err := svc.SetActive(context.Background(), admin, root.ID, false)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	// A SUPER_ADMIN may deactivate another SUPER_ADMIN.
	other := seedUser(t, svc, "root2@example.com", "pass", models.RoleSuperAdmin)
	updated, err := svc.SetActive(context.Background(), root, other.ID, false)
	require.NoError(t, err)
	require.False(t, updated.IsActive)
}

func TestSetActiveRevokesSessions(t *testing.T) {
	revoker := &recordingRevoker{}
	svc := newUserService(t, WithSessionRevoker(revoker))
	admin := seedUser(t, svc, "admin@example.com", "pass", models.RoleAdmin)
	target := seedUser(t, svc, "user@example.com", "pass", models.RoleUser)

	updated, err := svc.SetActive(context.Background(), admin, target.ID, false)
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Equal(t, []string{target.ID}, revoker.userIDs)

	var stored models.User
	require.NoError(t, svc.db.Take(&stored, "id = ?", target.ID).Error)
	require.NotNil(t, stored.DeactivatedAt)
	require.NotNil(t, stored.DeactivatedByID)
	require.Equal(t, admin.ID, *stored.DeactivatedByID)

	// Reactivation clears the bookkeeping and does not revoke again.
	updated, err = svc.SetActive(context.Background(), admin, target.ID, true)
	require.NoError(t, err)
	require.True(t, updated.IsActive)
	require.Len(t, revoker.userIDs, 1)
}

func TestOnboardingMerge(t *testing.T) {
	svc := newUserService(t)
	user := seedUser(t, svc, "user@example.com", "pass", models.RoleUser)

	state, err := svc.Onboarding(context.Background(), user.ID)
	require.NoError(t, err)
	require.Nil(t, state.Steps.Profile)
	require.Nil(t, state.SeenAt)

	yes := true
	seen := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	state, err = svc.UpdateOnboarding(context.Background(), user.ID, OnboardingState{
		Steps:  OnboardingSteps{Profile: &yes},
		SeenAt: &seen,
	})
	require.NoError(t, err)
	require.NotNil(t, state.Steps.Profile)
	require.True(t, *state.Steps.Profile)

	// A later patch only overwrites the fields it carries.
	done := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	state, err = svc.UpdateOnboarding(context.Background(), user.ID, OnboardingState{
		Steps:       OnboardingSteps{Directory: &yes},
		CompletedAt: &done,
	})
	require.NoError(t, err)
	require.NotNil(t, state.Steps.Profile)
	require.NotNil(t, state.Steps.Directory)
	require.NotNil(t, state.SeenAt)
	require.True(t, state.SeenAt.Equal(seen))
	require.NotNil(t, state.CompletedAt)

	stored, err := svc.Onboarding(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Steps.Directory)
}
