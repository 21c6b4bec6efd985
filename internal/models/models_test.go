package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestBaseModelGeneratesUUID(t *testing.T) {
	m := &BaseModel{}
	require.NoError(t, m.BeforeCreate(&gorm.DB{}))
	require.NotEmpty(t, m.ID)

	keep := &BaseModel{ID: "fixed-id"}
	require.NoError(t, keep.BeforeCreate(&gorm.DB{}))
	require.Equal(t, "fixed-id", keep.ID)
}

func TestValidRole(t *testing.T) {
	require.True(t, ValidRole(RoleSuperAdmin))
	require.True(t, ValidRole(RoleAdmin))
	require.True(t, ValidRole(RoleUser))
	require.False(t, ValidRole("MODERATOR"))
	require.False(t, ValidRole(""))
}

func TestUserLocked(t *testing.T) {
	now := time.Now()
	u := &User{}
	require.False(t, u.Locked(now))

	until := now.Add(time.Minute)
	u.LockedUntil = &until
	require.True(t, u.Locked(now))
	require.False(t, u.Locked(now.Add(2*time.Minute)))
}

func TestSessionLive(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Hour)}
	require.True(t, s.Live(now))

	revoked := now
	s.RevokedAt = &revoked
	require.False(t, s.Live(now))

	expired := &Session{ExpiresAt: now.Add(-time.Minute)}
	require.False(t, expired.Live(now))
}

func TestInvitationStatus(t *testing.T) {
	now := time.Now()
	inv := &Invitation{ExpireAt: now.Add(time.Hour)}
	require.Equal(t, InvitationPending, inv.Status(now))
	require.True(t, inv.Redeemable(now))

	accepted := now
	inv.AcceptedAt = &accepted
	require.Equal(t, InvitationAccepted, inv.Status(now))
	require.False(t, inv.Redeemable(now))

	expired := &Invitation{ExpireAt: now.Add(-time.Second)}
	require.Equal(t, InvitationExpired, expired.Status(now))
	require.False(t, expired.Redeemable(now))
}

func TestValidRecommendationStatus(t *testing.T) {
	for _, status := range []string{RecommendationSent, RecommendationInProgress, RecommendationValidated, RecommendationAbandoned} {
		require.True(t, ValidRecommendationStatus(status))
	}
	require.False(t, ValidRecommendationStatus("DONE"))
}
