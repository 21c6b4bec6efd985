package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bsudfrance/bsf-server/internal/auditctx"
	"github.com/bsudfrance/bsf-server/internal/database/testutil"
	"github.com/bsudfrance/bsf-server/internal/models"
)

func TestAuditLogAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := NewAuditService(db)

	actor := &models.User{AuthEmail: "admin@example.com", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, db.Create(actor).Error)
	target := &models.User{AuthEmail: "user@example.com", Role: models.RoleUser, IsActive: true}
	require.NoError(t, db.Create(target).Error)

	require.NoError(t, svc.Log(context.Background(), AuditEntry{
		ActorUserID:  &actor.ID,
		Action:       "USER_DEACTIVATED",
		TargetUserID: &target.ID,
		Metadata:     map[string]any{"email": target.AuthEmail},
	}))
	require.NoError(t, svc.Log(context.Background(), AuditEntry{
		ActorUserID: &actor.ID,
		Action:      "USER_LOGGED_IN",
	}))

	page, total, err := svc.List(context.Background(), AuditListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, page, 2)

	filtered, total, err := svc.List(context.Background(), AuditListOptions{
		Page: 1, PageSize: 10,
		Filters: AuditFilters{Action: "USER_DEACTIVATED"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, filtered, 1)
	require.NotNil(t, filtered[0].TargetUserID)
	require.Equal(t, target.ID, *filtered[0].TargetUserID)
	require.Contains(t, string(filtered[0].Metadata), "user@example.com")
}

func TestAuditLogCapturesRequestInfo(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := NewAuditService(db)

	ctx := auditctx.WithRequestInfo(context.Background(), auditctx.RequestInfo{
		IPAddress: "192.0.2.10",
		UserAgent: "curl/8.5",
	})
	require.NoError(t, svc.Log(ctx, AuditEntry{Action: "MEMBERS_IMPORTED"}))

	var row models.AuditLog
	require.NoError(t, db.First(&row, "action = ?", "MEMBERS_IMPORTED").Error)
	require.Equal(t, "192.0.2.10", row.IPAddress)
	require.Equal(t, "curl/8.5", row.UserAgent)
}

func TestAuditLogRequiresAction(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := NewAuditService(db)

	require.Error(t, svc.Log(context.Background(), AuditEntry{Action: "   "}))
}
