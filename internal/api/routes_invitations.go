package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/bsudfrance/bsf-server/internal/auth"
	"github.com/bsudfrance/bsf-server/internal/handlers"
	"github.com/bsudfrance/bsf-server/internal/middleware"
)

func registerInvitationRoutes(r *gin.Engine, deps Dependencies) {
	handler := handlers.NewInvitationHandler(deps.Invitations)
	requireAdmin := middleware.RequireUser(iauth.AdminRoles()...)

	invitations := r.Group("/api/invitations")
	{
		// Token validation and acceptance happen before the invitee has an
		// account, so these two stay public.
		invitations.GET("/validate", handler.Validate)
		invitations.POST("/accept", throttle(deps), handler.Accept)

		invitations.GET("", requireAdmin, handler.List)
		invitations.POST("", requireAdmin, handler.Create)
		invitations.POST("/:id/resend", requireAdmin, handler.Resend)
	}
}
