package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/bsudfrance/bsf-server/internal/auth"
	"github.com/bsudfrance/bsf-server/internal/handlers"
	"github.com/bsudfrance/bsf-server/internal/middleware"
)

func registerAdminRoutes(r *gin.Engine, deps Dependencies) {
	userHandler := handlers.NewUserHandler(deps.Users)
	auditHandler := handlers.NewAuditHandler(deps.Audit)
	requireAdmin := middleware.RequireUser(iauth.AdminRoles()...)

	users := r.Group("/api/users", requireAdmin)
	{
		users.GET("", userHandler.List)
		users.PATCH("/:id/active", userHandler.SetActive)
	}

	r.GET("/api/audit", requireAdmin, auditHandler.List)
}
