package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/bsudfrance/bsf-server/internal/auth"
	"github.com/bsudfrance/bsf-server/internal/handlers"
	"github.com/bsudfrance/bsf-server/internal/middleware"
	"github.com/bsudfrance/bsf-server/internal/models"
)

func registerDirectoryRoutes(r *gin.Engine, deps Dependencies) {
	handler := handlers.NewMemberHandler(deps.Members)
	requireAdmin := middleware.RequireUser(iauth.AdminRoles()...)

	members := r.Group("/api/members", middleware.RequireUser())
	{
		members.GET("", handler.List)
		members.GET("/:id", handler.Get)
		members.POST("", requireAdmin, handler.Create)
		members.PATCH("/:id", requireAdmin, handler.Update)
		// Bulk import can overwrite large parts of the directory, so it is
		// reserved for SUPER_ADMIN.
		members.POST("/import", middleware.RequireUser(models.RoleSuperAdmin), handler.Import)
	}
}
