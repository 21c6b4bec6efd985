package api

import (
	"github.com/gin-gonic/gin"

	"github.com/bsudfrance/bsf-server/internal/handlers"
	"github.com/bsudfrance/bsf-server/internal/middleware"
)

func registerRecommendationRoutes(r *gin.Engine, deps Dependencies) {
	handler := handlers.NewRecommendationHandler(deps.Recommendations)

	// Visibility and transition rights are enforced by the service; every
	// authenticated member may use the ledger.
	recommendations := r.Group("/api/recommendations", middleware.RequireUser())
	{
		recommendations.GET("", handler.List)
		recommendations.GET("/:id", handler.Get)
		recommendations.GET("/:id/history", handler.History)
		recommendations.POST("", handler.Create)
		recommendations.PATCH("/:id/status", handler.UpdateStatus)
	}
}
