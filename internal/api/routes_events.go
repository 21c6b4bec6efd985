package api

import (
	"github.com/gin-gonic/gin"

	"github.com/bsudfrance/bsf-server/internal/handlers"
	"github.com/bsudfrance/bsf-server/internal/middleware"
)

func registerEventRoutes(r *gin.Engine, deps Dependencies) {
	handler := handlers.NewEventHandler(deps.Events)

	// Any member may publish an event; updates and cancellation are held to
	// admins and the creator inside the service.
	events := r.Group("/api/events", middleware.RequireUser())
	{
		events.GET("", handler.List)
		events.GET("/:id", handler.Get)
		events.PUT("/:id/rsvp", handler.RSVP)

		events.POST("", handler.Create)
		events.PATCH("/:id", handler.Update)
		events.POST("/:id/cancel", handler.Cancel)
	}
}
