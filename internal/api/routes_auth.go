package api

import (
	"github.com/gin-gonic/gin"

	"github.com/bsudfrance/bsf-server/internal/handlers"
	"github.com/bsudfrance/bsf-server/internal/middleware"
)

func registerAuthRoutes(r *gin.Engine, deps Dependencies) {
	handler := handlers.NewAuthHandler(deps.Users, deps.Sessions)
	userHandler := handlers.NewUserHandler(deps.Users)

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", throttle(deps), handler.Login)
		auth.POST("/logout", handler.Logout)
		auth.GET("/me", middleware.RequireUser(), handler.Me)
	}

	me := r.Group("/api/me", middleware.RequireUser())
	{
		me.GET("/onboarding", userHandler.Onboarding)
		me.PATCH("/onboarding", userHandler.UpdateOnboarding)
	}
}
