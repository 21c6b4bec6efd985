package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/internal/app"
	iauth "github.com/bsudfrance/bsf-server/internal/auth"
	"github.com/bsudfrance/bsf-server/internal/handlers"
	"github.com/bsudfrance/bsf-server/internal/middleware"
	"github.com/bsudfrance/bsf-server/internal/services"
)

// Paths that sit before the client holds a CSRF token.
const (
	loginPath  = "/api/auth/login"
	acceptPath = "/api/invitations/accept"
)

// Dependencies carries everything the router needs. All fields are required
// unless noted.
type Dependencies struct {
	DB              *gorm.DB
	Config          *app.Config
	Sessions        *iauth.SessionService
	Users           *services.UserService
	Members         *services.MemberService
	Invitations     *services.InvitationService
	Events          *services.EventService
	Recommendations *services.RecommendationService
	Audit           *services.AuditService

	// RateStore throttles the credential endpoints; nil disables throttling.
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if deps.Users == nil || deps.Members == nil || deps.Invitations == nil ||
		deps.Events == nil || deps.Recommendations == nil || deps.Audit == nil {
		return nil, fmt.Errorf("all services must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(deps.Config.Server.CORSOrigins...))
	r.Use(middleware.CSRF(deps.Sessions.TTL(), loginPath, acceptPath))
	r.Use(middleware.SessionAuth(deps.Sessions))

	r.NoRoute(middleware.NotFoundHandler)

	r.GET("/health", handlers.Health(deps.DB))
	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	registerAuthRoutes(r, deps)
	registerInvitationRoutes(r, deps)
	registerDirectoryRoutes(r, deps)
	registerEventRoutes(r, deps)
	registerRecommendationRoutes(r, deps)
	registerAdminRoutes(r, deps)

	return r, nil
}

// throttle wraps the shared rate limiter with the configured policy.
func throttle(deps Dependencies) gin.HandlerFunc {
	limits := deps.Config.Server.RateLimit
	if !limits.Enabled || deps.RateStore == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(deps.RateStore, limits.MaxRequests, limits.Window)
}
