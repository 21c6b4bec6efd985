package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/bsudfrance/bsf-server/internal/auth"
	"github.com/bsudfrance/bsf-server/internal/middleware"
	"github.com/bsudfrance/bsf-server/internal/services"
	"github.com/bsudfrance/bsf-server/pkg/errors"
	"github.com/bsudfrance/bsf-server/pkg/logger"
	"github.com/bsudfrance/bsf-server/pkg/response"
)

// AuthHandler serves login, logout and identity endpoints.
type AuthHandler struct {
	users    *services.UserService
	sessions *iauth.SessionService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *services.UserService, sessions *iauth.SessionService) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, _, err := h.sessions.Create(c.Request.Context(), user.ID)
	if err != nil {
		logger.WithModule("auth").Error("create session", zap.Error(err))
		response.Error(c, errors.ErrInternalServer)
		return
	}

	middleware.SetSessionCookie(c, token, int(h.sessions.TTL().Seconds()))

	response.Success(c, http.StatusOK, user)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	// The session service keeps the active-session gauge itself.
	if token, err := c.Cookie(middleware.SessionCookieName); err == nil && token != "" {
		if err := h.sessions.Revoke(c.Request.Context(), token); err != nil {
			logger.WithModule("auth").Warn("revoke session", zap.Error(err))
		}
	}

	middleware.ClearSessionCookie(c)
	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, user)
}
