package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bsudfrance/bsf-server/internal/middleware"
	"github.com/bsudfrance/bsf-server/internal/services"
	"github.com/bsudfrance/bsf-server/pkg/response"
)

// UserHandler serves account administration and onboarding endpoints.
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, users)
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// PATCH /api/users/:id/active
func (h *UserHandler) SetActive(c *gin.Context) {
	var body setActiveRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.SetActive(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), *body.Active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// GET /api/me/onboarding
func (h *UserHandler) Onboarding(c *gin.Context) {
	user := middleware.CurrentUser(c)

	state, err := h.users.Onboarding(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// PATCH /api/me/onboarding
func (h *UserHandler) UpdateOnboarding(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var body services.OnboardingState
	if !bindAndValidate(c, &body) {
		return
	}

	state, err := h.users.UpdateOnboarding(c.Request.Context(), user.ID, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}
