package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bsudfrance/bsf-server/internal/middleware"
	"github.com/bsudfrance/bsf-server/internal/services"
	"github.com/bsudfrance/bsf-server/pkg/response"
)

// RecommendationHandler serves the referral ledger endpoints.
type RecommendationHandler struct {
	recommendations *services.RecommendationService
}

// NewRecommendationHandler constructs a RecommendationHandler.
func NewRecommendationHandler(recommendations *services.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{recommendations: recommendations}
}

// GET /api/recommendations
func (h *RecommendationHandler) List(c *gin.Context) {
	list, err := h.recommendations.List(c.Request.Context(), middleware.CurrentUser(c), services.RecommendationFilters{
		Status: c.Query("status"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, list)
}

// GET /api/recommendations/:id
func (h *RecommendationHandler) Get(c *gin.Context) {
	recommendation, err := h.recommendations.Get(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, recommendation)
}

// POST /api/recommendations
func (h *RecommendationHandler) Create(c *gin.Context) {
	var body services.CreateRecommendationInput
	if !bindAndValidate(c, &body) {
		return
	}

	recommendation, err := h.recommendations.Create(c.Request.Context(), middleware.CurrentUser(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, recommendation)
}

// PATCH /api/recommendations/:id/status
func (h *RecommendationHandler) UpdateStatus(c *gin.Context) {
	var body services.UpdateStatusInput
	if !bindAndValidate(c, &body) {
		return
	}

	recommendation, err := h.recommendations.UpdateStatus(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, recommendation)
}

// GET /api/recommendations/:id/history
func (h *RecommendationHandler) History(c *gin.Context) {
	history, err := h.recommendations.History(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, history)
}
