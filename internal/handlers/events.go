package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bsudfrance/bsf-server/internal/middleware"
	"github.com/bsudfrance/bsf-server/internal/services"
	"github.com/bsudfrance/bsf-server/pkg/response"
)

// EventHandler serves event and attendance endpoints.
type EventHandler struct {
	events *services.EventService
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// GET /api/events
func (h *EventHandler) List(c *gin.Context) {
	filters := services.EventFilters{
		Upcoming: c.Query("when") == "upcoming",
		Past:     c.Query("when") == "past",
	}

	events, err := h.events.List(c.Request.Context(), middleware.CurrentUser(c), filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, events)
}

// GET /api/events/:id
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.events.Get(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, event)
}

// POST /api/events
func (h *EventHandler) Create(c *gin.Context) {
	var body services.EventInput
	if !bindAndValidate(c, &body) {
		return
	}

	event, err := h.events.Create(c.Request.Context(), middleware.CurrentUser(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, event)
}

// PATCH /api/events/:id
func (h *EventHandler) Update(c *gin.Context) {
	var body services.EventInput
	if !bindAndValidate(c, &body) {
		return
	}

	event, err := h.events.Update(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, event)
}

// POST /api/events/:id/cancel
func (h *EventHandler) Cancel(c *gin.Context) {
	event, err := h.events.Cancel(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, event)
}

type rsvpRequest struct {
	Status string `json:"status" validate:"required,oneof=GOING NOT_GOING"`
}

// PUT /api/events/:id/rsvp
func (h *EventHandler) RSVP(c *gin.Context) {
	var body rsvpRequest
	if !bindAndValidate(c, &body) {
		return
	}

	rsvp, err := h.events.RSVP(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), body.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rsvp)
}
