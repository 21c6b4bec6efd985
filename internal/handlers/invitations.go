package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bsudfrance/bsf-server/internal/middleware"
	"github.com/bsudfrance/bsf-server/internal/services"
	"github.com/bsudfrance/bsf-server/pkg/response"
)

// InvitationHandler serves the invitation lifecycle endpoints.
type InvitationHandler struct {
	invitations *services.InvitationService
}

// NewInvitationHandler constructs an InvitationHandler.
func NewInvitationHandler(invitations *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

// invitationView augments the stored row with its derived status. Only
// issuance responses carry the raw token, exactly once; it is never
// retrievable afterwards.
type invitationView struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	MemberID   *string    `json:"member_id,omitempty"`
	Role       string     `json:"role"`
	Status     string     `json:"status"`
	SentAt     time.Time  `json:"sent_at"`
	ExpireAt   time.Time  `json:"expire_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// POST /api/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	var body services.IssueInvitationInput
	if !bindAndValidate(c, &body) {
		return
	}

	invitation, token, err := h.invitations.Issue(c.Request.Context(), middleware.CurrentUser(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{
		"invitation": invitation,
		"token":      token,
	})
}

// POST /api/invitations/:id/resend
func (h *InvitationHandler) Resend(c *gin.Context) {
	invitation, token, err := h.invitations.Resend(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{
		"invitation": invitation,
		"token":      token,
	})
}

// GET /api/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	filters := services.InvitationFilters{
		Status: c.Query("status"),
		Email:  c.Query("email"),
	}

	invitations, err := h.invitations.List(c.Request.Context(), filters)
	if err != nil {
		response.Error(c, err)
		return
	}

	now := time.Now()
	views := make([]invitationView, 0, len(invitations))
	for i := range invitations {
		inv := &invitations[i]
		views = append(views, invitationView{
			ID:         inv.ID,
			Email:      inv.Email,
			MemberID:   inv.MemberID,
			Role:       inv.Role,
			Status:     inv.Status(now),
			SentAt:     inv.SentAt,
			ExpireAt:   inv.ExpireAt,
			AcceptedAt: inv.AcceptedAt,
		})
	}
	response.Success(c, http.StatusOK, views)
}

// GET /api/invitations/validate?token=...
func (h *InvitationHandler) Validate(c *gin.Context) {
	invitation, err := h.invitations.Validate(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"email":  invitation.Email,
		"role":   invitation.Role,
		"member": invitation.Member,
	})
}

type acceptInvitationRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// POST /api/invitations/accept
func (h *InvitationHandler) Accept(c *gin.Context) {
	var body acceptInvitationRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.invitations.Accept(c.Request.Context(), body.Token, body.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}
