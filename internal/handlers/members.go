package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bsudfrance/bsf-server/internal/middleware"
	"github.com/bsudfrance/bsf-server/internal/services"
	"github.com/bsudfrance/bsf-server/pkg/errors"
	"github.com/bsudfrance/bsf-server/pkg/response"
)

// importMaxBytes caps the accepted CSV upload size.
const importMaxBytes = 5 << 20

// MemberHandler serves the member directory endpoints.
type MemberHandler struct {
	members *services.MemberService
}

// NewMemberHandler constructs a MemberHandler.
func NewMemberHandler(members *services.MemberService) *MemberHandler {
	return &MemberHandler{members: members}
}

// GET /api/members
func (h *MemberHandler) List(c *gin.Context) {
	members, err := h.members.List(c.Request.Context(), services.MemberFilters{
		Search: c.Query("search"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, members)
}

// GET /api/members/:id
func (h *MemberHandler) Get(c *gin.Context) {
	member, err := h.members.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// POST /api/members
func (h *MemberHandler) Create(c *gin.Context) {
	var body services.MemberInput
	if !bindAndValidate(c, &body) {
		return
	}

	member, err := h.members.Create(c.Request.Context(), middleware.CurrentUser(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, member)
}

// PATCH /api/members/:id
func (h *MemberHandler) Update(c *gin.Context) {
	var body services.MemberInput
	if !bindAndValidate(c, &body) {
		return
	}

	member, err := h.members.Update(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// POST /api/members/import
//
// Accepts a multipart form with a "file" part, or a raw CSV body.
func (h *MemberHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, importMaxBytes)

	reader := c.Request.Body
	if file, err := c.FormFile("file"); err == nil {
		opened, err := file.Open()
		if err != nil {
			response.Error(c, errors.NewBadRequest("unreadable upload"))
			return
		}
		defer opened.Close()
		reader = opened
	}

	report, err := h.members.Import(c.Request.Context(), middleware.CurrentUser(c), reader)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}
