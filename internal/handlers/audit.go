package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bsudfrance/bsf-server/internal/services"
	"github.com/bsudfrance/bsf-server/pkg/response"
)

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	audit *services.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	per, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))

	opts := services.AuditListOptions{
		Page:     page,
		PageSize: per,
		Filters: services.AuditFilters{
			ActorUserID:  c.Query("actor"),
			Action:       strings.ToUpper(strings.TrimSpace(c.Query("action"))),
			TargetUserID: c.Query("target"),
		},
	}
	if since := c.Query("since"); since != "" {
		if parsed, err := time.Parse(time.RFC3339, since); err == nil {
			opts.Filters.Since = &parsed
		}
	}
	if until := c.Query("until"); until != "" {
		if parsed, err := time.Parse(time.RFC3339, until); err == nil {
			opts.Filters.Until = &parsed
		}
	}

	logs, total, err := h.audit.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	meta := &response.Meta{
		Page:    opts.Page,
		PerPage: opts.PageSize,
		Total:   int(total),
	}
	if opts.PageSize > 0 {
		meta.TotalPages = (int(total) + opts.PageSize - 1) / opts.PageSize
	}
	response.SuccessWithMeta(c, http.StatusOK, logs, meta)
}
