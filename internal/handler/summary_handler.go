package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendify-api/internal/middleware"
	"github.com/noah-isme/attendify-api/internal/models"
	"github.com/noah-isme/attendify-api/pkg/response"
)

type summaryService interface {
	GetSummary(ctx context.Context, principal models.Principal, studentID, offeringID string) (*models.AttendanceSummary, bool, error)
}

// SummaryHandler exposes per-offering attendance summaries.
type SummaryHandler struct {
	summaries summaryService
}

// NewSummaryHandler constructs the summary handler.
func NewSummaryHandler(summaries summaryService) *SummaryHandler {
	return &SummaryHandler{summaries: summaries}
}

// Get godoc
// @Summary Attendance summary of a student in an offering
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param offeringId path string true "Offering ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/offerings/{offeringId}/summary [get]
func (h *SummaryHandler) Get(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	summary, cacheHit, err := h.summaries.GetSummary(c.Request.Context(), principal, c.Param("id"), c.Param("offeringId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ResponseMeta(c))
}
