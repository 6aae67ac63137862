package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-assignment-engine/internal/dto"
	"github.com/noah-isme/sma-assignment-engine/internal/models"
	"github.com/noah-isme/sma-assignment-engine/pkg/response"
)

type historyService interface {
	ListByTeacher(ctx context.Context, teacherID string, query dto.SubmissionHistoryQuery) ([]models.SubmissionAudit, error)
}

// HistoryHandler exposes the submission audit trail.
type HistoryHandler struct {
	service historyService
}

// NewHistoryHandler builds a new handler.
func NewHistoryHandler(service historyService) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// ListByTeacher godoc
// @Summary List audited commit outcomes for a teacher
// @Tags Assignment History
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Param academic_year_id query string false "Academic year"
// @Param limit query int false "Maximum records"
// @Success 200 {object} response.Envelope
// @Router /teachers/{teacherId}/assignment-submissions [get]
func (h *HistoryHandler) ListByTeacher(c *gin.Context) {
	if _, ok := requireOperator(c); !ok {
		return
	}
	var query dto.SubmissionHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err, "invalid query parameters"))
		return
	}
	records, err := h.service.ListByTeacher(c.Request.Context(), c.Param("teacherId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, map[string]interface{}{"count": len(records)})
}
