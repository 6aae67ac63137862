package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-assignment-engine/internal/models"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
	"github.com/noah-isme/sma-assignment-engine/pkg/response"
)

type referenceService interface {
	AcademicYears(ctx context.Context) ([]models.AcademicYear, error)
	Capacity(ctx context.Context, teacherID, academicYearID string) (*models.CapacitySnapshot, error)
}

// ReferenceHandler serves the lookups the setup step needs.
type ReferenceHandler struct {
	service referenceService
}

// NewReferenceHandler builds a new handler.
func NewReferenceHandler(service referenceService) *ReferenceHandler {
	return &ReferenceHandler{service: service}
}

// AcademicYears godoc
// @Summary List academic years, current year first
// @Tags Reference
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /academic-years [get]
func (h *ReferenceHandler) AcademicYears(c *gin.Context) {
	if _, ok := requireOperator(c); !ok {
		return
	}
	years, err := h.service.AcademicYears(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years)
}

// Capacity godoc
// @Summary Current weekly-period load of a teacher
// @Tags Reference
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Param academic_year_id query string true "Academic year"
// @Success 200 {object} response.Envelope
// @Router /teachers/{teacherId}/capacity [get]
func (h *ReferenceHandler) Capacity(c *gin.Context) {
	if _, ok := requireOperator(c); !ok {
		return
	}
	yearID := strings.TrimSpace(c.Query("academic_year_id"))
	if yearID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "academic_year_id is required"))
		return
	}
	snapshot, err := h.service.Capacity(c.Request.Context(), c.Param("teacherId"), yearID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot)
}
