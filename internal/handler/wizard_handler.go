package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-assignment-engine/internal/dto"
	"github.com/noah-isme/sma-assignment-engine/internal/service"
	appErrors "github.com/noah-isme/sma-assignment-engine/pkg/errors"
	"github.com/noah-isme/sma-assignment-engine/pkg/response"
)

type wizardService interface {
	Open(ctx context.Context, operatorID string, req dto.OpenWizardRequest) (*service.WizardView, error)
	Get(operatorID, id string) (*service.WizardView, error)
	Close(operatorID, id string) error
	Setup(ctx context.Context, operatorID, id string, req dto.WizardSetupRequest) (*service.WizardView, error)
	Next(operatorID, id string) (*service.WizardView, error)
	Back(operatorID, id string) (*service.WizardView, error)
	ToggleRow(operatorID, id, subjectID string, selected bool) (*service.WizardView, error)
	UpdateRow(operatorID, id, subjectID string, req dto.UpdateRowRequest) (*service.WizardView, error)
	SelectAll(operatorID, id string) (*service.WizardView, error)
	ValidateAll(ctx context.Context, operatorID, id string) (*service.WizardView, error)
	Review(operatorID, id string) (*service.WizardView, error)
	ApplyRepair(ctx context.Context, operatorID, id, subjectID string, periods int) (*service.WizardView, error)
	Submit(ctx context.Context, operatorID, id string) (*service.WizardView, error)
	Retry(operatorID, id string) (*service.WizardView, error)
	Export(operatorID, id string, format service.ExportFormat) (*service.ExportFile, error)
}

// WizardHandler exposes the bulk assignment wizard.
type WizardHandler struct {
	service wizardService
}

// NewWizardHandler builds a new handler.
func NewWizardHandler(service wizardService) *WizardHandler {
	return &WizardHandler{service: service}
}

func invalidPayload(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}

// Open godoc
// @Summary Open a bulk assignment wizard
// @Tags Assignment Wizard
// @Accept json
// @Produce json
// @Param payload body dto.OpenWizardRequest false "Optional setup pair"
// @Success 201 {object} response.Envelope
// @Router /assignment-wizards [post]
func (h *WizardHandler) Open(c *gin.Context) {
	operatorID, ok := requireOperator(c)
	if !ok {
		return
	}
	var req dto.OpenWizardRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, invalidPayload(err, "invalid wizard payload"))
		return
	}
	view, err := h.service.Open(c.Request.Context(), operatorID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Get godoc
// @Summary Get wizard session
// @Tags Assignment Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /assignment-wizards/{id} [get]
func (h *WizardHandler) Get(c *gin.Context) {
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.Get(operatorID, c.Param("id"))
	})
}

// Close godoc
// @Summary Discard wizard session
// @Tags Assignment Wizard
// @Param id path string true "Session ID"
// @Success 204
// @Router /assignment-wizards/{id} [delete]
func (h *WizardHandler) Close(c *gin.Context) {
	operatorID, ok := requireOperator(c)
	if !ok {
		return
	}
	if err := h.service.Close(operatorID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Setup godoc
// @Summary Choose academic year and teacher
// @Tags Assignment Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.WizardSetupRequest true "Setup pair"
// @Success 200 {object} response.Envelope
// @Router /assignment-wizards/{id}/setup [put]
func (h *WizardHandler) Setup(c *gin.Context) {
	var req dto.WizardSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid setup payload"))
		return
	}
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.Setup(c.Request.Context(), operatorID, c.Param("id"), req)
	})
}

// Next godoc
// @Summary Leave the setup step
// @Tags Assignment Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /assignment-wizards/{id}/next [post]
func (h *WizardHandler) Next(c *gin.Context) {
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.Next(operatorID, c.Param("id"))
	})
}

// Back godoc
// @Summary Step backwards
// @Tags Assignment Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /assignment-wizards/{id}/back [post]
func (h *WizardHandler) Back(c *gin.Context) {
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.Back(operatorID, c.Param("id"))
	})
}

// ToggleRow godoc
// @Summary Select or deselect a subject
// @Tags Assignment Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param subjectId path string true "Subject ID"
// @Param payload body dto.ToggleRowRequest true "Selection"
// @Success 200 {object} response.Envelope
// @Router /assignment-wizards/{id}/rows/{subjectId}/selection [put]
func (h *WizardHandler) ToggleRow(c *gin.Context) {
	var req dto.ToggleRowRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Selected == nil {
		response.Error(c, invalidPayload(err, "selected is required"))
		return
	}
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.ToggleRow(operatorID, c.Param("id"), c.Param("subjectId"), *req.Selected)
	})
}

// UpdateRow godoc
// @Summary Edit a candidate row
// @Tags Assignment Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param subjectId path string true "Subject ID"
// @Param payload body dto.UpdateRowRequest true "Row fields"
// @Success 200 {object} response.Envelope
// @Router /assignment-wizards/{id}/rows/{subjectId} [patch]
func (h *WizardHandler) UpdateRow(c *gin.Context) {
	var req dto.UpdateRowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid row payload"))
		return
	}
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.UpdateRow(operatorID, c.Param("id"), c.Param("subjectId"), req)
	})
}

// SelectAll godoc
// @Summary Select every compatible subject
// @Tags Assignment Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /assignment-wizards/{id}/select-all [post]
func (h *WizardHandler) SelectAll(c *gin.Context) {
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.SelectAll(operatorID, c.Param("id"))
	})
}

// ValidateAll godoc
// @Summary Validate the selected rows and move to review
// @Tags Assignment Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /assignment-wizards/{id}/validate [post]
func (h *WizardHandler) ValidateAll(c *gin.Context) {
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.ValidateAll(c.Request.Context(), operatorID, c.Param("id"))
	})
}

// Review godoc
// @Summary Review summary, verdict and repair plans
// @Tags Assignment Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /assignment-wizards/{id}/review [get]
func (h *WizardHandler) Review(c *gin.Context) {
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.Review(operatorID, c.Param("id"))
	})
}

// ApplyRepair godoc
// @Summary Apply a reduced period count and re-validate the row
// @Tags Assignment Wizard
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param subjectId path string true "Subject ID"
// @Param payload body dto.RepairRequest true "Repair"
// @Success 200 {object} response.Envelope
// @Router /assignment-wizards/{id}/rows/{subjectId}/repair [post]
func (h *WizardHandler) ApplyRepair(c *gin.Context) {
	var req dto.RepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid repair payload"))
		return
	}
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.ApplyRepair(c.Request.Context(), operatorID, c.Param("id"), c.Param("subjectId"), req.WeeklyPeriods)
	})
}

// Submit godoc
// @Summary Commit every selected valid row
// @Tags Assignment Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignment-wizards/{id}/submit [post]
func (h *WizardHandler) Submit(c *gin.Context) {
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.Submit(c.Request.Context(), operatorID, c.Param("id"))
	})
}

// Retry godoc
// @Summary Return to selection with the failed rows
// @Tags Assignment Wizard
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /assignment-wizards/{id}/retry [post]
func (h *WizardHandler) Retry(c *gin.Context) {
	h.respond(c, func(operatorID string) (*service.WizardView, error) {
		return h.service.Retry(operatorID, c.Param("id"))
	})
}

// Export godoc
// @Summary Download the submission results
// @Tags Assignment Wizard
// @Produce octet-stream
// @Param id path string true "Session ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /assignment-wizards/{id}/results/export [get]
func (h *WizardHandler) Export(c *gin.Context) {
	operatorID, ok := requireOperator(c)
	if !ok {
		return
	}
	file, err := h.service.Export(operatorID, c.Param("id"), service.ExportFormat(c.Query("format")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

func (h *WizardHandler) respond(c *gin.Context, action func(operatorID string) (*service.WizardView, error)) {
	operatorID, ok := requireOperator(c)
	if !ok {
		return
	}
	view, err := action(operatorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}
