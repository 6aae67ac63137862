package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-assignment-engine/internal/dto"
	"github.com/noah-isme/sma-assignment-engine/internal/service"
	"github.com/noah-isme/sma-assignment-engine/pkg/response"
)

type draftService interface {
	Create(ctx context.Context, operatorID string, req dto.DraftRequest) (*service.DraftView, error)
	Get(operatorID, id string) (*service.DraftView, error)
	Edit(ctx context.Context, operatorID, id string, req dto.DraftRequest) (*service.DraftView, error)
	Submit(ctx context.Context, operatorID, id string) (*service.DraftView, error)
	Discard(operatorID, id string) error
}

// DraftHandler exposes single-assignment drafts.
type DraftHandler struct {
	service draftService
}

// NewDraftHandler builds a new handler.
func NewDraftHandler(service draftService) *DraftHandler {
	return &DraftHandler{service: service}
}

// Create godoc
// @Summary Start a single-assignment draft
// @Tags Assignment Drafts
// @Accept json
// @Produce json
// @Param payload body dto.DraftRequest false "Initial fields"
// @Success 201 {object} response.Envelope
// @Router /assignment-drafts [post]
func (h *DraftHandler) Create(c *gin.Context) {
	operatorID, ok := requireOperator(c)
	if !ok {
		return
	}
	var req dto.DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, invalidPayload(err, "invalid draft payload"))
		return
	}
	view, err := h.service.Create(c.Request.Context(), operatorID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Get godoc
// @Summary Get a draft
// @Tags Assignment Drafts
// @Produce json
// @Param id path string true "Draft ID"
// @Success 200 {object} response.Envelope
// @Router /assignment-drafts/{id} [get]
func (h *DraftHandler) Get(c *gin.Context) {
	operatorID, ok := requireOperator(c)
	if !ok {
		return
	}
	view, err := h.service.Get(operatorID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Edit godoc
// @Summary Edit draft fields and re-validate
// @Tags Assignment Drafts
// @Accept json
// @Produce json
// @Param id path string true "Draft ID"
// @Param payload body dto.DraftRequest true "Changed fields"
// @Success 200 {object} response.Envelope
// @Router /assignment-drafts/{id} [patch]
func (h *DraftHandler) Edit(c *gin.Context) {
	operatorID, ok := requireOperator(c)
	if !ok {
		return
	}
	var req dto.DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid draft payload"))
		return
	}
	view, err := h.service.Edit(c.Request.Context(), operatorID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Submit godoc
// @Summary Commit a validated draft
// @Tags Assignment Drafts
// @Produce json
// @Param id path string true "Draft ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /assignment-drafts/{id}/submit [post]
func (h *DraftHandler) Submit(c *gin.Context) {
	operatorID, ok := requireOperator(c)
	if !ok {
		return
	}
	view, err := h.service.Submit(c.Request.Context(), operatorID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Discard godoc
// @Summary Discard a draft
// @Tags Assignment Drafts
// @Param id path string true "Draft ID"
// @Success 204
// @Router /assignment-drafts/{id} [delete]
func (h *DraftHandler) Discard(c *gin.Context) {
	operatorID, ok := requireOperator(c)
	if !ok {
		return
	}
	if err := h.service.Discard(operatorID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
