package handler

import (
	"net/http"

	"billing/internal/apperr"
	"billing/internal/middleware"
	"billing/internal/service"
	"billing/pkg/response"

	"github.com/gin-gonic/gin"
)

type FiscalHandler struct {
	fiscalService service.FiscalService
}

func NewFiscalHandler(fiscalService service.FiscalService) *FiscalHandler {
	return &FiscalHandler{fiscalService: fiscalService}
}

func (h *FiscalHandler) RegisterRoutes(router *gin.RouterGroup) {
	sequences := router.Group("/api/fiscal-sequences", middleware.RequireAuth())
	{
		sequences.POST("", h.CreateSequence)
		sequences.GET("", h.ListSequences)
		sequences.GET("/warnings", h.GetWarnings)
		sequences.POST("/next", h.NextNumber)
		sequences.DELETE("/:id", h.DeactivateSequence)
	}
}

// CreateSequence provisions an NCF range
// @Summary      Create fiscal sequence
// @Tags         fiscal
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateFiscalSequenceRequest  true  "Fiscal Sequence Payload"
// @Success      201      {object}  response.Response
// @Router       /api/fiscal-sequences [post]
func (h *FiscalHandler) CreateSequence(c *gin.Context) {
	var req service.CreateFiscalSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	seq, err := h.fiscalService.CreateSequence(c.Request.Context(), middleware.TenantID(c), req)
	if err != nil {
		status := apperr.HTTPStatus(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, seq))
}

func (h *FiscalHandler) ListSequences(c *gin.Context) {
	seqs, err := h.fiscalService.ListSequences(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		status := apperr.HTTPStatus(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, seqs))
}

// GetWarnings lists active sequences running low on numbers
// @Summary      Fiscal sequence warnings
// @Tags         fiscal
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/fiscal-sequences/warnings [get]
func (h *FiscalHandler) GetWarnings(c *gin.Context) {
	warnings, err := h.fiscalService.CheckLowRemaining(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		status := apperr.HTTPStatus(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, warnings))
}

// NextNumber allocates the next NCF for a fiscal type
// @Summary      Allocate fiscal number
// @Tags         fiscal
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      412  {object}  response.Response
// @Router       /api/fiscal-sequences/next [post]
func (h *FiscalHandler) NextNumber(c *gin.Context) {
	var req struct {
		Type string `json:"type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	ncf, err := h.fiscalService.NextFiscalNumber(c.Request.Context(), middleware.TenantID(c), req.Type)
	if err != nil {
		status := apperr.HTTPStatus(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"ncf": ncf}))
}

func (h *FiscalHandler) DeactivateSequence(c *gin.Context) {
	if err := h.fiscalService.DeactivateSequence(c.Request.Context(), middleware.TenantID(c), c.Param("id")); err != nil {
		status := apperr.HTTPStatus(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, nil))
}
