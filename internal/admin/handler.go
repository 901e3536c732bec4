// Package admin exposes campaign progress and manual reconciliation over
// HTTP.
package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campaignd/internal/aggregator"
	"campaignd/internal/logger"
	"campaignd/internal/reconcile"
	"campaignd/pkg/errors"
)

type ProgressReader interface {
	Progress(ctx context.Context, campaignID string) (aggregator.Progress, error)
}

type Reconciler interface {
	RunOnce(ctx context.Context, campaignID string) ([]reconcile.Outcome, error)
}

type ReconcileResponse struct {
	CampaignID string              `json:"campaign_id"`
	Outcomes   []reconcile.Outcome `json:"outcomes"`
}

type Handler struct {
	campaigns  ProgressReader
	reconciler Reconciler
	logger     logger.Logger
}

func NewHandler(campaigns ProgressReader, reconciler Reconciler, log logger.Logger) *Handler {
	return &Handler{
		campaigns:  campaigns,
		reconciler: reconciler,
		logger:     log.With("component", "admin"),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		campaigns := v1.Group("/campaigns")
		{
			campaigns.GET("/:id", h.GetCampaign)
			campaigns.POST("/:id/reconcile", h.ReconcileCampaign)
		}
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// GetCampaign godoc
// @Summary      Campaign progress
// @Description  Live counter value, declared total and stored message count for one campaign
// @Tags         campaigns
// @Produce      json
// @Param        id   path      string  true  "Campaign ID"
// @Success      200  {object}  aggregator.Progress
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /campaigns/{id} [get]
func (h *Handler) GetCampaign(c *gin.Context) {
	id, ok := h.campaignID(c)
	if !ok {
		return
	}

	progress, err := h.campaigns.Progress(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// ReconcileCampaign godoc
// @Summary      Reconcile a campaign
// @Description  Resolves a stuck counter now: notifies when progress reached the total, then removes the counter
// @Tags         campaigns
// @Produce      json
// @Param        id   path      string  true  "Campaign ID"
// @Success      200  {object}  ReconcileResponse
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /campaigns/{id}/reconcile [post]
func (h *Handler) ReconcileCampaign(c *gin.Context) {
	id, ok := h.campaignID(c)
	if !ok {
		return
	}

	outcomes, err := h.reconciler.RunOnce(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.logger.InfowCtx(c.Request.Context(), "Manual reconcile requested",
		"campaign_id", id,
		"outcomes", len(outcomes),
	)
	c.JSON(http.StatusOK, ReconcileResponse{CampaignID: id, Outcomes: outcomes})
}

func (h *Handler) campaignID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("field", "id"),
		))
		return "", false
	}
	return id, true
}
