package handler

import (
	"errors"
	"net/http"

	"updown-trader/internal/ml/quality"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetQualityStatus(c *gin.Context) {
	if h.quality == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal-quality model unavailable"})
		return
	}
	c.JSON(http.StatusOK, h.quality.Status())
}

// TriggerRetrain runs an immediate retrain of the signal-quality model on the
// outcomes collected so far.
func (h *Handler) TriggerRetrain(c *gin.Context) {
	if h.quality == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal-quality model unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-retrain")
	defer span.End()

	result, err := h.quality.Retrain(ctx)
	if errors.Is(err, quality.ErrNotEnoughSamples) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": result})
}
