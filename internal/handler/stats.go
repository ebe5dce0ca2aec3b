package handler

import (
	"net/http"
	"strings"

	"updown-trader/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetStats returns the aggregate ledger and the unresolved trades.
func (h *Handler) GetStats(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-stats")
	defer span.End()

	if h.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement ledger unavailable"})
		return
	}
	pending := h.ledger.Pending()
	if pending == nil {
		pending = []domain.PendingTrade{}
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":   h.ledger.Stats(),
		"pending": pending,
	})
}

// GetPerformance returns the rolling performance snapshot of one market. The
// snapshot is null until the market has enough settled trades.
func (h *Handler) GetPerformance(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-performance")
	defer span.End()

	market := strings.ToUpper(c.Param("market"))
	span.SetAttributes(attribute.String("market", market))

	if h.session == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
		return
	}
	resp := gin.H{"market_id": market, "snapshot": h.session.Snapshot(market)}
	if state, ok := h.session.RegimeState(market); ok {
		resp["regime"] = state
	}
	c.JSON(http.StatusOK, resp)
}

// GetThresholds returns the adaptive thresholds for a market. The regime
// defaults to the market's confirmed regime and the phase to MID; both can be
// overridden with query parameters.
func (h *Handler) GetThresholds(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-thresholds")
	defer span.End()

	market := strings.ToUpper(c.Param("market"))
	span.SetAttributes(attribute.String("market", market))

	if h.session == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
		return
	}

	phase := domain.Phase(strings.ToUpper(c.DefaultQuery("phase", string(domain.PhaseMid))))
	switch phase {
	case domain.PhaseEarly, domain.PhaseMid, domain.PhaseLate:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown phase: " + string(phase)})
		return
	}

	r := domain.RegimeRange
	if state, ok := h.session.RegimeState(market); ok && state.Current != "" {
		r = state.Current
	}
	if q := c.Query("regime"); q != "" {
		r = domain.Regime(strings.ToUpper(q))
		switch r {
		case domain.RegimeTrendUp, domain.RegimeTrendDown, domain.RegimeRange, domain.RegimeChop:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown regime: " + q})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"market_id":  market,
		"regime":     r,
		"phase":      phase,
		"thresholds": h.session.Thresholds(market, r, phase),
	})
}
