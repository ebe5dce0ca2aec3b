package handler

import (
	"context"

	"updown-trader/internal/domain"
	"updown-trader/internal/ml/quality"
	"updown-trader/internal/regime"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// Ledger is the settlement view served by /api/stats.
type Ledger interface {
	Stats() domain.AggregateStats
	Pending() []domain.PendingTrade
}

// SessionView exposes the per-market adaptive state of the decision session.
type SessionView interface {
	Snapshot(marketID string) *domain.PerformanceSnapshot
	Thresholds(marketID string, r domain.Regime, phase domain.Phase) domain.AdjustedThresholds
	RegimeState(marketID string) (regime.State, bool)
}

type QualityModel interface {
	Status() quality.Status
	Retrain(ctx context.Context) (quality.TrainResult, error)
}

type Handler struct {
	tracer  trace.Tracer
	ledger  Ledger
	session SessionView
	quality QualityModel
}

func New(tracer trace.Tracer, ledger Ledger, session SessionView) *Handler {
	return &Handler{
		tracer:  tracer,
		ledger:  ledger,
		session: session,
	}
}

func (h *Handler) SetQualityModel(q QualityModel) {
	h.quality = q
}

// RegisterRoutes mounts the read-only routes. Retraining sits behind the API key.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)
	r.GET("/api/stats", h.GetStats)
	r.GET("/api/performance/:market", h.GetPerformance)
	r.GET("/api/thresholds/:market", h.GetThresholds)
	r.GET("/api/quality", h.GetQualityStatus)
	r.POST("/api/quality/retrain", APIKeyAuth(apiKey), h.TriggerRetrain)
}
