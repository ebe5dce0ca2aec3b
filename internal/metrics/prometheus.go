package metrics

import (
	"context"
	"strconv"
	"strings"

	"updown-trader/internal/domain"
	"updown-trader/internal/engine"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exports decision and settlement counters to Prometheus.
type Recorder struct {
	decisions   *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	settlements *prometheus.CounterVec
	totalPnL    prometheus.Gauge
	maxDrawdown prometheus.Gauge
	edge        prometheus.Histogram
}

// New registers the recorder's collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updown_decisions_total",
				Help: "Trade decisions by market and action",
			},
			[]string{"market", "action"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updown_rejections_total",
				Help: "NO_TRADE decisions by market and reason class",
			},
			[]string{"market", "reason"},
		),
		settlements: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "updown_settlements_total",
				Help: "Settled trades by market and result",
			},
			[]string{"market", "result"},
		),
		totalPnL: f.NewGauge(prometheus.GaugeOpts{
			Name: "updown_total_pnl_usd",
			Help: "Cumulative realised PnL in USD",
		}),
		maxDrawdown: f.NewGauge(prometheus.GaugeOpts{
			Name: "updown_max_drawdown_usd",
			Help: "Largest peak-to-trough drop of cumulative PnL in USD",
		}),
		edge: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "updown_effective_edge",
			Help:    "Effective edge of entered trades",
			Buckets: []float64{0, 0.02, 0.05, 0.08, 0.1, 0.15, 0.2, 0.3, 0.5},
		}),
	}
}

// RecordDecision counts one tick's decision.
func (r *Recorder) RecordDecision(ev engine.Evaluation) {
	d := ev.Decision
	r.decisions.WithLabelValues(d.MarketID, string(d.Action)).Inc()
	if d.Entered() {
		r.edge.Observe(d.Edge)
		return
	}
	r.rejections.WithLabelValues(d.MarketID, ReasonClass(d.Reason)).Inc()
}

// OnSettled implements settlement.Listener.
func (r *Recorder) OnSettled(_ context.Context, results []domain.SettlementResult, stats domain.AggregateStats) {
	for _, res := range results {
		result := "loss"
		if res.Won {
			result = "win"
		}
		r.settlements.WithLabelValues(res.MarketID, result).Inc()
	}
	r.totalPnL.Set(stats.TotalPnL)
	r.maxDrawdown.Set(stats.MaxDrawdown)
}

// ReasonClass strips the numeric parts of a rejection reason so label
// cardinality stays bounded, e.g. edge_0.031_below_0.05 becomes edge_below.
func ReasonClass(reason string) string {
	if reason == "" {
		return "unknown"
	}
	parts := strings.Split(reason, "_")
	kept := parts[:0]
	for _, p := range parts {
		if _, err := strconv.ParseFloat(p, 64); err == nil {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return "unknown"
	}
	return strings.Join(kept, "_")
}
