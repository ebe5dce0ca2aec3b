package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"updown-trader/internal/config"
	"updown-trader/internal/decision"
	"updown-trader/internal/domain"
	"updown-trader/internal/edge"
	"updown-trader/internal/execution"
	"updown-trader/internal/ml/quality"
	"updown-trader/internal/performance"
	"updown-trader/internal/probability"
	"updown-trader/internal/regime"
	"updown-trader/internal/signalmeta"
	"updown-trader/internal/ta"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrNotEntered = errors.New("evaluation did not enter a position")

// QualityEstimator scores an entry snapshot with the learned signal-quality model.
type QualityEstimator interface {
	Estimate(features []float64, leaning domain.Side) quality.Estimate
}

// Ledger is the settlement engine as seen from the decision path.
type Ledger interface {
	Add(trade domain.PendingTrade) error
	Cancel(tradeID string) error
	StopLossHit() bool
	HasOpenPosition(marketID string, windowStartMs int64) bool
}

type SessionDeps struct {
	// Performance is shared with the settlement engine, which is its only writer.
	Performance *performance.Registry
	Quality     QualityEstimator
	Signals     signalmeta.Store
	Ledger      Ledger
}

// Session owns the per-market state the decision path reads: regime trackers,
// performance history and thresholds. One Session serves all markets.
type Session struct {
	strategy   config.Strategy
	tracer     trace.Tracer
	regimes    *regime.Registry
	perf       *performance.Registry
	thresholds *performance.Manager
	quality    QualityEstimator
	signals    signalmeta.Store
	ledger     Ledger
}

func NewSession(strategy config.Strategy, deps SessionDeps, tracer trace.Tracer) *Session {
	perf := deps.Performance
	if perf == nil {
		perf = performance.NewRegistry(strategy.Performance)
	}
	return &Session{
		strategy:   strategy,
		tracer:     tracer,
		regimes:    regime.NewRegistry(strategy.Regime),
		perf:       perf,
		thresholds: performance.NewManager(strategy.Thresholds, perf),
		quality:    deps.Quality,
		signals:    deps.Signals,
		ledger:     deps.Ledger,
	}
}

// Evaluation is the full trace of one market tick through the pipeline.
type Evaluation struct {
	MarketID      string                     `json:"market_id"`
	WindowStartMs int64                      `json:"window_start_ms"`
	PriceToBeat   float64                    `json:"price_to_beat"`
	Decision      domain.TradeDecision       `json:"decision"`
	Confidence    *domain.ConfidenceResult   `json:"confidence,omitempty"`
	Features      Features                   `json:"features"`
	TA            ta.ScoreResult             `json:"ta"`
	Volatility    *float64                   `json:"volatility,omitempty"`
	VolImplied    *float64                   `json:"vol_implied,omitempty"`
	Blend         probability.BlendResult    `json:"blend"`
	Regime        regime.Classification      `json:"regime"`
	Quality       quality.Estimate           `json:"quality"`
	Ensemble      probability.EnsembleResult `json:"ensemble"`
	Edge          domain.EdgeResult          `json:"edge"`
	Thresholds    domain.AdjustedThresholds  `json:"thresholds"`
	Order         *execution.OrderPlan       `json:"order,omitempty"`

	// QualityFeatures is the entry snapshot stored for the signal-quality model.
	QualityFeatures []float64 `json:"quality_features,omitempty"`
}

// Evaluate runs one tick through the pipeline. It fails only for malformed
// ticks; every other outcome is a decision.
func (s *Session) Evaluate(ctx context.Context, tick domain.MarketTick) (Evaluation, error) {
	_, span := s.tracer.Start(ctx, "engine.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("market", tick.MarketID))

	if err := ValidateTick(tick); err != nil {
		return Evaluation{}, err
	}

	st := s.strategy
	remaining := tick.RemainingMinutes()
	window := tick.WindowMinutes()
	ev := Evaluation{
		MarketID:      tick.MarketID,
		WindowStartMs: tick.WindowStart.UnixMilli(),
	}
	if tick.PriceToBeat != nil {
		ev.PriceToBeat = *tick.PriceToBeat
	}

	ev.Features = Extract(tick.Candles, st.Features)
	price := tick.CurrentPrice()
	if price != nil {
		ev.Features.Price = price
	}
	ev.TA = ta.Score(ev.Features.ScoreInputs())
	taUp := probability.Clamp(ta.ApplyTimeDecay(ev.TA.RawUp, remaining, window))

	ev.Volatility = probability.RealizedVolatility(domain.Closes(tick.Candles), st.Volatility.LookbackMinutes, window)
	if price != nil {
		ev.VolImplied = probability.VolImpliedProbability(*price, tick.PriceToBeat, ev.Volatility, remaining, window)
	}

	crossDelta := crossFeedDelta(tick)
	imbalance := tick.UpBook.Imbalance()
	ev.Blend = probability.Blend(probability.BlendInput{
		TAUp:           taUp,
		VolImplied:     ev.VolImplied,
		CrossFeedDelta: crossDelta,
		Imbalance:      imbalance,
	}, st.Blend)

	var current domain.Regime
	current, ev.Regime = s.regimes.Classify(tick.MarketID, ev.Features.RegimeInputs(), tick.Now)
	phase := decision.PhaseFor(remaining, st.Decision)

	leaning := domain.SideUp
	if ev.Blend.Up < 0.5 {
		leaning = domain.SideDown
	}
	if s.quality != nil {
		ev.Quality = s.quality.Estimate(s.qualityFeatures(tick, ev, leaning, leaningEdge(tick, ev.Blend, leaning), current), leaning)
	}
	var signalQuality probability.ModelEstimate
	if ev.Quality.Available {
		if err := probability.Validate("signal_quality", ev.Quality.UpProb); err != nil {
			log.Warn().Err(err).Str("market", tick.MarketID).Msg("discarding signal-quality estimate")
			ev.Quality.Available = false
		} else {
			signalQuality = probability.ModelEstimate{Prob: ev.Quality.UpProb, Available: true}
		}
	}

	ev.Ensemble = probability.ComputeEnsemble(probability.EnsembleInput{
		VolImplied:        probability.Available(ev.VolImplied),
		TAScore:           probability.Available(&taUp),
		Blended:           probability.Available(&ev.Blend.Up),
		SignalQuality:     signalQuality,
		QualityConfidence: ev.Quality.Confidence,
		Regime:            current,
		Volatility:        ev.Volatility,
		Imbalance:         imbalance,
	}, st.Ensemble)

	ev.Edge = edge.Compute(edge.Input{
		ModelUp:        ev.Ensemble.FinalUp,
		ModelDown:      ev.Ensemble.FinalDown,
		MarketUp:       tick.MarketUp,
		MarketDown:     tick.MarketDown,
		Imbalance:      imbalance,
		UpSpread:       tick.UpBook.Spread,
		DownSpread:     tick.DownBook.Spread,
		CrossFeedDelta: crossDelta,
	}, st.Edge)

	ev.Thresholds = s.thresholds.Thresholds(tick.MarketID, current, phase)

	in := decision.Input{
		MarketID:         tick.MarketID,
		Now:              tick.Now,
		RemainingMinutes: remaining,
		ModelUp:          ev.Ensemble.FinalUp,
		ModelDown:        ev.Ensemble.FinalDown,
		Edge:             ev.Edge,
		Regime:           current,
		Volatility:       ev.Volatility,
		TA:               ev.TA,
		Agreement:        ev.Ensemble.Agreement,
		Imbalance:        imbalance,
		UpSpread:         tick.UpBook.Spread,
		DownSpread:       tick.DownBook.Spread,
		Thresholds:       ev.Thresholds,
		MissingStrike:    tick.PriceToBeat == nil,
	}
	if s.ledger != nil {
		in.StopLossHit = s.ledger.StopLossHit()
		in.PositionOpen = s.ledger.HasOpenPosition(tick.MarketID, ev.WindowStartMs)
	}
	res := decision.Decide(in, st.Decision)
	ev.Decision = res.Decision
	ev.Confidence = res.Confidence
	span.SetAttributes(
		attribute.String("action", string(ev.Decision.Action)),
		attribute.String("reason", ev.Decision.Reason),
	)

	if !ev.Decision.Entered() {
		log.Debug().
			Str("market", tick.MarketID).
			Str("reason", ev.Decision.Reason).
			Str("regime", string(current)).
			Float64("final_up", ev.Ensemble.FinalUp).
			Msg("no trade")
		return ev, nil
	}

	side := *ev.Decision.Side
	plan, ok := execution.SelectStrategy(ev.Decision, *tick.MarketUp, *tick.MarketDown, st.Orders, st.Edge.Fees)
	if ok {
		ev.Order = &plan
	}
	ev.QualityFeatures = s.qualityFeatures(tick, ev, side, ev.Decision.Edge, current)
	log.Info().
		Str("market", tick.MarketID).
		Str("side", string(side)).
		Str("strength", string(ev.Decision.Strength)).
		Float64("edge", ev.Decision.Edge).
		Float64("confidence", ev.Decision.Confidence).
		Float64("quality", ev.Decision.TradeQuality).
		Str("order", string(plan.Strategy.Type)).
		Msg("entry signal")
	return ev, nil
}

func (s *Session) qualityFeatures(tick domain.MarketTick, ev Evaluation, side domain.Side, edgeValue float64, r domain.Regime) []float64 {
	spread := tick.UpBook.Spread
	if side == domain.SideDown {
		spread = tick.DownBook.Spread
	}
	return quality.FeatureVector(quality.FeatureInput{
		Side:             side,
		Edge:             edgeValue,
		TAAlignment:      ev.TA.Alignment(side == domain.SideUp),
		Volatility:       ev.Volatility,
		RemainingMinutes: tick.RemainingMinutes(),
		WindowMinutes:    tick.WindowMinutes(),
		Imbalance:        tick.UpBook.Imbalance(),
		Spread:           spread,
		Regime:           r,
	})
}

// RecordEntry registers a filled entry with the settlement ledger and stores
// its signal metadata for the feedback loop.
func (s *Session) RecordEntry(ctx context.Context, ev Evaluation, fill execution.Fill) (domain.PendingTrade, error) {
	_, span := s.tracer.Start(ctx, "engine.record_entry")
	defer span.End()

	if !ev.Decision.Entered() {
		return domain.PendingTrade{}, ErrNotEntered
	}
	enteredAt := fill.FilledAt
	if enteredAt.IsZero() {
		enteredAt = time.Now().UTC()
	}
	trade := domain.PendingTrade{
		ID:            fill.OrderID,
		MarketID:      ev.MarketID,
		WindowStartMs: ev.WindowStartMs,
		Side:          *ev.Decision.Side,
		EntryPrice:    fill.Price,
		Size:          fill.Size,
		PriceToBeat:   ev.PriceToBeat,
		Live:          fill.Live,
		EnteredAt:     enteredAt,
	}
	span.SetAttributes(attribute.String("trade_id", trade.ID), attribute.String("market", trade.MarketID))

	if s.ledger != nil {
		if err := s.ledger.Add(trade); err != nil {
			return domain.PendingTrade{}, fmt.Errorf("register trade %s: %w", trade.ID, err)
		}
	}
	if s.signals != nil {
		meta := domain.SignalMetadata{
			TradeID:    trade.ID,
			MarketID:   trade.MarketID,
			Side:       trade.Side,
			Edge:       ev.Decision.Edge,
			Confidence: ev.Decision.Confidence,
			Quality:    ev.Decision.TradeQuality,
			Phase:      ev.Decision.Phase,
			Regime:     ev.Decision.Regime,
			Features:   ev.QualityFeatures,
			CreatedAt:  enteredAt,
		}
		if err := s.signals.Put(ctx, meta); err != nil {
			log.Warn().Err(err).Str("trade_id", trade.ID).Msg("failed to store signal metadata")
		}
	}
	return trade, nil
}

// CancelEntry withdraws a recorded entry whose order could not be handed off.
func (s *Session) CancelEntry(ctx context.Context, trade domain.PendingTrade) error {
	_, span := s.tracer.Start(ctx, "engine.cancel_entry")
	defer span.End()
	span.SetAttributes(attribute.String("trade_id", trade.ID))

	if s.ledger != nil {
		if err := s.ledger.Cancel(trade.ID); err != nil {
			return fmt.Errorf("cancel trade %s: %w", trade.ID, err)
		}
	}
	if s.signals != nil {
		if _, err := s.signals.Take(ctx, trade.ID); err != nil {
			log.Debug().Err(err).Str("trade_id", trade.ID).Msg("no signal metadata to discard")
		}
	}
	return nil
}

// Thresholds exposes the current adaptive thresholds for reporting.
func (s *Session) Thresholds(marketID string, r domain.Regime, phase domain.Phase) domain.AdjustedThresholds {
	return s.thresholds.Thresholds(marketID, r, phase)
}

// RegimeState reports the confirmed regime of a market, if it has been seen.
func (s *Session) RegimeState(marketID string) (regime.State, bool) {
	return s.regimes.State(marketID)
}

// Snapshot is the rolling performance of a market, nil until it has enough settled trades.
func (s *Session) Snapshot(marketID string) *domain.PerformanceSnapshot {
	return s.perf.Snapshot(marketID)
}

// crossFeedDelta is (spot-oracle)/oracle when both feeds are present.
func crossFeedDelta(t domain.MarketTick) *float64 {
	if t.SpotPrice == nil || t.OraclePrice == nil || *t.OraclePrice <= 0 {
		return nil
	}
	return ptr((*t.SpotPrice - *t.OraclePrice) / *t.OraclePrice)
}

// leaningEdge is the blended edge on the leaning side, or 0 without market prices.
func leaningEdge(t domain.MarketTick, b probability.BlendResult, side domain.Side) float64 {
	if side == domain.SideDown {
		if t.MarketDown == nil {
			return 0
		}
		return b.Down - *t.MarketDown
	}
	if t.MarketUp == nil {
		return 0
	}
	return b.Up - *t.MarketUp
}
