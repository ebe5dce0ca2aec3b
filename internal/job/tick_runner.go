package job

import (
	"context"
	"errors"
	"time"

	"updown-trader/internal/domain"
	"updown-trader/internal/engine"
	"updown-trader/internal/execution"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var errNoPublisher = errors.New("no decision publisher for live handoff")

type MarketFeed interface {
	Tick(ctx context.Context, marketID string, now time.Time) (domain.MarketTick, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, tick domain.MarketTick) (engine.Evaluation, error)
	RecordEntry(ctx context.Context, ev engine.Evaluation, fill execution.Fill) (domain.PendingTrade, error)
	CancelEntry(ctx context.Context, trade domain.PendingTrade) error
}

type TradeSaver interface {
	SaveEntry(ctx context.Context, trade domain.PendingTrade) error
}

type DecisionPublisher interface {
	Publish(ctx context.Context, ev engine.Evaluation, trade domain.PendingTrade) error
}

type DecisionRecorder interface {
	RecordDecision(ev engine.Evaluation)
}

// TickDeps are the collaborators of the tick loop. Saver, Publisher and
// Recorder are optional.
type TickDeps struct {
	Feed      MarketFeed
	Session   Evaluator
	Sizer     execution.Sizer
	Executor  execution.Executor
	Saver     TradeSaver
	Publisher DecisionPublisher
	Recorder  DecisionRecorder
}

// TickRunner evaluates every configured market once per tick interval.
type TickRunner struct {
	tracer       trace.Tracer
	deps         TickDeps
	markets      []string
	pollInterval time.Duration
	now          func() time.Time
}

func NewTickRunner(tracer trace.Tracer, deps TickDeps, markets []string, pollIntervalSecs int) *TickRunner {
	interval := time.Duration(pollIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &TickRunner{
		tracer:       tracer,
		deps:         deps,
		markets:      markets,
		pollInterval: interval,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start runs a tick immediately and then every poll interval. Blocks until ctx is cancelled.
func (r *TickRunner) Start(ctx context.Context) {
	if r.deps.Feed == nil || r.deps.Session == nil {
		log.Warn().Msg("tick runner disabled: no feed or session")
		<-ctx.Done()
		return
	}
	log.Info().Strs("markets", r.markets).Dur("interval", r.pollInterval).Msg("tick runner starting")

	r.runOnce(ctx)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("tick runner stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *TickRunner) runOnce(ctx context.Context) {
	ctx, span := r.tracer.Start(ctx, "tick-runner.run-once")
	defer span.End()

	now := r.now()
	entered := 0
	for _, market := range r.markets {
		if ctx.Err() != nil {
			return
		}
		if r.tickMarket(ctx, market, now) {
			entered++
		}
	}
	span.SetAttributes(attribute.Int("markets", len(r.markets)), attribute.Int("entered", entered))
}

// tickMarket evaluates one market and executes an entry. It reports whether a
// trade was recorded.
func (r *TickRunner) tickMarket(ctx context.Context, market string, now time.Time) bool {
	tick, err := r.deps.Feed.Tick(ctx, market, now)
	if err != nil {
		log.Debug().Err(err).Str("market", market).Msg("no tick")
		return false
	}
	ev, err := r.deps.Session.Evaluate(ctx, tick)
	if err != nil {
		log.Warn().Err(err).Str("market", market).Msg("tick rejected")
		return false
	}
	if r.deps.Recorder != nil {
		r.deps.Recorder.RecordDecision(ev)
	}
	if !ev.Decision.Entered() || ev.Order == nil {
		return false
	}
	if r.deps.Sizer == nil || r.deps.Executor == nil {
		log.Warn().Str("market", market).Msg("entry skipped: no executor configured")
		return false
	}

	size := r.deps.Sizer.Size(ev.Decision, *ev.Order)
	fill, err := r.deps.Executor.Execute(ctx, *ev.Order, size)
	if err != nil {
		log.Warn().Err(err).Str("market", market).Float64("size", size).Msg("order execution failed")
		return false
	}
	trade, err := r.deps.Session.RecordEntry(ctx, ev, fill)
	if err != nil {
		log.Error().Err(err).Str("market", market).Str("order_id", fill.OrderID).Msg("failed to record entry")
		return false
	}
	if fill.Live {
		// A live fill is only real once the exchange client has the order.
		if err := r.handoff(ctx, ev, trade); err != nil {
			log.Error().Err(err).Str("trade_id", trade.ID).Msg("live handoff failed, withdrawing entry")
			if err := r.deps.Session.CancelEntry(ctx, trade); err != nil {
				log.Error().Err(err).Str("trade_id", trade.ID).Msg("failed to withdraw entry")
			}
			return false
		}
	}
	if r.deps.Saver != nil {
		if err := r.deps.Saver.SaveEntry(ctx, trade); err != nil {
			log.Warn().Err(err).Str("trade_id", trade.ID).Msg("failed to persist trade")
		}
	}
	if !fill.Live && r.deps.Publisher != nil {
		if err := r.deps.Publisher.Publish(ctx, ev, trade); err != nil {
			log.Warn().Err(err).Str("trade_id", trade.ID).Msg("failed to publish decision")
		}
	}
	return true
}

func (r *TickRunner) handoff(ctx context.Context, ev engine.Evaluation, trade domain.PendingTrade) error {
	if r.deps.Publisher == nil {
		return errNoPublisher
	}
	return r.deps.Publisher.Publish(ctx, ev, trade)
}
