package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"updown-trader/internal/domain"
	"updown-trader/internal/performance"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrDuplicateTrade = errors.New("trade already tracked")
	ErrInvalidTrade   = errors.New("invalid pending trade")
	ErrUnknownTrade   = errors.New("no unresolved trade with that id")
)

type Config struct {
	WindowMinutes     float64
	DailyLossLimitUSD float64
	// StaleWindows is how many window lengths past its end an unresolved trade is kept.
	StaleWindows float64
}

type MetadataSource interface {
	Take(ctx context.Context, tradeID string) (domain.SignalMetadata, error)
}

type PerformanceRecorder interface {
	Record(marketID string, rec performance.TradeRecord)
}

type QualityObserver interface {
	Observe(ctx context.Context, meta domain.SignalMetadata, won bool)
}

type TradeMirror interface {
	MarkResolved(ctx context.Context, trade domain.PendingTrade) error
}

// Listener receives each settlement pass that resolved at least one trade.
type Listener interface {
	OnSettled(ctx context.Context, results []domain.SettlementResult, stats domain.AggregateStats)
}

// Deps are the optional collaborators fed after a trade resolves. Nil fields are skipped.
type Deps struct {
	Metadata    MetadataSource
	Performance PerformanceRecorder
	Quality     QualityObserver
	Mirror      TradeMirror
	Listeners   []Listener
}

// Engine is the in-process source of truth for which trades are resolved.
// All ledger state sits behind one mutex; feedback calls run after it is released.
type Engine struct {
	cfg    Config
	deps   Deps
	tracer trace.Tracer
	now    func() time.Time

	mu          sync.Mutex
	trades      map[string]*domain.PendingTrade
	counted     map[string]struct{}
	wins        int
	losses      int
	totalPnL    decimal.Decimal
	peakPnL     decimal.Decimal
	maxDrawdown decimal.Decimal
	daily       map[string]decimal.Decimal
}

func NewEngine(cfg Config, deps Deps, tracer trace.Tracer) *Engine {
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = 15
	}
	if cfg.StaleWindows <= 0 {
		cfg.StaleWindows = 2
	}
	return &Engine{
		cfg:     cfg,
		deps:    deps,
		tracer:  tracer,
		now:     func() time.Time { return time.Now().UTC() },
		trades:  make(map[string]*domain.PendingTrade),
		counted: make(map[string]struct{}),
		daily:   make(map[string]decimal.Decimal),
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Add registers a new entry. Live trades debit their worst-case cost from
// today's PnL immediately.
func (e *Engine) Add(trade domain.PendingTrade) error {
	if trade.ID == "" || trade.Size <= 0 || trade.EntryPrice <= 0 || trade.EntryPrice >= 1 {
		return fmt.Errorf("%w: %+v", ErrInvalidTrade, trade)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.trades[trade.ID]; ok {
		return ErrDuplicateTrade
	}
	if trade.EnteredAt.IsZero() {
		trade.EnteredAt = e.now()
	}
	t := trade
	e.trades[t.ID] = &t
	e.debitLocked(t)
	return nil
}

func (e *Engine) debitLocked(t domain.PendingTrade) {
	if !t.Live {
		return
	}
	key := dayKey(t.EnteredAt)
	e.daily[key] = e.daily[key].Sub(entryCost(t))
}

func entryCost(t domain.PendingTrade) decimal.Decimal {
	return decimal.NewFromFloat(t.Size).Mul(decimal.NewFromFloat(t.EntryPrice))
}

// Cancel drops an unresolved trade whose order never reached the exchange and
// refunds its entry debit.
func (e *Engine) Cancel(tradeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trades[tradeID]
	if !ok || t.Resolved {
		return fmt.Errorf("%w: %s", ErrUnknownTrade, tradeID)
	}
	if t.Live {
		key := dayKey(t.EnteredAt)
		e.daily[key] = e.daily[key].Add(entryCost(*t))
	}
	delete(e.trades, tradeID)
	return nil
}

// Restore reloads unresolved trades after a restart. Live trades owe their
// entry debit again since the daily ledger is not persisted.
func (e *Engine) Restore(trades []domain.PendingTrade) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, trade := range trades {
		if trade.Resolved || trade.ID == "" {
			continue
		}
		if _, ok := e.trades[trade.ID]; ok {
			continue
		}
		t := trade
		if t.EnteredAt.IsZero() {
			t.EnteredAt = e.now()
		}
		e.trades[t.ID] = &t
		e.debitLocked(t)
		n++
	}
	return n
}

// UpWins is the fixed outcome rule: a tie resolves DOWN.
func UpWins(finalPrice, priceToBeat float64) bool {
	return finalPrice > priceToBeat
}

// PnL is size*(1-entry) on a win and -size*entry on a loss.
func PnL(won bool, size, entryPrice float64) decimal.Decimal {
	s := decimal.NewFromFloat(size)
	p := decimal.NewFromFloat(entryPrice)
	if won {
		return s.Mul(decimal.NewFromInt(1).Sub(p))
	}
	return s.Mul(p).Neg()
}

type settled struct {
	result domain.SettlementResult
	trade  domain.PendingTrade
}

// Settle resolves every unresolved trade of the given window whose market has a
// final price. Re-running it for the same window is a no-op.
func (e *Engine) Settle(ctx context.Context, windowStartMs int64, finalPrices map[string]float64) []domain.SettlementResult {
	_, span := e.tracer.Start(ctx, "settlement.settle")
	defer span.End()
	span.SetAttributes(attribute.Int64("window_start_ms", windowStartMs))

	e.mu.Lock()
	var done []settled
	for _, id := range e.sortedIDsLocked() {
		t := e.trades[id]
		if t.Resolved || t.WindowStartMs != windowStartMs {
			continue
		}
		final, ok := finalPrices[t.MarketID]
		if !ok {
			continue
		}
		upWins := UpWins(final, t.PriceToBeat)
		won := upWins == (t.Side == domain.SideUp)
		pnl := PnL(won, t.Size, t.EntryPrice)

		t.Resolved = true
		t.Won = won
		t.PnL = pnl.InexactFloat64()
		t.SettlePrice = final
		e.applyLocked(*t, pnl)

		done = append(done, settled{
			trade: *t,
			result: domain.SettlementResult{
				TradeID:       t.ID,
				MarketID:      t.MarketID,
				WindowStartMs: t.WindowStartMs,
				Side:          t.Side,
				Won:           won,
				PnL:           t.PnL,
				SettlePrice:   final,
			},
		})
	}
	stats := e.statsLocked()
	e.mu.Unlock()

	span.SetAttributes(attribute.Int("settled", len(done)))
	if len(done) == 0 {
		return nil
	}

	results := make([]domain.SettlementResult, 0, len(done))
	for _, s := range done {
		results = append(results, s.result)
		e.feedback(ctx, s)
		log.Info().
			Str("market", s.result.MarketID).
			Str("trade_id", s.result.TradeID).
			Int64("window_start", s.result.WindowStartMs).
			Bool("won", s.result.Won).
			Float64("pnl", s.result.PnL).
			Msg("trade settled")
	}
	for _, l := range e.deps.Listeners {
		l.OnSettled(ctx, results, stats)
	}
	return results
}

func (e *Engine) applyLocked(t domain.PendingTrade, pnl decimal.Decimal) {
	if _, ok := e.counted[t.ID]; ok {
		return
	}
	e.counted[t.ID] = struct{}{}
	if t.Won {
		e.wins++
	} else {
		e.losses++
	}
	e.totalPnL = e.totalPnL.Add(pnl)
	if e.totalPnL.GreaterThan(e.peakPnL) {
		e.peakPnL = e.totalPnL
	}
	if dd := e.peakPnL.Sub(e.totalPnL); dd.GreaterThan(e.maxDrawdown) {
		e.maxDrawdown = dd
	}

	key := dayKey(e.now())
	switch {
	case !t.Live:
		e.daily[key] = e.daily[key].Add(pnl)
	case t.Won:
		// The entry debit already covered the loss case; a win returns the full payout.
		e.daily[key] = e.daily[key].Add(decimal.NewFromFloat(t.Size))
	}
}

func (e *Engine) feedback(ctx context.Context, s settled) {
	rec := performance.TradeRecord{Won: s.result.Won, SettledAt: e.now()}
	var meta *domain.SignalMetadata
	if e.deps.Metadata != nil {
		m, err := e.deps.Metadata.Take(ctx, s.trade.ID)
		if err != nil {
			log.Debug().Err(err).Str("trade_id", s.trade.ID).Msg("no signal metadata for settled trade")
		} else {
			meta = &m
			rec.Edge = m.Edge
			rec.Confidence = m.Confidence
			rec.Regime = m.Regime
			rec.Phase = m.Phase
		}
	}
	if e.deps.Performance != nil {
		e.deps.Performance.Record(s.trade.MarketID, rec)
	}
	if e.deps.Quality != nil && meta != nil {
		e.deps.Quality.Observe(ctx, *meta, s.result.Won)
	}
	if e.deps.Mirror != nil {
		if err := e.deps.Mirror.MarkResolved(ctx, s.trade); err != nil {
			log.Warn().Err(err).Str("trade_id", s.trade.ID).Msg("failed to persist settlement")
		}
	}
}

// CleanupStale drops trades whose window ended more than StaleWindows window
// lengths ago. Unresolved drops are logged; the exchange stays authoritative.
func (e *Engine) CleanupStale(now time.Time) int {
	window := time.Duration(e.cfg.WindowMinutes * float64(time.Minute))
	cutoff := time.Duration(e.cfg.StaleWindows * float64(window))

	e.mu.Lock()
	defer e.mu.Unlock()
	dropped := 0
	for id, t := range e.trades {
		end := time.UnixMilli(t.WindowStartMs).Add(window)
		if now.Sub(end) <= cutoff {
			continue
		}
		if !t.Resolved {
			log.Warn().
				Str("market", t.MarketID).
				Str("trade_id", t.ID).
				Int64("window_start", t.WindowStartMs).
				Msg("dropping stale unresolved trade")
			dropped++
		}
		delete(e.trades, id)
		delete(e.counted, id)
	}
	return dropped
}

// DueWindows returns, per window start, the markets with unresolved trades whose
// window has closed by now.
func (e *Engine) DueWindows(now time.Time) map[int64][]string {
	window := time.Duration(e.cfg.WindowMinutes * float64(time.Minute))
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[int64]map[string]struct{})
	for _, t := range e.trades {
		if t.Resolved || now.Before(time.UnixMilli(t.WindowStartMs).Add(window)) {
			continue
		}
		if seen[t.WindowStartMs] == nil {
			seen[t.WindowStartMs] = make(map[string]struct{})
		}
		seen[t.WindowStartMs][t.MarketID] = struct{}{}
	}
	out := make(map[int64][]string, len(seen))
	for w, markets := range seen {
		list := make([]string, 0, len(markets))
		for m := range markets {
			list = append(list, m)
		}
		sort.Strings(list)
		out[w] = list
	}
	return out
}

// Pending lists unresolved trades ordered by entry time.
func (e *Engine) Pending() []domain.PendingTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.PendingTrade, 0, len(e.trades))
	for _, id := range e.sortedIDsLocked() {
		if t := e.trades[id]; !t.Resolved {
			out = append(out, *t)
		}
	}
	return out
}

// HasOpenPosition reports whether a market already has an unresolved trade in the window.
func (e *Engine) HasOpenPosition(marketID string, windowStartMs int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.trades {
		if !t.Resolved && t.MarketID == marketID && t.WindowStartMs == windowStartMs {
			return true
		}
	}
	return false
}

func (e *Engine) TodayPnL() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.daily[dayKey(e.now())].InexactFloat64()
}

// StopLossHit reports whether today's losses reached the configured limit.
func (e *Engine) StopLossHit() bool {
	if e.cfg.DailyLossLimitUSD <= 0 {
		return false
	}
	return e.TodayPnL() <= -e.cfg.DailyLossLimitUSD
}

func (e *Engine) Stats() domain.AggregateStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statsLocked()
}

func (e *Engine) statsLocked() domain.AggregateStats {
	total := e.wins + e.losses
	stats := domain.AggregateStats{
		TotalTrades: total,
		Wins:        e.wins,
		Losses:      e.losses,
		TotalPnL:    e.totalPnL.InexactFloat64(),
		MaxDrawdown: e.maxDrawdown.InexactFloat64(),
		TodayPnL:    e.daily[dayKey(e.now())].InexactFloat64(),
	}
	if total > 0 {
		stats.WinRate = float64(e.wins) / float64(total)
	}
	for _, t := range e.trades {
		if !t.Resolved {
			stats.Pending++
		}
	}
	return stats
}

func (e *Engine) sortedIDsLocked() []string {
	ids := make([]string, 0, len(e.trades))
	for id := range e.trades {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := e.trades[ids[i]], e.trades[ids[j]]
		if !a.EnteredAt.Equal(b.EnteredAt) {
			return a.EnteredAt.Before(b.EnteredAt)
		}
		return ids[i] < ids[j]
	})
	return ids
}
