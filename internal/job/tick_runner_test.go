package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"updown-trader/internal/domain"
	"updown-trader/internal/engine"
	"updown-trader/internal/execution"

	"go.opentelemetry.io/otel/trace"
)

type stubFeed struct {
	mu    sync.Mutex
	calls []string
	err   map[string]error
}

func (f *stubFeed) Tick(ctx context.Context, marketID string, now time.Time) (domain.MarketTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, marketID)
	if err := f.err[marketID]; err != nil {
		return domain.MarketTick{}, err
	}
	return domain.MarketTick{MarketID: marketID, Now: now}, nil
}

func (f *stubFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type stubSession struct {
	enter     map[string]bool
	recordErr error
	recorded  []execution.Fill
	cancelled []string
}

func (s *stubSession) Evaluate(ctx context.Context, tick domain.MarketTick) (engine.Evaluation, error) {
	ev := engine.Evaluation{
		MarketID: tick.MarketID,
		Decision: domain.TradeDecision{MarketID: tick.MarketID, Action: domain.ActionNoTrade, Reason: "market_too_close"},
	}
	if s.enter[tick.MarketID] {
		side := domain.SideUp
		ev.Decision.Action = domain.ActionEnter
		ev.Decision.Side = &side
		ev.Decision.Reason = ""
		ev.Order = &execution.OrderPlan{
			MarketID: tick.MarketID,
			Side:     side,
			Strategy: execution.OrderStrategyResult{Type: execution.OrderResting, Price: 0.5},
		}
	}
	return ev, nil
}

func (s *stubSession) RecordEntry(ctx context.Context, ev engine.Evaluation, fill execution.Fill) (domain.PendingTrade, error) {
	if s.recordErr != nil {
		return domain.PendingTrade{}, s.recordErr
	}
	s.recorded = append(s.recorded, fill)
	return domain.PendingTrade{ID: fill.OrderID, MarketID: ev.MarketID, Size: fill.Size}, nil
}

func (s *stubSession) CancelEntry(ctx context.Context, trade domain.PendingTrade) error {
	s.cancelled = append(s.cancelled, trade.ID)
	return nil
}

type stubExecutor struct {
	err   error
	live  bool
	sizes []float64
}

func (e *stubExecutor) Execute(ctx context.Context, plan execution.OrderPlan, size float64) (execution.Fill, error) {
	if e.err != nil {
		return execution.Fill{}, e.err
	}
	e.sizes = append(e.sizes, size)
	return execution.Fill{OrderID: "order-" + plan.MarketID, MarketID: plan.MarketID, Side: plan.Side, Price: plan.Strategy.Price, Size: size, Live: e.live}, nil
}

type stubSaver struct {
	saved []domain.PendingTrade
	err   error
}

func (s *stubSaver) SaveEntry(ctx context.Context, trade domain.PendingTrade) error {
	s.saved = append(s.saved, trade)
	return s.err
}

type stubPublisher struct {
	published []string
	err       error
}

func (p *stubPublisher) Publish(ctx context.Context, ev engine.Evaluation, trade domain.PendingTrade) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, trade.ID)
	return nil
}

type stubRecorder struct{ decisions []domain.Action }

func (r *stubRecorder) RecordDecision(ev engine.Evaluation) {
	r.decisions = append(r.decisions, ev.Decision.Action)
}

func newRunner(deps TickDeps, markets ...string) *TickRunner {
	r := NewTickRunner(trace.NewNoopTracerProvider().Tracer("test"), deps, markets, 1)
	r.now = func() time.Time { return time.Date(2026, 1, 2, 12, 5, 0, 0, time.UTC) }
	return r
}

func TestNewTickRunnerDefaultsInterval(t *testing.T) {
	r := NewTickRunner(trace.NewNoopTracerProvider().Tracer("test"), TickDeps{}, nil, 0)
	if r.pollInterval != 5*time.Second {
		t.Fatalf("expected 5s default, got %v", r.pollInterval)
	}
}

func TestTickRunnerEntersAndFansOut(t *testing.T) {
	feed := &stubFeed{err: map[string]error{"SOL": errors.New("no snapshot")}}
	session := &stubSession{enter: map[string]bool{"BTC": true}}
	exec := &stubExecutor{}
	saver := &stubSaver{err: errors.New("db down")}
	pub := &stubPublisher{}
	rec := &stubRecorder{}
	r := newRunner(TickDeps{
		Feed:      feed,
		Session:   session,
		Sizer:     execution.FixedStakeSizer{StakeUSD: 5},
		Executor:  exec,
		Saver:     saver,
		Publisher: pub,
		Recorder:  rec,
	}, "BTC", "ETH", "SOL")

	r.runOnce(context.Background())

	if feed.count() != 3 {
		t.Fatalf("expected 3 feed reads, got %d", feed.count())
	}
	if len(rec.decisions) != 2 {
		t.Fatalf("expected 2 recorded decisions, got %v", rec.decisions)
	}
	if len(exec.sizes) != 1 || exec.sizes[0] != 10 {
		t.Fatalf("expected one order of 10 shares, got %v", exec.sizes)
	}
	if len(session.recorded) != 1 || len(saver.saved) != 1 {
		t.Fatalf("entry not recorded and mirrored: %d %d", len(session.recorded), len(saver.saved))
	}
	if len(pub.published) != 1 || pub.published[0] != "order-BTC" {
		t.Fatalf("unexpected published %v", pub.published)
	}
}

func TestTickRunnerStopsOnExecutionFailure(t *testing.T) {
	session := &stubSession{enter: map[string]bool{"BTC": true}}
	saver := &stubSaver{}
	r := newRunner(TickDeps{
		Feed:     &stubFeed{},
		Session:  session,
		Sizer:    execution.FixedStakeSizer{StakeUSD: 5},
		Executor: &stubExecutor{err: errors.New("rejected")},
		Saver:    saver,
	}, "BTC")

	r.runOnce(context.Background())
	if len(session.recorded) != 0 || len(saver.saved) != 0 {
		t.Fatal("failed execution must not record a trade")
	}

	session.recordErr = errors.New("duplicate")
	r.deps.Executor = &stubExecutor{}
	r.runOnce(context.Background())
	if len(saver.saved) != 0 {
		t.Fatal("unrecorded entry must not be mirrored")
	}
}

func TestTickRunnerWithdrawsLiveEntryWhenHandoffFails(t *testing.T) {
	session := &stubSession{enter: map[string]bool{"BTC": true}}
	saver := &stubSaver{}
	pub := &stubPublisher{err: errors.New("broker down")}
	r := newRunner(TickDeps{
		Feed:      &stubFeed{},
		Session:   session,
		Sizer:     execution.FixedStakeSizer{StakeUSD: 5},
		Executor:  &stubExecutor{live: true},
		Saver:     saver,
		Publisher: pub,
	}, "BTC")

	if r.tickMarket(context.Background(), "BTC", r.now()) {
		t.Fatal("entry must not count when the handoff fails")
	}
	if len(session.cancelled) != 1 || session.cancelled[0] != "order-BTC" {
		t.Fatalf("expected entry withdrawn, got %v", session.cancelled)
	}
	if len(saver.saved) != 0 {
		t.Fatal("withdrawn entry must not be mirrored")
	}

	pub.err = nil
	if !r.tickMarket(context.Background(), "BTC", r.now()) {
		t.Fatal("expected live entry after a successful handoff")
	}
	if len(pub.published) != 1 || len(saver.saved) != 1 || len(session.cancelled) != 1 {
		t.Fatalf("unexpected handoff state: published=%v saved=%d cancelled=%v", pub.published, len(saver.saved), session.cancelled)
	}
}

func TestTickRunnerLiveEntryNeedsPublisher(t *testing.T) {
	session := &stubSession{enter: map[string]bool{"BTC": true}}
	r := newRunner(TickDeps{
		Feed:     &stubFeed{},
		Session:  session,
		Sizer:    execution.FixedStakeSizer{StakeUSD: 5},
		Executor: &stubExecutor{live: true},
	}, "BTC")

	if r.tickMarket(context.Background(), "BTC", r.now()) || len(session.cancelled) != 1 {
		t.Fatalf("live entry without a publisher must be withdrawn, cancelled=%v", session.cancelled)
	}
}

func TestTickRunnerStart(t *testing.T) {
	t.Parallel()

	feed := &stubFeed{}
	r := newRunner(TickDeps{Feed: feed, Session: &stubSession{}}, "BTC")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	eventually(t, func() bool { return feed.count() > 0 })
	cancel()
	<-done
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}
