package performance

import (
	"math"
	"testing"

	"updown-trader/internal/domain"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

func testThresholdConfig(t *testing.T) ThresholdConfig {
	t.Helper()
	var cfg ThresholdConfig
	if err := defaults.Set(&cfg); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	return cfg
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func record(r *Registry, market string, wins ...bool) {
	for _, w := range wins {
		r.Record(market, TradeRecord{Won: w, Edge: 0.1, Confidence: 0.6})
	}
}

func TestSnapshotRequiresMinTrades(t *testing.T) {
	reg := NewRegistry(Config{WindowSize: 50, MinTrades: 5, RecentSize: 10, TrendDelta: 0.05})
	record(reg, "BTC", true, false, true, true)
	if reg.Snapshot("BTC") != nil {
		t.Fatal("expected nil snapshot below min trades")
	}
	record(reg, "BTC", false)
	snap := reg.Snapshot("BTC")
	if snap == nil || snap.TotalTrades != 5 || snap.Wins != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if reg.Snapshot("ETH") != nil {
		t.Fatal("unknown market must have no snapshot")
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	reg := NewRegistry(Config{WindowSize: 5, MinTrades: 1, RecentSize: 10, TrendDelta: 0.05})
	record(reg, "BTC", false, false, false, true, true, true, true, true)
	if reg.Len("BTC") != 5 {
		t.Fatalf("expected window of 5, got %d", reg.Len("BTC"))
	}
	snap := reg.Snapshot("BTC")
	if snap.Wins != 5 {
		t.Fatalf("oldest losses should be evicted, got %d wins", snap.Wins)
	}
	if snap.RecentWinRate != 1 {
		t.Fatalf("recent window covers min(10,total), got %.2f", snap.RecentWinRate)
	}
}

func TestTrendDetection(t *testing.T) {
	reg := NewRegistry(Config{WindowSize: 50, MinTrades: 5, RecentSize: 10, TrendDelta: 0.05})
	// 10 early losses then 10 wins: overall 0.5, recent 1.0.
	for i := 0; i < 10; i++ {
		record(reg, "BTC", false)
	}
	for i := 0; i < 10; i++ {
		record(reg, "BTC", true)
	}
	if snap := reg.Snapshot("BTC"); snap.Trend != domain.TrendImproving {
		t.Fatalf("expected improving, got %s", snap.Trend)
	}

	for i := 0; i < 10; i++ {
		record(reg, "ETH", true)
	}
	for i := 0; i < 10; i++ {
		record(reg, "ETH", false)
	}
	if snap := reg.Snapshot("ETH"); snap.Trend != domain.TrendDeclining {
		t.Fatalf("expected declining, got %s", snap.Trend)
	}

	if got := reg.Markets(); len(got) != 2 || got[0] != "BTC" {
		t.Fatalf("unexpected markets %v", got)
	}
}

func TestAdjustNeutralDefaults(t *testing.T) {
	cfg := testThresholdConfig(t)
	th := Adjust(nil, domain.RegimeRange, domain.PhaseMid, cfg)
	if !near(th.EdgeThreshold, 0.06) || !near(th.MinProb, 0.55) || !near(th.MinConfidence, 0.5) {
		t.Fatalf("unexpected neutral thresholds %+v", th)
	}
	if th.Reason != "neutral" || th.MinQuality != 0.55 {
		t.Fatalf("unexpected reason/quality %+v", th)
	}

	chopLate := Adjust(nil, domain.RegimeChop, domain.PhaseLate, cfg)
	if !near(chopLate.EdgeThreshold, 0.06*1.2*1.1) {
		t.Fatalf("regime and phase multipliers must apply without history, got %.4f", chopLate.EdgeThreshold)
	}
}

func TestAdjustPoorPerformance(t *testing.T) {
	cfg := testThresholdConfig(t)
	snap := &domain.PerformanceSnapshot{CurrentWinRate: 0.4, Trend: domain.TrendDeclining}
	th := Adjust(snap, domain.RegimeRange, domain.PhaseMid, cfg)
	if !near(th.EdgeThreshold, 0.06*1.5*1.1) {
		t.Fatalf("expected %.4f, got %.4f", 0.06*1.5*1.1, th.EdgeThreshold)
	}
	if !near(th.MinProb, 0.60) || !near(th.MinConfidence, 0.60) {
		t.Fatalf("unexpected additive bumps %+v", th)
	}
}

func TestAdjustClampsEdgeThreshold(t *testing.T) {
	cfg := testThresholdConfig(t)
	cfg.BaseEdgeThreshold = 0.2
	snap := &domain.PerformanceSnapshot{CurrentWinRate: 0.3, Trend: domain.TrendDeclining}
	if th := Adjust(snap, domain.RegimeChop, domain.PhaseLate, cfg); th.EdgeThreshold != 0.25 {
		t.Fatalf("expected ceiling 0.25, got %.4f", th.EdgeThreshold)
	}

	cfg.BaseEdgeThreshold = 0.02
	snap = &domain.PerformanceSnapshot{CurrentWinRate: 0.8, Trend: domain.TrendImproving}
	if th := Adjust(snap, domain.RegimeRange, domain.PhaseEarly, cfg); th.EdgeThreshold != 0.03 {
		t.Fatalf("expected floor 0.03, got %.4f", th.EdgeThreshold)
	}
}

func TestAdjustDisabledRegime(t *testing.T) {
	cfg := testThresholdConfig(t)
	cfg.RegimeMultipliers = map[domain.Regime]RegimeMultiplier{domain.RegimeChop: Disabled}
	th := Adjust(nil, domain.RegimeChop, domain.PhaseMid, cfg)
	if !th.RegimeDisabled {
		t.Fatal("expected disabled regime")
	}
	if th.Reason != "regime_CHOP_disabled" {
		t.Fatalf("unexpected reason %q", th.Reason)
	}
}

func TestRegimeMultiplierYAML(t *testing.T) {
	var cfg struct {
		Multipliers map[domain.Regime]RegimeMultiplier `yaml:"regime_multipliers"`
	}
	doc := "regime_multipliers:\n  CHOP: disabled\n  TREND_UP: 0.9\n"
	if err := yaml.Unmarshal([]byte(doc), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !cfg.Multipliers[domain.RegimeChop].IsDisabled() {
		t.Fatal("CHOP should be disabled")
	}
	if cfg.Multipliers[domain.RegimeTrendUp].Factor() != 0.9 {
		t.Fatalf("expected 0.9, got %v", cfg.Multipliers[domain.RegimeTrendUp])
	}

	bad := "regime_multipliers:\n  CHOP: sometimes\n"
	if err := yaml.Unmarshal([]byte(bad), &cfg); err == nil {
		t.Fatal("expected error for invalid multiplier")
	}
}

func TestManagerReadsRegistry(t *testing.T) {
	reg := NewRegistry(Config{WindowSize: 50, MinTrades: 5, RecentSize: 10, TrendDelta: 0.05})
	record(reg, "BTC", true, true, true, true, true)
	mgr := NewManager(testThresholdConfig(t), reg)
	th := mgr.Thresholds("BTC", domain.RegimeRange, domain.PhaseMid)
	if !near(th.EdgeThreshold, 0.06*0.8) {
		t.Fatalf("expected strong-band threshold, got %.4f", th.EdgeThreshold)
	}
}
