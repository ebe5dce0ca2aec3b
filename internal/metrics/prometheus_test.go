package metrics

import (
	"context"
	"testing"

	"updown-trader/internal/domain"
	"updown-trader/internal/engine"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReasonClass(t *testing.T) {
	cases := map[string]string{
		"edge_0.031_below_0.05":    "edge_below",
		"vig_too_high_1.07":        "vig_too_high",
		"regime_CHOP_disabled":     "regime_CHOP_disabled",
		"daily_loss_limit_reached": "daily_loss_limit_reached",
		"":                         "unknown",
	}
	for in, want := range cases {
		if got := ReasonClass(in); got != want {
			t.Fatalf("ReasonClass(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	side := domain.SideUp
	r.RecordDecision(engine.Evaluation{Decision: domain.TradeDecision{MarketID: "BTC", Action: domain.ActionEnter, Side: &side, Edge: 0.12}})
	r.RecordDecision(engine.Evaluation{Decision: domain.TradeDecision{MarketID: "BTC", Action: domain.ActionNoTrade, Reason: "prob_0.51_below_0.55"}})
	r.RecordDecision(engine.Evaluation{Decision: domain.TradeDecision{MarketID: "BTC", Action: domain.ActionNoTrade, Reason: "prob_0.52_below_0.55"}})

	if got := testutil.ToFloat64(r.decisions.WithLabelValues("BTC", "NO_TRADE")); got != 2 {
		t.Fatalf("expected 2 no-trade decisions, got %v", got)
	}
	if got := testutil.ToFloat64(r.rejections.WithLabelValues("BTC", "prob_below")); got != 2 {
		t.Fatalf("expected 2 prob rejections, got %v", got)
	}
	if got := testutil.CollectAndCount(r.edge); got != 1 {
		t.Fatalf("expected edge histogram collected, got %d", got)
	}
}

func TestOnSettled(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.OnSettled(context.Background(), []domain.SettlementResult{
		{MarketID: "BTC", Won: true},
		{MarketID: "BTC", Won: false},
		{MarketID: "ETH", Won: true},
	}, domain.AggregateStats{TotalPnL: 3.5, MaxDrawdown: 1.25})

	if got := testutil.ToFloat64(r.settlements.WithLabelValues("BTC", "win")); got != 1 {
		t.Fatalf("expected 1 BTC win, got %v", got)
	}
	if got := testutil.ToFloat64(r.totalPnL); got != 3.5 {
		t.Fatalf("unexpected pnl gauge %v", got)
	}
	if got := testutil.ToFloat64(r.maxDrawdown); got != 1.25 {
		t.Fatalf("unexpected drawdown gauge %v", got)
	}
}
