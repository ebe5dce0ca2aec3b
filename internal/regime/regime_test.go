package regime

import (
	"testing"
	"time"

	"updown-trader/internal/domain"
)

func ptr(v float64) *float64 { return &v }

var testCfg = Config{LowVolumeRatio: 0.6, FlatBand: 0.001, ChopCrossCount: 3, ConfirmTicks: 2}

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		in   Inputs
		want domain.Regime
	}{
		{"missing", Inputs{}, domain.RegimeRange},
		{"trend up", Inputs{Price: ptr(101), VWAP: ptr(100), VWAPSlope: ptr(0.1)}, domain.RegimeTrendUp},
		{"trend down", Inputs{Price: ptr(99), VWAP: ptr(100), VWAPSlope: ptr(-0.1)}, domain.RegimeTrendDown},
		{"crosses", Inputs{Price: ptr(101), VWAP: ptr(100), VWAPSlope: ptr(-0.1), Crosses: 4}, domain.RegimeChop},
		{"range", Inputs{Price: ptr(101), VWAP: ptr(100), VWAPSlope: ptr(-0.1), Crosses: 1}, domain.RegimeRange},
		{"low volume flat", Inputs{
			Price: ptr(100.05), VWAP: ptr(100), VWAPSlope: ptr(0.1),
			VolumeRecent: ptr(10), VolumeAvg: ptr(100),
		}, domain.RegimeChop},
	}
	for _, tc := range cases {
		if got := Detect(tc.in, testCfg).Regime; got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestScore(t *testing.T) {
	if Score(domain.RegimeTrendUp, domain.SideUp) != 1.0 {
		t.Fatal("aligned trend should score 1.0")
	}
	if Score(domain.RegimeTrendUp, domain.SideDown) != 0.2 {
		t.Fatal("opposed trend should score 0.2")
	}
	if Score(domain.RegimeChop, domain.SideUp) >= Score(domain.RegimeRange, domain.SideUp) {
		t.Fatal("chop must score below range")
	}
}

func TestTrackerRequiresConfirmation(t *testing.T) {
	reg := NewRegistry(testCfg)
	now := time.Now()
	up := Inputs{Price: ptr(101), VWAP: ptr(100), VWAPSlope: ptr(0.1)}
	down := Inputs{Price: ptr(99), VWAP: ptr(100), VWAPSlope: ptr(-0.1)}

	if got, _ := reg.Classify("BTC", up, now); got != domain.RegimeTrendUp {
		t.Fatalf("first observation sets regime, got %s", got)
	}
	if got, raw := reg.Classify("BTC", down, now); got != domain.RegimeTrendUp || raw.Regime != domain.RegimeTrendDown {
		t.Fatalf("single flip must not switch, got %s (raw %s)", got, raw.Regime)
	}
	if got, _ := reg.Classify("BTC", down, now); got != domain.RegimeTrendDown {
		t.Fatalf("confirmed flip must switch, got %s", got)
	}

	state, ok := reg.State("BTC")
	if !ok || state.Transitions != 1 {
		t.Fatalf("expected one transition, got %+v", state)
	}
	if _, ok := reg.State("ETH"); ok {
		t.Fatal("unseen market must have no state")
	}
}

func TestTrackerFlickerResetsCandidate(t *testing.T) {
	tr := &Tracker{}
	now := time.Now()
	tr.Observe(domain.RegimeRange, now, 2)
	tr.Observe(domain.RegimeChop, now, 2)
	tr.Observe(domain.RegimeRange, now, 2)
	if got := tr.Observe(domain.RegimeChop, now, 2); got != domain.RegimeRange {
		t.Fatalf("interrupted streak must not switch, got %s", got)
	}
}
