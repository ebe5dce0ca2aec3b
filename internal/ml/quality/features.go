package quality

import (
	"math"

	"updown-trader/internal/domain"
)

// FeatureNames is the fixed layout of the entry snapshot the model learns from.
var FeatureNames = []string{
	"edge",
	"ta_alignment",
	"volatility",
	"time_fraction",
	"book_pressure",
	"spread",
	"trend_aligned",
	"chop",
}

type FeatureInput struct {
	Side             domain.Side
	Edge             float64
	TAAlignment      float64
	Volatility       *float64
	RemainingMinutes float64
	WindowMinutes    float64
	// Imbalance is the UP book's liquidity imbalance.
	Imbalance *float64
	Spread    *float64
	Regime    domain.Regime
}

// FeatureVector encodes the snapshot from the point of view of the traded side.
// Missing inputs encode as 0.
func FeatureVector(in FeatureInput) []float64 {
	vol := 0.0
	if in.Volatility != nil && finite(*in.Volatility) {
		vol = *in.Volatility
	}
	timeFraction := 0.0
	if in.WindowMinutes > 0 {
		timeFraction = math.Max(0, math.Min(1, in.RemainingMinutes/in.WindowMinutes))
	}
	pressure := 0.0
	if in.Imbalance != nil && finite(*in.Imbalance) {
		pressure = *in.Imbalance
		if in.Side == domain.SideDown {
			pressure = -pressure
		}
	}
	spread := 0.0
	if in.Spread != nil && finite(*in.Spread) {
		spread = *in.Spread
	}
	trendAligned := 0.0
	if (in.Regime == domain.RegimeTrendUp && in.Side == domain.SideUp) ||
		(in.Regime == domain.RegimeTrendDown && in.Side == domain.SideDown) {
		trendAligned = 1
	}
	chop := 0.0
	if in.Regime == domain.RegimeChop {
		chop = 1
	}
	return []float64{in.Edge, in.TAAlignment, vol, timeFraction, pressure, spread, trendAligned, chop}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
