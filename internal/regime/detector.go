package regime

import (
	"math"

	"updown-trader/internal/domain"
)

// Config holds the classification cutoffs. They are tunable strategy parameters.
type Config struct {
	LowVolumeRatio float64 `yaml:"low_volume_ratio" default:"0.6" validate:"gt=0,lte=1"`
	FlatBand       float64 `yaml:"flat_band" default:"0.001" validate:"gte=0"`
	ChopCrossCount int     `yaml:"chop_cross_count" default:"3" validate:"gte=1"`
	ConfirmTicks   int     `yaml:"confirm_ticks" default:"2" validate:"gte=1"`
}

type Inputs struct {
	Price     *float64
	VWAP      *float64
	VWAPSlope *float64
	// Crosses is the number of close/VWAP sign changes in the lookback.
	Crosses      int
	VolumeRecent *float64
	VolumeAvg    *float64
}

type Classification struct {
	Regime domain.Regime `json:"regime"`
	Reason string        `json:"reason"`
}

// Detect classifies a single tick. Missing price or VWAP data yields RANGE.
func Detect(in Inputs, cfg Config) Classification {
	if in.Price == nil || in.VWAP == nil || in.VWAPSlope == nil || *in.VWAP <= 0 {
		return Classification{Regime: domain.RegimeRange, Reason: "missing_inputs"}
	}
	price, vwap, slope := *in.Price, *in.VWAP, *in.VWAPSlope

	distance := math.Abs(price-vwap) / vwap
	if in.VolumeRecent != nil && in.VolumeAvg != nil && *in.VolumeAvg > 0 {
		recent, avg := *in.VolumeRecent, *in.VolumeAvg
		if recent < cfg.LowVolumeRatio*avg && distance < cfg.FlatBand {
			return Classification{Regime: domain.RegimeChop, Reason: "low_volume_flat"}
		}
	}

	if price > vwap && slope > 0 {
		return Classification{Regime: domain.RegimeTrendUp, Reason: "price_above_vwap_rising"}
	}
	if price < vwap && slope < 0 {
		return Classification{Regime: domain.RegimeTrendDown, Reason: "price_below_vwap_falling"}
	}
	if in.Crosses >= cfg.ChopCrossCount {
		return Classification{Regime: domain.RegimeChop, Reason: "frequent_vwap_crosses"}
	}
	return Classification{Regime: domain.RegimeRange, Reason: "default"}
}

// Score rates how supportive a regime is of trading the given side.
func Score(r domain.Regime, side domain.Side) float64 {
	switch r {
	case domain.RegimeTrendUp:
		if side == domain.SideUp {
			return 1.0
		}
		return 0.2
	case domain.RegimeTrendDown:
		if side == domain.SideDown {
			return 1.0
		}
		return 0.2
	case domain.RegimeRange:
		return 0.6
	case domain.RegimeChop:
		return 0.3
	default:
		return 0.5
	}
}
