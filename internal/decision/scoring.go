package decision

import (
	"math"

	"updown-trader/internal/domain"
)

type Config struct {
	MinTimeLeftMinutes float64  `yaml:"min_time_left_minutes" default:"3" validate:"gte=0"`
	EarlyPhaseMinutes  float64  `yaml:"early_phase_minutes" default:"10" validate:"gtfield=LatePhaseMinutes"`
	LatePhaseMinutes   float64  `yaml:"late_phase_minutes" default:"5" validate:"gte=0"`
	MinVolatility      float64  `yaml:"min_volatility" default:"0.0005" validate:"gte=0"`
	MaxVolatility      float64  `yaml:"max_volatility" default:"0.03" validate:"gtfield=MinVolatility"`
	IdealVolatility    float64  `yaml:"ideal_volatility" default:"0.004" validate:"gt=0"`
	HardEdgeCap        float64  `yaml:"hard_edge_cap" default:"0.3" validate:"gt=0"`
	EdgeSoftCap        float64  `yaml:"edge_soft_cap" default:"0.22" validate:"gt=0"`
	SoftCapPenalty     float64  `yaml:"soft_cap_penalty" default:"5" validate:"gte=0"`
	SoftCapFloor       float64  `yaml:"soft_cap_floor" default:"0.5" validate:"gte=0,lte=1"`
	EdgeCenter         float64  `yaml:"edge_center" default:"0.04"`
	EdgeSteepness      float64  `yaml:"edge_steepness" default:"25" validate:"gt=0"`
	TimeCenter         float64  `yaml:"time_center" default:"7"`
	TimeSteepness      float64  `yaml:"time_steepness" default:"0.8" validate:"gt=0"`
	StrongQuality      float64  `yaml:"strong_quality" default:"0.75" validate:"gtfield=GoodQuality"`
	GoodQuality        float64  `yaml:"good_quality" default:"0.6" validate:"gte=0,lte=1"`
	HighConfidence     float64  `yaml:"high_confidence" default:"0.7" validate:"gtfield=MediumConfidence"`
	MediumConfidence   float64  `yaml:"medium_confidence" default:"0.5" validate:"gte=0,lte=1"`
	SkipMarkets        []string `yaml:"skip_markets"`
}

// PhaseFor maps time remaining in the window to EARLY, MID or LATE.
func PhaseFor(remainingMinutes float64, cfg Config) domain.Phase {
	switch {
	case remainingMinutes > cfg.EarlyPhaseMinutes:
		return domain.PhaseEarly
	case remainingMinutes > cfg.LatePhaseMinutes:
		return domain.PhaseMid
	default:
		return domain.PhaseLate
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// EdgeScore maps an edge onto (0,1), dampening very large edges that have
// historically been overconfident.
func EdgeScore(edge float64, cfg Config) float64 {
	score := sigmoid(cfg.EdgeSteepness * (edge - cfg.EdgeCenter))
	if edge > cfg.EdgeSoftCap {
		score *= math.Max(cfg.SoftCapFloor, 1-(edge-cfg.EdgeSoftCap)*cfg.SoftCapPenalty)
	}
	return score
}

func TimeScore(remainingMinutes float64, cfg Config) float64 {
	return sigmoid(cfg.TimeSteepness * (remainingMinutes - cfg.TimeCenter))
}

// VolatilityScore peaks at the ideal volatility and falls off linearly.
// Unknown volatility scores neutral.
func VolatilityScore(vol *float64, cfg Config) float64 {
	if vol == nil {
		return 0.5
	}
	return clamp(1-math.Abs(*vol-cfg.IdealVolatility)/cfg.IdealVolatility, 0, 1)
}

// OrderbookScore rewards book pressure behind the chosen side and penalises
// a wide spread on it.
func OrderbookScore(side domain.Side, imbalance, spread *float64) float64 {
	score := 0.5
	if imbalance != nil {
		imb := *imbalance
		if side == domain.SideDown {
			imb = -imb
		}
		score = 0.5 + 0.5*imb
	}
	if spread != nil && *spread > 0.02 {
		score -= (*spread - 0.02) * 5
	}
	return clamp(score, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
