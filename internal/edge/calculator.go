package edge

import (
	"math"

	"updown-trader/internal/domain"
)

type Config struct {
	SlippageImbalanceThreshold float64 `yaml:"slippage_imbalance_threshold" default:"0.2" validate:"gte=0,lte=1"`
	SlippageFactor             float64 `yaml:"slippage_factor" default:"0.02" validate:"gte=0"`
	SpreadThreshold            float64 `yaml:"spread_threshold" default:"0.02" validate:"gte=0"`
	SpreadPenaltyFactor        float64 `yaml:"spread_penalty_factor" default:"0.5" validate:"gte=0"`
	OracleSensitivity          float64 `yaml:"oracle_sensitivity" default:"50" validate:"gte=0"`
	MinArbSpread               float64 `yaml:"min_arb_spread" default:"0.05" validate:"gte=0"`
	ArbConfidenceScale         float64 `yaml:"arb_confidence_scale" default:"0.2" validate:"gt=0"`
	MaxArbBoost                float64 `yaml:"max_arb_boost" default:"0.03" validate:"gte=0,lte=0.1"`
	MispricedThreshold         float64 `yaml:"mispriced_threshold" default:"0.15" validate:"gt=0"`
	MaxVig                     float64 `yaml:"max_vig" default:"0.04" validate:"gte=0"`
	// AssumeMaker switches the fee estimate to the maker rebate. Off by default
	// so edges are computed against the conservative taker fee.
	AssumeMaker bool      `yaml:"assume_maker"`
	Fees        FeeConfig `yaml:"fees"`
}

type Input struct {
	ModelUp    float64
	ModelDown  float64
	MarketUp   *float64
	MarketDown *float64
	// Imbalance is the UP book's liquidity imbalance; positive means bid pressure.
	Imbalance      *float64
	UpSpread       *float64
	DownSpread     *float64
	CrossFeedDelta *float64
}

// Compute derives raw and effective edges for both sides. Edge fields stay nil
// when either market price is missing.
func Compute(in Input, cfg Config) domain.EdgeResult {
	var res domain.EdgeResult
	if in.MarketUp == nil || in.MarketDown == nil {
		return res
	}

	marketUp := clamp(*in.MarketUp, 0, 1)
	marketDown := clamp(*in.MarketDown, 0, 1)
	res.MarketUp = marketUp
	res.MarketDown = marketDown
	res.RawSum = marketUp + marketDown
	res.VigTooHigh = res.RawSum > 1+cfg.MaxVig

	edgeUp := in.ModelUp - marketUp
	edgeDown := in.ModelDown - marketDown
	res.EdgeUp = &edgeUp
	res.EdgeDown = &edgeDown
	res.Mispriced = math.Abs(edgeUp) > cfg.MispricedThreshold || math.Abs(edgeDown) > cfg.MispricedThreshold

	res.FeeEstimateUp = EstimateFee(marketUp, cfg.AssumeMaker, cfg.Fees)
	res.FeeEstimateDown = EstimateFee(marketDown, cfg.AssumeMaker, cfg.Fees)

	slipUp, slipDown := slippage(in.Imbalance, cfg)
	effUp := edgeUp - slipUp - spreadPenalty(in.UpSpread, cfg) - res.FeeEstimateUp
	effDown := edgeDown - slipDown - spreadPenalty(in.DownSpread, cfg) - res.FeeEstimateDown

	if side, boost, ok := arbitrage(in.CrossFeedDelta, marketUp, marketDown, cfg); ok {
		res.ArbitrageDetected = true
		res.ArbitrageDirection = &side
		res.ArbitrageBoost = boost
		if side == domain.SideUp {
			effUp += boost
		} else {
			effDown += boost
		}
	}

	res.EffectiveEdgeUp = &effUp
	res.EffectiveEdgeDown = &effDown
	return res
}

// slippage charges the side that trades against the book's order flow.
func slippage(imbalance *float64, cfg Config) (up, down float64) {
	if imbalance == nil || math.Abs(*imbalance) <= cfg.SlippageImbalanceThreshold {
		return 0, 0
	}
	cost := math.Abs(*imbalance) * cfg.SlippageFactor
	if *imbalance > 0 {
		return 0, cost
	}
	return cost, 0
}

func spreadPenalty(spread *float64, cfg Config) float64 {
	if spread == nil || *spread <= cfg.SpreadThreshold {
		return 0
	}
	return (*spread - cfg.SpreadThreshold) * cfg.SpreadPenaltyFactor
}

// arbitrage maps the spot/oracle lead into an oracle-implied UP probability and
// flags the market side that trails it by more than MinArbSpread.
func arbitrage(delta *float64, marketUp, marketDown float64, cfg Config) (domain.Side, float64, bool) {
	if delta == nil || math.IsNaN(*delta) {
		return "", 0, false
	}
	oracleUp := clamp(0.5+*delta*cfg.OracleSensitivity, 0.01, 0.99)
	gapUp := oracleUp - marketUp
	gapDown := (1 - oracleUp) - marketDown

	side, gap := domain.SideUp, gapUp
	if gapDown > gapUp {
		side, gap = domain.SideDown, gapDown
	}
	if gap <= cfg.MinArbSpread {
		return "", 0, false
	}
	confidence := clamp(gap/cfg.ArbConfidenceScale, 0, 1)
	return side, math.Min(confidence*cfg.MaxArbBoost, cfg.MaxArbBoost), true
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
