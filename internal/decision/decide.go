package decision

import (
	"fmt"
	"math"
	"slices"
	"time"

	"updown-trader/internal/domain"
	"updown-trader/internal/regime"
	"updown-trader/internal/ta"
)

// Rejection reasons without numeric detail.
const (
	ReasonMissingMarketData = "missing_market_data"
	ReasonModelNotFinite    = "model_prob_not_finite"
	ReasonEdgeNotFinite     = "edge_not_finite"
	ReasonSkippedByConfig   = "market_skipped_by_config"
	ReasonNonPositiveEdge   = "non_positive_edge"
	ReasonVolatilityLow     = "volatility_too_low"
	ReasonVolatilityHigh    = "volatility_too_high"
	ReasonHardCap           = "overconfident_hard_cap"
	ReasonDailyLossLimit    = "daily_loss_limit_reached"
	ReasonPositionOpen      = "position_already_open"
	ReasonEntry             = "entry"
)

type Input struct {
	MarketID         string
	Now              time.Time
	RemainingMinutes float64
	ModelUp          float64
	ModelDown        float64
	Edge             domain.EdgeResult
	Regime           domain.Regime
	Volatility       *float64
	TA               ta.ScoreResult
	Agreement        float64
	Imbalance        *float64
	UpSpread         *float64
	DownSpread       *float64
	Thresholds       domain.AdjustedThresholds
	StopLossHit      bool
	// MissingStrike is set when the window's price-to-beat is unknown; such a
	// trade could not be settled.
	MissingStrike bool
	// PositionOpen is set when the market already holds an entry for this window.
	PositionOpen bool
}

type Result struct {
	Decision   domain.TradeDecision     `json:"decision"`
	Confidence *domain.ConfidenceResult `json:"confidence,omitempty"`
}

// Decide runs the entry gates in order and stops at the first rejection. It
// never fails: every outcome is a decision carrying a reason.
func Decide(in Input, cfg Config) Result {
	phase := PhaseFor(in.RemainingMinutes, cfg)
	d := domain.TradeDecision{
		MarketID:  in.MarketID,
		Action:    domain.ActionNoTrade,
		Phase:     phase,
		Regime:    in.Regime,
		DecidedAt: in.Now,
	}
	reject := func(reason string) Result {
		d.Reason = reason
		return Result{Decision: d}
	}

	if in.RemainingMinutes < cfg.MinTimeLeftMinutes {
		return reject(fmt.Sprintf("time_left_%.1fm_below_%gm", in.RemainingMinutes, cfg.MinTimeLeftMinutes))
	}
	if !finite(in.ModelUp) || !finite(in.ModelDown) {
		return reject(ReasonModelNotFinite)
	}
	for _, e := range []*float64{in.Edge.EdgeUp, in.Edge.EdgeDown, in.Edge.EffectiveEdgeUp, in.Edge.EffectiveEdgeDown} {
		if e != nil && !finite(*e) {
			return reject(ReasonEdgeNotFinite)
		}
	}
	if in.Edge.EffectiveEdgeUp == nil || in.Edge.EffectiveEdgeDown == nil || in.MissingStrike {
		return reject(ReasonMissingMarketData)
	}
	if slices.Contains(cfg.SkipMarkets, in.MarketID) {
		return reject(ReasonSkippedByConfig)
	}
	if in.StopLossHit {
		return reject(ReasonDailyLossLimit)
	}
	if in.PositionOpen {
		return reject(ReasonPositionOpen)
	}
	if in.Edge.VigTooHigh {
		return reject(fmt.Sprintf("vig_too_high_%.3f", in.Edge.RawSum))
	}
	if in.Thresholds.RegimeDisabled {
		return reject(fmt.Sprintf("regime_%s_disabled", in.Regime))
	}

	side := domain.SideUp
	best := *in.Edge.EffectiveEdgeUp
	prob := in.ModelUp
	if *in.Edge.EffectiveEdgeDown > best {
		side = domain.SideDown
		best = *in.Edge.EffectiveEdgeDown
		prob = in.ModelDown
	}
	d.Edge = best
	if best <= 0 {
		return reject(ReasonNonPositiveEdge)
	}
	d.Side = &side

	if in.Volatility != nil {
		if *in.Volatility < cfg.MinVolatility {
			return reject(ReasonVolatilityLow)
		}
		if *in.Volatility > cfg.MaxVolatility {
			return reject(ReasonVolatilityHigh)
		}
	}
	if math.Abs(best) > cfg.HardEdgeCap {
		return reject(ReasonHardCap)
	}
	if best < in.Thresholds.EdgeThreshold {
		return reject(fmt.Sprintf("edge_%.3f_below_%.3f", best, in.Thresholds.EdgeThreshold))
	}
	if prob < in.Thresholds.MinProb {
		return reject(fmt.Sprintf("prob_%.3f_below_%.3f", prob, in.Thresholds.MinProb))
	}

	spread := in.UpSpread
	if side == domain.SideDown {
		spread = in.DownSpread
	}
	conf := Confidence(ConfidenceInput{
		Side:             side,
		TA:               in.TA,
		Agreement:        in.Agreement,
		Volatility:       in.Volatility,
		Imbalance:        in.Imbalance,
		Spread:           spread,
		RemainingMinutes: in.RemainingMinutes,
		Regime:           in.Regime,
	}, cfg)
	d.Confidence = conf.Score
	d.ConfidenceLevel = conf.Level
	if conf.Score < in.Thresholds.MinConfidence {
		res := reject(fmt.Sprintf("confidence_%.3f_below_%.3f", conf.Score, in.Thresholds.MinConfidence))
		res.Confidence = &conf
		return res
	}

	quality := TradeQuality(best, conf.Factors, in.RemainingMinutes, cfg)
	d.TradeQuality = quality
	if quality < in.Thresholds.MinQuality {
		res := reject(fmt.Sprintf("quality_%.3f_below_%.3f", quality, in.Thresholds.MinQuality))
		res.Confidence = &conf
		return res
	}

	d.Action = domain.ActionEnter
	d.Reason = ReasonEntry
	switch {
	case quality >= cfg.StrongQuality:
		d.Strength = domain.StrengthStrong
	case quality >= cfg.GoodQuality:
		d.Strength = domain.StrengthGood
	default:
		d.Strength = domain.StrengthOptional
	}
	return Result{Decision: d, Confidence: &conf}
}

type ConfidenceInput struct {
	Side             domain.Side
	TA               ta.ScoreResult
	Agreement        float64
	Volatility       *float64
	Imbalance        *float64
	Spread           *float64
	RemainingMinutes float64
	Regime           domain.Regime
}

// Confidence blends indicator alignment, volatility, book, timing and regime
// factors into a single score.
func Confidence(in ConfidenceInput, cfg Config) domain.ConfidenceResult {
	factors := domain.ConfidenceFactors{
		IndicatorAlignment: 0.6*in.TA.Alignment(in.Side == domain.SideUp) + 0.4*in.Agreement,
		VolatilityScore:    VolatilityScore(in.Volatility, cfg),
		OrderbookScore:     OrderbookScore(in.Side, in.Imbalance, in.Spread),
		TimingScore:        TimeScore(in.RemainingMinutes, cfg),
		RegimeScore:        regime.Score(in.Regime, in.Side),
	}
	score := 0.3*factors.IndicatorAlignment +
		0.2*factors.VolatilityScore +
		0.2*factors.OrderbookScore +
		0.15*factors.TimingScore +
		0.15*factors.RegimeScore
	score = clamp(score, 0, 1)

	level := domain.ConfidenceLow
	switch {
	case score >= cfg.HighConfidence:
		level = domain.ConfidenceHigh
	case score >= cfg.MediumConfidence:
		level = domain.ConfidenceMedium
	}
	return domain.ConfidenceResult{Score: score, Factors: factors, Level: level}
}

// TradeQuality is the composite entry score compared against the adaptive minimum.
func TradeQuality(edge float64, f domain.ConfidenceFactors, remainingMinutes float64, cfg Config) float64 {
	return 0.35*EdgeScore(edge, cfg) +
		0.2*f.IndicatorAlignment +
		0.2*f.RegimeScore +
		0.15*TimeScore(remainingMinutes, cfg) +
		0.1*f.VolatilityScore
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
