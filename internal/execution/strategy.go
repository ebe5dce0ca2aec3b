package execution

import (
	"math"

	"updown-trader/internal/domain"
	"updown-trader/internal/edge"
)

type OrderType string

const (
	// OrderImmediate is a fill-or-kill taker order at the market price.
	OrderImmediate OrderType = "IMMEDIATE"
	// OrderResting is a post-only good-till-date order below the market price.
	OrderResting OrderType = "RESTING"
)

type StrategyConfig struct {
	ImmediateConfidence float64 `yaml:"immediate_confidence" default:"0.7" validate:"gte=0,lte=1"`
	LimitDiscount       float64 `yaml:"limit_discount" default:"0.02" validate:"gte=0,lt=1"`
	TickSize            float64 `yaml:"tick_size" default:"0.01" validate:"gt=0"`
}

type OrderStrategyResult struct {
	Type        OrderType `json:"type"`
	PostOnly    bool      `json:"post_only"`
	Price       float64   `json:"price"`
	ExpectedFee float64   `json:"expected_fee"`
	Reason      string    `json:"reason"`
}

type PriceOptimization struct {
	MarketPrice      float64 `json:"market_price"`
	LimitPrice       float64 `json:"limit_price"`
	PriceImprovement float64 `json:"price_improvement"`
	ImprovementPct   float64 `json:"improvement_pct"`
}

// OrderPlan is what the executor needs to place an entry.
type OrderPlan struct {
	MarketID string              `json:"market_id"`
	Side     domain.Side         `json:"side"`
	Strategy OrderStrategyResult `json:"strategy"`
	Pricing  PriceOptimization   `json:"pricing"`
}

// SelectStrategy chooses how to enter an ENTER decision. Late high-confidence
// entries take liquidity; everything else rests for the maker rebate. It is
// deterministic and has no side effects.
func SelectStrategy(d domain.TradeDecision, marketUp, marketDown float64, cfg StrategyConfig, fees edge.FeeConfig) (OrderPlan, bool) {
	if !d.Entered() {
		return OrderPlan{}, false
	}
	side := *d.Side
	price := marketUp
	if side == domain.SideDown {
		price = marketDown
	}
	plan := OrderPlan{MarketID: d.MarketID, Side: side}

	if d.Phase == domain.PhaseLate && d.Confidence >= cfg.ImmediateConfidence {
		plan.Strategy = OrderStrategyResult{
			Type:        OrderImmediate,
			Price:       price,
			ExpectedFee: edge.EstimateFee(math.Max(marketUp, marketDown), false, fees),
			Reason:      "late_high_confidence",
		}
		plan.Pricing = PriceOptimization{MarketPrice: price, LimitPrice: price}
		return plan, true
	}

	limit := floorToTick(price*(1-cfg.LimitDiscount), cfg.TickSize)
	if limit < cfg.TickSize {
		limit = cfg.TickSize
	}
	plan.Strategy = OrderStrategyResult{
		Type:        OrderResting,
		PostOnly:    true,
		Price:       limit,
		ExpectedFee: edge.EstimateFee(price, true, fees),
		Reason:      "maker_rebate",
	}
	improvement := price - limit
	pct := 0.0
	if price > 0 {
		pct = improvement / price * 100
	}
	plan.Pricing = PriceOptimization{
		MarketPrice:      price,
		LimitPrice:       limit,
		PriceImprovement: improvement,
		ImprovementPct:   pct,
	}
	return plan, true
}

func floorToTick(v, tick float64) float64 {
	if tick <= 0 {
		return v
	}
	steps := math.Floor(v/tick + 1e-9)
	return math.Round(steps*tick*1e8) / 1e8
}
