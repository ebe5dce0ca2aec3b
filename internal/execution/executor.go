package execution

import (
	"context"
	"errors"
	"time"

	"updown-trader/internal/domain"

	"github.com/google/uuid"
)

var ErrInvalidSize = errors.New("order size must be positive")

// Fill is the executor's report of an entry.
type Fill struct {
	OrderID  string      `json:"order_id"`
	MarketID string      `json:"market_id"`
	Side     domain.Side `json:"side"`
	Price    float64     `json:"price"`
	Size     float64     `json:"size"`
	Live     bool        `json:"live"`
	FilledAt time.Time   `json:"filled_at"`
}

// Executor places an order plan. Live exchange clients implement it outside this repo.
type Executor interface {
	Execute(ctx context.Context, plan OrderPlan, size float64) (Fill, error)
}

// Sizer converts a decision into a share count at the planned price.
type Sizer interface {
	Size(d domain.TradeDecision, plan OrderPlan) float64
}

// PaperExecutor fills every order immediately at its planned price.
type PaperExecutor struct {
	now   func() time.Time
	newID func() string
	live  bool
}

func NewPaperExecutor() *PaperExecutor {
	return &PaperExecutor{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

// NewHandoffExecutor books live fills at the planned price. The order itself is
// placed by the exchange client consuming the published decision stream.
func NewHandoffExecutor() *PaperExecutor {
	p := NewPaperExecutor()
	p.live = true
	return p
}

func (p *PaperExecutor) Execute(ctx context.Context, plan OrderPlan, size float64) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if size <= 0 {
		return Fill{}, ErrInvalidSize
	}
	return Fill{
		OrderID:  p.newID(),
		MarketID: plan.MarketID,
		Side:     plan.Side,
		Price:    plan.Strategy.Price,
		Size:     size,
		Live:     p.live,
		FilledAt: p.now(),
	}, nil
}

// FixedStakeSizer spends the same dollar stake on every entry.
type FixedStakeSizer struct {
	StakeUSD float64
}

func (s FixedStakeSizer) Size(_ domain.TradeDecision, plan OrderPlan) float64 {
	price := plan.Strategy.Price
	if price <= 0 || s.StakeUSD <= 0 {
		return 0
	}
	return s.StakeUSD / price
}
