package engine

import (
	"errors"
	"fmt"
	"math"

	"updown-trader/internal/domain"
)

// ErrMalformedTick rejects feed data that must not reach the decision path.
var ErrMalformedTick = errors.New("malformed market tick")

// ValidateTick checks a tick for corrupt values. Missing optional values are
// fine; the decision path handles them as missing data.
func ValidateTick(t domain.MarketTick) error {
	if t.MarketID == "" {
		return fmt.Errorf("%w: empty market id", ErrMalformedTick)
	}
	if !t.WindowEnd.After(t.WindowStart) {
		return fmt.Errorf("%w: window end %s not after start %s", ErrMalformedTick, t.WindowEnd, t.WindowStart)
	}
	if t.Now.IsZero() {
		return fmt.Errorf("%w: missing tick time", ErrMalformedTick)
	}
	for name, v := range map[string]*float64{
		"spot_price":    t.SpotPrice,
		"oracle_price":  t.OraclePrice,
		"price_to_beat": t.PriceToBeat,
	} {
		if v != nil && (!finite(*v) || *v <= 0) {
			return fmt.Errorf("%w: %s=%v", ErrMalformedTick, name, *v)
		}
	}
	for name, v := range map[string]*float64{"market_up": t.MarketUp, "market_down": t.MarketDown} {
		if v != nil && (!finite(*v) || *v < 0) {
			return fmt.Errorf("%w: %s=%v", ErrMalformedTick, name, *v)
		}
	}
	if err := validateBook("up_book", t.UpBook); err != nil {
		return err
	}
	if err := validateBook("down_book", t.DownBook); err != nil {
		return err
	}
	for i, c := range t.Candles {
		if !finite(c.Open) || !finite(c.High) || !finite(c.Low) || !finite(c.Close) || !finite(c.Volume) ||
			c.Close <= 0 || c.Volume < 0 {
			return fmt.Errorf("%w: candle %d %+v", ErrMalformedTick, i, c)
		}
	}
	return nil
}

func validateBook(name string, b domain.OrderBookSummary) error {
	for field, v := range map[string]*float64{"best_bid": b.BestBid, "best_ask": b.BestAsk, "spread": b.Spread} {
		if v != nil && !finite(*v) {
			return fmt.Errorf("%w: %s.%s=%v", ErrMalformedTick, name, field, *v)
		}
	}
	if !finite(b.BidLiquidity) || !finite(b.AskLiquidity) || b.BidLiquidity < 0 || b.AskLiquidity < 0 {
		return fmt.Errorf("%w: %s liquidity %v/%v", ErrMalformedTick, name, b.BidLiquidity, b.AskLiquidity)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
