package domain

import "time"

// Candle represents a single OHLCV candle for an asset at a given interval.
type Candle struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Closes extracts close prices in candle order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// OrderBookSummary is the top-of-book view of one outcome token.
type OrderBookSummary struct {
	BestBid      *float64 `json:"best_bid,omitempty"`
	BestAsk      *float64 `json:"best_ask,omitempty"`
	Spread       *float64 `json:"spread,omitempty"`
	BidLiquidity float64  `json:"bid_liquidity"`
	AskLiquidity float64  `json:"ask_liquidity"`
}

// Imbalance returns (bid-ask)/(bid+ask) liquidity, or nil when the book is empty.
func (b OrderBookSummary) Imbalance() *float64 {
	total := b.BidLiquidity + b.AskLiquidity
	if total <= 0 {
		return nil
	}
	v := (b.BidLiquidity - b.AskLiquidity) / total
	return &v
}

// MarketTick is everything the core needs for one market on one tick.
// Prices arrive already resolved by the ingestion collaborators.
type MarketTick struct {
	MarketID    string    `json:"market_id"`
	Symbol      string    `json:"symbol"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Now         time.Time `json:"now"`

	Candles     []Candle `json:"candles"`
	SpotPrice   *float64 `json:"spot_price,omitempty"`
	OraclePrice *float64 `json:"oracle_price,omitempty"`
	PriceToBeat *float64 `json:"price_to_beat,omitempty"`

	UpBook   OrderBookSummary `json:"up_book"`
	DownBook OrderBookSummary `json:"down_book"`

	MarketUp   *float64 `json:"market_up,omitempty"`
	MarketDown *float64 `json:"market_down,omitempty"`
}

// RemainingMinutes is the time left in the window at tick time.
func (t MarketTick) RemainingMinutes() float64 {
	return t.WindowEnd.Sub(t.Now).Minutes()
}

// WindowMinutes is the full window length.
func (t MarketTick) WindowMinutes() float64 {
	return t.WindowEnd.Sub(t.WindowStart).Minutes()
}

// CurrentPrice prefers the oracle price (the settlement source) over the spot feed,
// falling back to the last candle close.
func (t MarketTick) CurrentPrice() *float64 {
	if t.OraclePrice != nil {
		return t.OraclePrice
	}
	if t.SpotPrice != nil {
		return t.SpotPrice
	}
	if n := len(t.Candles); n > 0 {
		v := t.Candles[n-1].Close
		return &v
	}
	return nil
}
