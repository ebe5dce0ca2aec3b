package domain

import "time"

type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

// Opposite returns the other outcome of the binary market.
func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

type Phase string

const (
	PhaseEarly Phase = "EARLY"
	PhaseMid   Phase = "MID"
	PhaseLate  Phase = "LATE"
)

type Regime string

const (
	RegimeTrendUp   Regime = "TREND_UP"
	RegimeTrendDown Regime = "TREND_DOWN"
	RegimeRange     Regime = "RANGE"
	RegimeChop      Regime = "CHOP"
)

// IsTrend reports whether the regime is directional.
func (r Regime) IsTrend() bool {
	return r == RegimeTrendUp || r == RegimeTrendDown
}

type Action string

const (
	ActionEnter   Action = "ENTER"
	ActionNoTrade Action = "NO_TRADE"
)

type Strength string

const (
	StrengthStrong   Strength = "STRONG"
	StrengthGood     Strength = "GOOD"
	StrengthOptional Strength = "OPTIONAL"
)

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// EdgeResult compares model probabilities with market prices. Edge fields are
// nil when market prices are missing.
type EdgeResult struct {
	MarketUp           float64  `json:"market_up"`
	MarketDown         float64  `json:"market_down"`
	EdgeUp             *float64 `json:"edge_up"`
	EdgeDown           *float64 `json:"edge_down"`
	EffectiveEdgeUp    *float64 `json:"effective_edge_up"`
	EffectiveEdgeDown  *float64 `json:"effective_edge_down"`
	RawSum             float64  `json:"raw_sum"`
	ArbitrageDetected  bool     `json:"arbitrage_detected"`
	ArbitrageDirection *Side    `json:"arbitrage_direction,omitempty"`
	ArbitrageBoost     float64  `json:"arbitrage_boost"`
	Mispriced          bool     `json:"mispriced"`
	VigTooHigh         bool     `json:"vig_too_high"`
	FeeEstimateUp      float64  `json:"fee_estimate_up"`
	FeeEstimateDown    float64  `json:"fee_estimate_down"`
}

type ConfidenceFactors struct {
	IndicatorAlignment float64 `json:"indicator_alignment"`
	VolatilityScore    float64 `json:"volatility_score"`
	OrderbookScore     float64 `json:"orderbook_score"`
	TimingScore        float64 `json:"timing_score"`
	RegimeScore        float64 `json:"regime_score"`
}

type ConfidenceResult struct {
	Score   float64           `json:"score"`
	Factors ConfidenceFactors `json:"factors"`
	Level   ConfidenceLevel   `json:"level"`
}

// PerformanceSnapshot summarises the rolling trade window of one market.
type PerformanceSnapshot struct {
	MarketID       string  `json:"market_id"`
	TotalTrades    int     `json:"total_trades"`
	Wins           int     `json:"wins"`
	CurrentWinRate float64 `json:"current_win_rate"`
	RecentWinRate  float64 `json:"recent_win_rate"`
	Trend          Trend   `json:"trend"`
	AvgEdge        float64 `json:"avg_edge"`
	AvgConfidence  float64 `json:"avg_confidence"`
}

type AdjustedThresholds struct {
	EdgeThreshold  float64 `json:"edge_threshold"`
	MinProb        float64 `json:"min_prob"`
	MinConfidence  float64 `json:"min_confidence"`
	MinQuality     float64 `json:"min_quality"`
	RegimeDisabled bool    `json:"regime_disabled"`
	Reason         string  `json:"reason"`
}

// TradeDecision is produced once per market per tick and never mutated.
type TradeDecision struct {
	MarketID        string          `json:"market_id"`
	Action          Action          `json:"action"`
	Side            *Side           `json:"side"`
	Phase           Phase           `json:"phase"`
	Regime          Regime          `json:"regime"`
	Strength        Strength        `json:"strength,omitempty"`
	Edge            float64         `json:"edge"`
	Reason          string          `json:"reason"`
	Confidence      float64         `json:"confidence"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level,omitempty"`
	TradeQuality    float64         `json:"trade_quality"`
	DecidedAt       time.Time       `json:"decided_at"`
}

// Entered reports whether the decision opens a position.
func (d TradeDecision) Entered() bool {
	return d.Action == ActionEnter && d.Side != nil
}

// SignalMetadata is captured at decision time and consumed once at settlement.
type SignalMetadata struct {
	TradeID    string    `json:"trade_id"`
	MarketID   string    `json:"market_id"`
	Side       Side      `json:"side"`
	Edge       float64   `json:"edge"`
	Confidence float64   `json:"confidence"`
	Quality    float64   `json:"quality"`
	Phase      Phase     `json:"phase"`
	Regime     Regime    `json:"regime"`
	Features   []float64 `json:"features"`
	CreatedAt  time.Time `json:"created_at"`
}

// PendingTrade is one paper or live position awaiting window settlement.
type PendingTrade struct {
	ID            string    `json:"id"`
	MarketID      string    `json:"market_id"`
	WindowStartMs int64     `json:"window_start_ms"`
	Side          Side      `json:"side"`
	EntryPrice    float64   `json:"entry_price"`
	Size          float64   `json:"size"`
	PriceToBeat   float64   `json:"price_to_beat"`
	Live          bool      `json:"live"`
	Resolved      bool      `json:"resolved"`
	Won           bool      `json:"won"`
	PnL           float64   `json:"pnl"`
	SettlePrice   float64   `json:"settle_price"`
	EnteredAt     time.Time `json:"entered_at"`
}

// SettlementResult is emitted per resolved trade.
type SettlementResult struct {
	TradeID       string  `json:"trade_id"`
	MarketID      string  `json:"market_id"`
	WindowStartMs int64   `json:"window_start_ms"`
	Side          Side    `json:"side"`
	Won           bool    `json:"won"`
	PnL           float64 `json:"pnl"`
	SettlePrice   float64 `json:"settle_price"`
}

// AggregateStats is the reporting view of the settlement ledger.
type AggregateStats struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	TotalPnL    float64 `json:"total_pnl"`
	MaxDrawdown float64 `json:"max_drawdown"`
	TodayPnL    float64 `json:"today_pnl"`
	Pending     int     `json:"pending"`
}

// QualityModelVersion is a persisted signal-quality model artifact.
type QualityModelVersion struct {
	ID             int64
	ModelKey       string
	Version        int
	SampleCount    int
	ArtifactFormat string
	ArtifactBlob   []byte
	MetricsJSON    string
	IsActive       bool
	TrainedAt      time.Time
	CreatedAt      time.Time
}
