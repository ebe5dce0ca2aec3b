package performance

import (
	"sort"
	"sync"
	"time"

	"updown-trader/internal/domain"
)

type Config struct {
	WindowSize int     `yaml:"window_size" default:"50" validate:"gte=1"`
	MinTrades  int     `yaml:"min_trades" default:"5" validate:"gte=1"`
	RecentSize int     `yaml:"recent_size" default:"10" validate:"gte=1"`
	TrendDelta float64 `yaml:"trend_delta" default:"0.05" validate:"gte=0,lte=1"`
}

// TradeRecord is one settled outcome fed back from settlement.
type TradeRecord struct {
	Won        bool          `json:"won"`
	Edge       float64       `json:"edge"`
	Confidence float64       `json:"confidence"`
	Regime     domain.Regime `json:"regime"`
	Phase      domain.Phase  `json:"phase"`
	SettledAt  time.Time     `json:"settled_at"`
}

type tracker struct {
	mu      sync.Mutex
	records []TradeRecord
}

// Registry keeps a bounded rolling window of outcomes per market. Each market
// has its own lock; the registry lock only guards the map.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*tracker
	cfg      Config
}

func NewRegistry(cfg Config) *Registry {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 50
	}
	if cfg.MinTrades <= 0 {
		cfg.MinTrades = 5
	}
	if cfg.RecentSize <= 0 {
		cfg.RecentSize = 10
	}
	return &Registry{trackers: make(map[string]*tracker), cfg: cfg}
}

func (r *Registry) get(marketID string, create bool) *tracker {
	r.mu.RLock()
	t, ok := r.trackers[marketID]
	r.mu.RUnlock()
	if ok || !create {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok = r.trackers[marketID]; ok {
		return t
	}
	t = &tracker{}
	r.trackers[marketID] = t
	return t
}

// Record appends an outcome, evicting the oldest once the window is full.
func (r *Registry) Record(marketID string, rec TradeRecord) {
	t := r.get(marketID, true)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
	if over := len(t.records) - r.cfg.WindowSize; over > 0 {
		t.records = append(t.records[:0:0], t.records[over:]...)
	}
}

// Len returns how many outcomes are held for a market.
func (r *Registry) Len(marketID string) int {
	t := r.get(marketID, false)
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Snapshot summarises a market's window, or returns nil with fewer than MinTrades outcomes.
func (r *Registry) Snapshot(marketID string) *domain.PerformanceSnapshot {
	t := r.get(marketID, false)
	if t == nil {
		return nil
	}
	t.mu.Lock()
	records := make([]TradeRecord, len(t.records))
	copy(records, t.records)
	t.mu.Unlock()

	if len(records) < r.cfg.MinTrades {
		return nil
	}

	wins := 0
	var edgeSum, confSum float64
	for _, rec := range records {
		if rec.Won {
			wins++
		}
		edgeSum += rec.Edge
		confSum += rec.Confidence
	}
	total := len(records)

	recent := records
	if len(recent) > r.cfg.RecentSize {
		recent = recent[len(recent)-r.cfg.RecentSize:]
	}
	recentWins := 0
	for _, rec := range recent {
		if rec.Won {
			recentWins++
		}
	}

	current := float64(wins) / float64(total)
	recentRate := float64(recentWins) / float64(len(recent))
	trend := domain.TrendStable
	switch {
	case recentRate-current >= r.cfg.TrendDelta:
		trend = domain.TrendImproving
	case current-recentRate >= r.cfg.TrendDelta:
		trend = domain.TrendDeclining
	}

	return &domain.PerformanceSnapshot{
		MarketID:       marketID,
		TotalTrades:    total,
		Wins:           wins,
		CurrentWinRate: current,
		RecentWinRate:  recentRate,
		Trend:          trend,
		AvgEdge:        edgeSum / float64(total),
		AvgConfidence:  confSum / float64(total),
	}
}

// Markets lists every market with recorded outcomes, sorted.
func (r *Registry) Markets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.trackers))
	for id := range r.trackers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
