package regime

import (
	"sync"
	"time"

	"updown-trader/internal/domain"
)

// Tracker damps flicker: a new classification only replaces the current regime
// after it has been observed on consecutive ticks.
type Tracker struct {
	mu          sync.Mutex
	current     domain.Regime
	candidate   domain.Regime
	streak      int
	transitions int
	changedAt   time.Time
}

type State struct {
	Current     domain.Regime `json:"current"`
	Candidate   domain.Regime `json:"candidate,omitempty"`
	Streak      int           `json:"streak"`
	Transitions int           `json:"transitions"`
	ChangedAt   time.Time     `json:"changed_at"`
}

// Observe feeds one raw classification and returns the stabilised regime.
func (t *Tracker) Observe(r domain.Regime, now time.Time, confirmTicks int) domain.Regime {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == "" {
		t.current = r
		t.changedAt = now
		return t.current
	}
	if r == t.current {
		t.candidate = ""
		t.streak = 0
		return t.current
	}
	if r != t.candidate {
		t.candidate = r
		t.streak = 0
	}
	t.streak++
	if t.streak >= confirmTicks {
		t.current = r
		t.candidate = ""
		t.streak = 0
		t.transitions++
		t.changedAt = now
	}
	return t.current
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Current:     t.current,
		Candidate:   t.candidate,
		Streak:      t.streak,
		Transitions: t.transitions,
		ChangedAt:   t.changedAt,
	}
}

// Registry owns one Tracker per market. Each tracker has its own lock so
// unrelated markets never contend.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
	cfg      Config
}

func NewRegistry(cfg Config) *Registry {
	if cfg.ConfirmTicks <= 0 {
		cfg.ConfirmTicks = 2
	}
	return &Registry{trackers: make(map[string]*Tracker), cfg: cfg}
}

func (r *Registry) tracker(marketID string) *Tracker {
	r.mu.RLock()
	t, ok := r.trackers[marketID]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok = r.trackers[marketID]; ok {
		return t
	}
	t = &Tracker{}
	r.trackers[marketID] = t
	return t
}

// Classify detects the raw regime for a tick and returns the stabilised one.
func (r *Registry) Classify(marketID string, in Inputs, now time.Time) (domain.Regime, Classification) {
	raw := Detect(in, r.cfg)
	return r.tracker(marketID).Observe(raw.Regime, now, r.cfg.ConfirmTicks), raw
}

func (r *Registry) State(marketID string) (State, bool) {
	r.mu.RLock()
	t, ok := r.trackers[marketID]
	r.mu.RUnlock()
	if !ok {
		return State{}, false
	}
	return t.State(), true
}
