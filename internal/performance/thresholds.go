package performance

import (
	"fmt"
	"strconv"
	"strings"

	"updown-trader/internal/domain"

	"gopkg.in/yaml.v3"
)

// RegimeMultiplier either scales the edge threshold or disables trading in a regime.
type RegimeMultiplier struct {
	factor   float64
	disabled bool
}

func Scaled(factor float64) RegimeMultiplier { return RegimeMultiplier{factor: factor} }

// Disabled marks a regime as untradeable.
var Disabled = RegimeMultiplier{disabled: true}

func (m RegimeMultiplier) IsDisabled() bool { return m.disabled }

// Factor returns the multiplier, treating the zero value as 1.
func (m RegimeMultiplier) Factor() float64 {
	if m.disabled || m.factor == 0 {
		return 1
	}
	return m.factor
}

// UnmarshalYAML accepts either a number or the literal "disabled".
func (m *RegimeMultiplier) UnmarshalYAML(node *yaml.Node) error {
	if strings.EqualFold(strings.TrimSpace(node.Value), "disabled") {
		*m = Disabled
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(node.Value), 64)
	if err != nil || v <= 0 {
		return fmt.Errorf("regime multiplier %q: want a positive number or \"disabled\"", node.Value)
	}
	*m = Scaled(v)
	return nil
}

func (m RegimeMultiplier) String() string {
	if m.disabled {
		return "disabled"
	}
	return strconv.FormatFloat(m.Factor(), 'f', -1, 64)
}

type ThresholdConfig struct {
	BaseEdgeThreshold   float64 `yaml:"base_edge_threshold" default:"0.06" validate:"gt=0,lt=1"`
	BaseMinProb         float64 `yaml:"base_min_prob" default:"0.55" validate:"gte=0.5,lt=1"`
	BaseMinConfidence   float64 `yaml:"base_min_confidence" default:"0.5" validate:"gte=0,lte=1"`
	MinQuality          float64 `yaml:"min_quality" default:"0.55" validate:"gte=0,lte=1"`
	DecliningMultiplier float64 `yaml:"declining_multiplier" default:"1.1" validate:"gt=0"`
	ImprovingMultiplier float64 `yaml:"improving_multiplier" default:"0.95" validate:"gt=0"`
	LateMultiplier      float64 `yaml:"late_multiplier" default:"1.1" validate:"gt=0"`
	EdgeFloor           float64 `yaml:"edge_floor" default:"0.03" validate:"gte=0"`
	EdgeCeiling         float64 `yaml:"edge_ceiling" default:"0.25" validate:"gtfield=EdgeFloor"`
	ProbFloor           float64 `yaml:"prob_floor" default:"0.5" validate:"gte=0"`
	ProbCeiling         float64 `yaml:"prob_ceiling" default:"0.7" validate:"gtfield=ProbFloor"`
	ConfidenceFloor     float64 `yaml:"confidence_floor" default:"0.4" validate:"gte=0"`
	ConfidenceCeiling   float64 `yaml:"confidence_ceiling" default:"0.8" validate:"gtfield=ConfidenceFloor"`
	// RegimeMultipliers defaults to CHOP x1.2; unlisted regimes scale by 1.
	RegimeMultipliers map[domain.Regime]RegimeMultiplier `yaml:"regime_multipliers"`
}

// DefaultRegimeMultipliers is used when the configuration lists none.
func DefaultRegimeMultipliers() map[domain.Regime]RegimeMultiplier {
	return map[domain.Regime]RegimeMultiplier{domain.RegimeChop: Scaled(1.2)}
}

// Adjust derives the thresholds for one decision. A nil snapshot means there is
// not enough history yet and neutral performance is assumed.
func Adjust(snap *domain.PerformanceSnapshot, regime domain.Regime, phase domain.Phase, cfg ThresholdConfig) domain.AdjustedThresholds {
	winRate := 0.5
	trend := domain.TrendStable
	if snap != nil {
		winRate = snap.CurrentWinRate
		trend = snap.Trend
	}

	edge := cfg.BaseEdgeThreshold
	minProb := cfg.BaseMinProb
	minConf := cfg.BaseMinConfidence
	reasons := make([]string, 0, 4)

	switch {
	case winRate < 0.45:
		edge *= 1.5
		minProb += 0.05
		minConf += 0.10
		reasons = append(reasons, fmt.Sprintf("win_rate_%.2f_poor", winRate))
	case winRate < 0.50:
		edge *= 1.2
		minProb += 0.02
		reasons = append(reasons, fmt.Sprintf("win_rate_%.2f_weak", winRate))
	case winRate <= 0.55:
		// no-op band
	case winRate <= 0.60:
		edge *= 0.9
		reasons = append(reasons, fmt.Sprintf("win_rate_%.2f_good", winRate))
	default:
		edge *= 0.8
		reasons = append(reasons, fmt.Sprintf("win_rate_%.2f_strong", winRate))
	}

	switch trend {
	case domain.TrendDeclining:
		edge *= cfg.DecliningMultiplier
		reasons = append(reasons, "trend_declining")
	case domain.TrendImproving:
		edge *= cfg.ImprovingMultiplier
		reasons = append(reasons, "trend_improving")
	}

	multipliers := cfg.RegimeMultipliers
	if multipliers == nil {
		multipliers = DefaultRegimeMultipliers()
	}
	out := domain.AdjustedThresholds{MinQuality: cfg.MinQuality}
	if m, ok := multipliers[regime]; ok {
		if m.IsDisabled() {
			out.RegimeDisabled = true
			reasons = append(reasons, fmt.Sprintf("regime_%s_disabled", regime))
		} else if m.Factor() != 1 {
			edge *= m.Factor()
			reasons = append(reasons, fmt.Sprintf("regime_%s_x%s", regime, m))
		}
	}

	if phase == domain.PhaseLate {
		edge *= cfg.LateMultiplier
		reasons = append(reasons, "phase_LATE")
	}

	out.EdgeThreshold = clamp(edge, cfg.EdgeFloor, cfg.EdgeCeiling)
	out.MinProb = clamp(minProb, cfg.ProbFloor, cfg.ProbCeiling)
	out.MinConfidence = clamp(minConf, cfg.ConfidenceFloor, cfg.ConfidenceCeiling)
	if len(reasons) == 0 {
		out.Reason = "neutral"
	} else {
		out.Reason = strings.Join(reasons, ";")
	}
	return out
}

// Manager reads performance snapshots and turns them into thresholds.
type Manager struct {
	cfg  ThresholdConfig
	perf *Registry
}

func NewManager(cfg ThresholdConfig, perf *Registry) *Manager {
	return &Manager{cfg: cfg, perf: perf}
}

func (m *Manager) Thresholds(marketID string, regime domain.Regime, phase domain.Phase) domain.AdjustedThresholds {
	return Adjust(m.perf.Snapshot(marketID), regime, phase, m.cfg)
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
