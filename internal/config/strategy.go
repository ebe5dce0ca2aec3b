package config

import (
	"fmt"
	"os"

	"updown-trader/internal/decision"
	"updown-trader/internal/edge"
	"updown-trader/internal/execution"
	"updown-trader/internal/ml/quality"
	"updown-trader/internal/performance"
	"updown-trader/internal/probability"
	"updown-trader/internal/regime"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// FeatureConfig controls indicator extraction from one-minute candles.
type FeatureConfig struct {
	RSIPeriod         int `yaml:"rsi_period" default:"14" validate:"gte=2"`
	RSISlopeLookback  int `yaml:"rsi_slope_lookback" default:"3" validate:"gte=1"`
	MACDFast          int `yaml:"macd_fast" default:"12" validate:"gte=1"`
	MACDSlow          int `yaml:"macd_slow" default:"26" validate:"gtfield=MACDFast"`
	MACDSignal        int `yaml:"macd_signal" default:"9" validate:"gte=1"`
	VWAPSlopeLookback int `yaml:"vwap_slope_lookback" default:"5" validate:"gte=1"`
	CrossLookback     int `yaml:"cross_lookback" default:"20" validate:"gte=2"`
	VolumeRecent      int `yaml:"volume_recent" default:"5" validate:"gte=1"`
	VolumeTrailing    int `yaml:"volume_trailing" default:"20" validate:"gte=1"`
}

type SignalMetaConfig struct {
	// TTLWindows is how many window lengths an unconsumed entry survives.
	TTLWindows float64 `yaml:"ttl_windows" default:"3" validate:"gte=2"`
	MaxEntries int     `yaml:"max_entries" default:"5000" validate:"gte=1"`
}

// Strategy holds every tunable parameter of the decision pipeline.
type Strategy struct {
	Features    FeatureConfig                `yaml:"features"`
	Volatility  probability.VolatilityConfig `yaml:"volatility"`
	Blend       probability.BlendConfig      `yaml:"blend"`
	Ensemble    probability.EnsembleConfig   `yaml:"ensemble"`
	Regime      regime.Config                `yaml:"regime"`
	Edge        edge.Config                  `yaml:"edge"`
	Performance performance.Config           `yaml:"performance"`
	Thresholds  performance.ThresholdConfig  `yaml:"thresholds"`
	Decision    decision.Config              `yaml:"decision"`
	Orders      execution.StrategyConfig     `yaml:"orders"`
	Quality     quality.Config               `yaml:"quality"`
	SignalMeta  SignalMetaConfig             `yaml:"signal_meta"`
}

// DefaultStrategy returns the built-in parameters.
func DefaultStrategy() Strategy {
	var s Strategy
	if err := defaults.Set(&s); err != nil {
		panic(fmt.Sprintf("strategy defaults: %v", err))
	}
	s.Thresholds.RegimeMultipliers = performance.DefaultRegimeMultipliers()
	return s
}

// LoadStrategy overlays the YAML file at path on the defaults and validates the
// result. An empty path yields the defaults.
func LoadStrategy(path string) (*Strategy, error) {
	var s Strategy
	if err := defaults.Set(&s); err != nil {
		return nil, fmt.Errorf("strategy defaults: %w", err)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read strategy: %w", err)
		}
		if err := yaml.Unmarshal(b, &s); err != nil {
			return nil, fmt.Errorf("parse strategy: %w", err)
		}
	}
	if s.Thresholds.RegimeMultipliers == nil {
		s.Thresholds.RegimeMultipliers = performance.DefaultRegimeMultipliers()
	}
	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("validate strategy: %w", err)
	}
	return &s, nil
}
