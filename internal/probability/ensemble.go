package probability

import (
	"math"

	"updown-trader/internal/domain"
	"updown-trader/internal/ta"
)

const (
	ModelVolImplied    = "vol_implied"
	ModelTAScore       = "ta_score"
	ModelBlended       = "blended"
	ModelSignalQuality = "signal_quality"
)

// modelOrder fixes iteration order so dominant-model ties resolve deterministically.
var modelOrder = []string{ModelVolImplied, ModelTAScore, ModelBlended, ModelSignalQuality}

type EnsembleConfig struct {
	VolImpliedWeight        float64 `yaml:"vol_implied_weight" default:"0.35" validate:"gte=0"`
	TAWeight                float64 `yaml:"ta_weight" default:"0.2" validate:"gte=0"`
	BlendedWeight           float64 `yaml:"blended_weight" default:"0.3" validate:"gte=0"`
	QualityWeight           float64 `yaml:"quality_weight" default:"0.15" validate:"gte=0"`
	VolBoost                float64 `yaml:"vol_boost" default:"1.25" validate:"gte=1,lte=1.3"`
	QualityBoost            float64 `yaml:"quality_boost" default:"1.25" validate:"gte=1,lte=1.3"`
	HighVolThreshold        float64 `yaml:"high_vol_threshold" default:"0.006" validate:"gt=0"`
	HighQualityConfidence   float64 `yaml:"high_quality_confidence" default:"0.7" validate:"gt=0,lte=1"`
	ImbalanceNudgeThreshold float64 `yaml:"imbalance_nudge_threshold" default:"0.3" validate:"gte=0,lte=1"`
	ImbalanceNudge          float64 `yaml:"imbalance_nudge" default:"0.01" validate:"gte=0,lte=0.05"`
}

type ModelEstimate struct {
	Prob      float64
	Available bool
}

// Available wraps a nullable probability.
func Available(p *float64) ModelEstimate {
	if p == nil {
		return ModelEstimate{}
	}
	return ModelEstimate{Prob: *p, Available: true}
}

type EnsembleInput struct {
	VolImplied ModelEstimate
	TAScore    ModelEstimate
	Blended    ModelEstimate
	// SignalQuality is already expressed as an UP probability.
	SignalQuality     ModelEstimate
	QualityConfidence float64
	Regime            domain.Regime
	Volatility        *float64
	Imbalance         *float64
}

type EnsembleResult struct {
	FinalUp       float64            `json:"final_up"`
	FinalDown     float64            `json:"final_down"`
	Agreement     float64            `json:"agreement"`
	DominantModel string             `json:"dominant_model"`
	Weights       map[string]float64 `json:"weights"`
	Fallback      bool               `json:"fallback"`
}

func ComputeEnsemble(in EnsembleInput, cfg EnsembleConfig) EnsembleResult {
	estimates := map[string]ModelEstimate{
		ModelVolImplied:    in.VolImplied,
		ModelTAScore:       in.TAScore,
		ModelBlended:       in.Blended,
		ModelSignalQuality: in.SignalQuality,
	}
	weights := map[string]float64{
		ModelVolImplied:    cfg.VolImpliedWeight,
		ModelTAScore:       cfg.TAWeight,
		ModelBlended:       cfg.BlendedWeight,
		ModelSignalQuality: cfg.QualityWeight,
	}

	highVol := in.Volatility != nil && *in.Volatility >= cfg.HighVolThreshold
	if in.Regime.IsTrend() || highVol {
		weights[ModelVolImplied] *= cfg.VolBoost
	}
	if in.Regime == domain.RegimeChop || in.QualityConfidence >= cfg.HighQualityConfidence {
		weights[ModelSignalQuality] *= cfg.QualityBoost
	}

	activeWeight := 0.0
	for _, name := range modelOrder {
		if !estimates[name].Available {
			weights[name] = 0
			continue
		}
		activeWeight += weights[name]
	}

	if activeWeight <= 0 {
		up := Clamp(in.TAScore.Prob)
		return EnsembleResult{
			FinalUp:       up,
			FinalDown:     1 - up,
			Agreement:     1,
			DominantModel: ModelTAScore,
			Weights:       map[string]float64{ModelTAScore: 1},
			Fallback:      true,
		}
	}

	normalized := make(map[string]float64, len(weights))
	probs := make([]float64, 0, len(modelOrder))
	up := 0.0
	dominant := ""
	for _, name := range modelOrder {
		if !estimates[name].Available {
			continue
		}
		w := weights[name] / activeWeight
		normalized[name] = w
		up += w * estimates[name].Prob
		probs = append(probs, estimates[name].Prob)
		if dominant == "" || w > normalized[dominant] {
			dominant = name
		}
	}

	if in.Imbalance != nil && math.Abs(*in.Imbalance) > cfg.ImbalanceNudgeThreshold {
		if *in.Imbalance > 0 {
			up += cfg.ImbalanceNudge
		} else {
			up -= cfg.ImbalanceNudge
		}
	}

	_, std := ta.MeanStd(probs)
	up = Clamp(up)
	return EnsembleResult{
		FinalUp:       up,
		FinalDown:     1 - up,
		Agreement:     clampRange(1-2*std, 0, 1),
		DominantModel: dominant,
		Weights:       normalized,
	}
}
