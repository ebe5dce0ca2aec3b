package probability

import "math"

type BlendConfig struct {
	VolWeight          float64 `yaml:"vol_weight" default:"0.6" validate:"gte=0"`
	TAWeight           float64 `yaml:"ta_weight" default:"0.4" validate:"gte=0"`
	LeadThreshold      float64 `yaml:"lead_threshold" default:"0.0005" validate:"gte=0"`
	LeadScale          float64 `yaml:"lead_scale" default:"20" validate:"gte=0"`
	MaxLeadAdjust      float64 `yaml:"max_lead_adjust" default:"0.02" validate:"gte=0,lte=0.1"`
	ImbalanceThreshold float64 `yaml:"imbalance_threshold" default:"0.15" validate:"gte=0,lte=1"`
	ImbalanceScale     float64 `yaml:"imbalance_scale" default:"0.05" validate:"gte=0"`
	MaxImbalanceAdjust float64 `yaml:"max_imbalance_adjust" default:"0.02" validate:"gte=0,lte=0.1"`
}

type BlendInput struct {
	TAUp       float64
	VolImplied *float64
	// CrossFeedDelta is (spot-oracle)/oracle; the faster spot feed leads the oracle.
	CrossFeedDelta *float64
	// Imbalance is the UP book's (bid-ask)/(bid+ask) liquidity.
	Imbalance *float64
}

type BlendResult struct {
	Up              float64 `json:"up"`
	Down            float64 `json:"down"`
	Source          string  `json:"source"`
	LeadAdjust      float64 `json:"lead_adjust"`
	ImbalanceAdjust float64 `json:"imbalance_adjust"`
}

const (
	SourceBlended = "blended"
	SourceTAOnly  = "ta_only"
)

func Blend(in BlendInput, cfg BlendConfig) BlendResult {
	up := in.TAUp
	source := SourceTAOnly
	if in.VolImplied != nil && cfg.VolWeight+cfg.TAWeight > 0 {
		vol := *in.VolImplied
		up = (cfg.VolWeight*vol + cfg.TAWeight*in.TAUp) / (cfg.VolWeight + cfg.TAWeight)
		source = SourceBlended
	}

	res := BlendResult{Source: source}
	if in.CrossFeedDelta != nil && math.Abs(*in.CrossFeedDelta) > cfg.LeadThreshold {
		res.LeadAdjust = clampRange(*in.CrossFeedDelta*cfg.LeadScale, -cfg.MaxLeadAdjust, cfg.MaxLeadAdjust)
		up += res.LeadAdjust
	}
	if in.Imbalance != nil && math.Abs(*in.Imbalance) > cfg.ImbalanceThreshold {
		res.ImbalanceAdjust = clampRange(*in.Imbalance*cfg.ImbalanceScale, -cfg.MaxImbalanceAdjust, cfg.MaxImbalanceAdjust)
		up += res.ImbalanceAdjust
	}

	res.Up = Clamp(up)
	res.Down = 1 - res.Up
	return res
}
