package edge

import "math"

// FeeConfig models the crypto up/down fee curve: taker fees peak at 50/50 prices
// and vanish toward 0 and 1; makers receive a share of the taker fee as a rebate.
type FeeConfig struct {
	TakerFeeRate     float64 `yaml:"taker_fee_rate" default:"0.25" validate:"gte=0,lte=1"`
	FeeExponent      float64 `yaml:"fee_exponent" default:"2" validate:"gte=0"`
	MakerRebateShare float64 `yaml:"maker_rebate_share" default:"0.2" validate:"gte=0,lte=1"`
}

// EstimateFee returns the expected fee per unit of stake at the given price.
// Maker fills return a negative value (a rebate).
func EstimateFee(price float64, maker bool, cfg FeeConfig) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	taker := cfg.TakerFeeRate * math.Pow(price*(1-price), cfg.FeeExponent)
	if maker {
		return -cfg.MakerRebateShare * taker
	}
	return taker
}
