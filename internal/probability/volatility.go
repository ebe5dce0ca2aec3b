package probability

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

type VolatilityConfig struct {
	LookbackMinutes int     `yaml:"lookback_minutes" default:"60" validate:"gte=2"`
	WindowMinutes   float64 `yaml:"window_minutes" default:"15" validate:"gt=0"`
}

// RealizedVolatility scales the RMS one-minute log return to the window length.
// It needs lookback+1 closes and uses the most recent ones.
func RealizedVolatility(closes []float64, lookback int, windowMinutes float64) *float64 {
	if lookback <= 0 || len(closes) < lookback+1 {
		return nil
	}
	window := closes[len(closes)-lookback-1:]
	squares := make([]float64, 0, lookback)
	for i := 1; i < len(window); i++ {
		if window[i-1] <= 0 || window[i] <= 0 {
			return nil
		}
		r := math.Log(window[i] / window[i-1])
		squares = append(squares, r*r)
	}
	vol := math.Sqrt(stat.Mean(squares, nil)) * math.Sqrt(windowMinutes)
	return &vol
}

// VolImpliedProbability is the log-normal probability of finishing above the strike.
// At or past expiry it returns the deterministic boundary value; ties go DOWN.
func VolImpliedProbability(currentPrice float64, priceToBeat *float64, vol *float64, timeLeftMinutes, windowMinutes float64) *float64 {
	if priceToBeat == nil || *priceToBeat <= 0 || currentPrice <= 0 {
		return nil
	}
	if timeLeftMinutes <= 0 {
		p := MinProb
		if currentPrice > *priceToBeat {
			p = MaxProb
		}
		return &p
	}
	if vol == nil || *vol <= 0 || windowMinutes <= 0 {
		return nil
	}
	scaled := *vol * math.Sqrt(timeLeftMinutes/windowMinutes)
	z := math.Log(currentPrice / *priceToBeat) / scaled
	p := Clamp(distuv.UnitNormal.CDF(z))
	return &p
}
