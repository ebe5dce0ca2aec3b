package ta

import (
	"math"

	"updown-trader/internal/domain"
)

func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	if period <= 1 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSISeries uses Wilder smoothing. Entries before the first full period are NaN.
func RSISeries(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	series := make([]float64, len(closes))
	for i := range series {
		series[i] = math.NaN()
	}

	var gainSum float64
	var lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	series[period] = rsiFromAvg(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		series[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return series
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDSeries returns the MACD line, signal line and histogram.
func MACDSeries(values []float64, fast, slow, signal int) ([]float64, []float64, []float64) {
	if len(values) == 0 {
		return nil, nil, nil
	}
	fastEMA := EMASeries(values, fast)
	slowEMA := EMASeries(values, slow)
	macdLine := make([]float64, len(values))
	for i := range values {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMASeries(macdLine, signal)
	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = macdLine[i] - signalLine[i]
	}
	return macdLine, signalLine, hist
}

// VWAPSeries is the cumulative volume-weighted typical price. Zero-volume
// prefixes fall back to the typical price.
func VWAPSeries(candles []domain.Candle) []float64 {
	if len(candles) == 0 {
		return nil
	}
	out := make([]float64, len(candles))
	var pv, vol float64
	for i, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * c.Volume
		vol += c.Volume
		if vol > 0 {
			out[i] = pv / vol
		} else {
			out[i] = typical
		}
	}
	return out
}

// Slope is the per-step change between the last value and the one lookback steps earlier.
func Slope(series []float64, lookback int) (float64, bool) {
	n := len(series)
	if lookback <= 0 || n <= lookback {
		return 0, false
	}
	last, prev := series[n-1], series[n-1-lookback]
	if math.IsNaN(last) || math.IsNaN(prev) {
		return 0, false
	}
	return (last - prev) / float64(lookback), true
}

// CountCrosses counts sign changes of closes-minus-VWAP over the last lookback candles.
func CountCrosses(closes, vwap []float64, lookback int) int {
	n := len(closes)
	if n != len(vwap) || n < 2 {
		return 0
	}
	start := n - lookback
	if start < 1 {
		start = 1
	}
	crosses := 0
	for i := start; i < n; i++ {
		prev := closes[i-1] - vwap[i-1]
		cur := closes[i] - vwap[i]
		if (prev > 0 && cur < 0) || (prev < 0 && cur > 0) {
			crosses++
		}
	}
	return crosses
}

// VolumeRatio compares the mean of the last recent volumes with the mean of the
// trailing volumes that precede them.
func VolumeRatio(candles []domain.Candle, recent, trailing int) (float64, float64, bool) {
	n := len(candles)
	if recent <= 0 || trailing <= 0 || n < recent+trailing {
		return 0, 0, false
	}
	var recentSum, trailingSum float64
	for _, c := range candles[n-recent:] {
		recentSum += c.Volume
	}
	for _, c := range candles[n-recent-trailing : n-recent] {
		trailingSum += c.Volume
	}
	return recentSum / float64(recent), trailingSum / float64(trailing), true
}

type HeikenColor string

const (
	HeikenGreen HeikenColor = "green"
	HeikenRed   HeikenColor = "red"
)

// HeikenAshiStreak returns the colour of the last Heiken-Ashi candle and how many
// consecutive candles share it.
func HeikenAshiStreak(candles []domain.Candle) (HeikenColor, int) {
	if len(candles) == 0 {
		return "", 0
	}
	colors := make([]HeikenColor, len(candles))
	var prevOpen, prevClose float64
	for i, c := range candles {
		haClose := (c.Open + c.High + c.Low + c.Close) / 4
		haOpen := (c.Open + c.Close) / 2
		if i > 0 {
			haOpen = (prevOpen + prevClose) / 2
		}
		if haClose >= haOpen {
			colors[i] = HeikenGreen
		} else {
			colors[i] = HeikenRed
		}
		prevOpen, prevClose = haOpen, haClose
	}
	last := colors[len(colors)-1]
	streak := 0
	for i := len(colors) - 1; i >= 0 && colors[i] == last; i-- {
		streak++
	}
	return last, streak
}

// LastValid returns the last non-NaN value of a series.
func LastValid(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}
