package engine

import (
	"updown-trader/internal/config"
	"updown-trader/internal/domain"
	"updown-trader/internal/regime"
	"updown-trader/internal/ta"
)

// Features are the indicator readings extracted from one tick's candles. Nil
// fields could not be computed from the available history.
type Features struct {
	Price             *float64       `json:"price,omitempty"`
	VWAP              *float64       `json:"vwap,omitempty"`
	VWAPSlope         *float64       `json:"vwap_slope,omitempty"`
	RSI               *float64       `json:"rsi,omitempty"`
	RSISlope          *float64       `json:"rsi_slope,omitempty"`
	MACDLine          *float64       `json:"macd_line,omitempty"`
	MACDHist          *float64       `json:"macd_hist,omitempty"`
	MACDHistDelta     *float64       `json:"macd_hist_delta,omitempty"`
	HeikenColor       ta.HeikenColor `json:"heiken_color,omitempty"`
	HeikenStreak      int            `json:"heiken_streak"`
	FailedVWAPReclaim bool           `json:"failed_vwap_reclaim"`
	Crosses           int            `json:"vwap_crosses"`
	VolumeRecent      *float64       `json:"volume_recent,omitempty"`
	VolumeAvg         *float64       `json:"volume_avg,omitempty"`
}

// Extract computes the indicator set from one-minute candles, oldest first.
func Extract(candles []domain.Candle, cfg config.FeatureConfig) Features {
	var f Features
	n := len(candles)
	if n == 0 {
		return f
	}
	closes := domain.Closes(candles)
	f.Price = ptr(closes[n-1])

	vwap := ta.VWAPSeries(candles)
	f.VWAP = ptr(vwap[n-1])
	if slope, ok := ta.Slope(vwap, cfg.VWAPSlopeLookback); ok {
		f.VWAPSlope = ptr(slope)
	}

	if rsi := ta.RSISeries(closes, cfg.RSIPeriod); rsi != nil {
		if v, ok := ta.LastValid(rsi); ok {
			f.RSI = ptr(v)
		}
		if slope, ok := ta.Slope(rsi, cfg.RSISlopeLookback); ok {
			f.RSISlope = ptr(slope)
		}
	}

	if n >= cfg.MACDSlow {
		line, _, hist := ta.MACDSeries(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
		f.MACDLine = ptr(line[n-1])
		f.MACDHist = ptr(hist[n-1])
		if n >= 2 {
			f.MACDHistDelta = ptr(hist[n-1] - hist[n-2])
		}
	}

	f.HeikenColor, f.HeikenStreak = ta.HeikenAshiStreak(candles)

	if n >= 2 {
		f.FailedVWAPReclaim = closes[n-2] > vwap[n-2] && closes[n-1] < vwap[n-1] && closes[n-1] < vwap[n-2]
	}
	f.Crosses = ta.CountCrosses(closes, vwap, cfg.CrossLookback)

	if recent, avg, ok := ta.VolumeRatio(candles, cfg.VolumeRecent, cfg.VolumeTrailing); ok {
		f.VolumeRecent = ptr(recent)
		f.VolumeAvg = ptr(avg)
	}
	return f
}

func (f Features) ScoreInputs() ta.ScoreInputs {
	return ta.ScoreInputs{
		Price:             f.Price,
		VWAP:              f.VWAP,
		VWAPSlope:         f.VWAPSlope,
		RSI:               f.RSI,
		RSISlope:          f.RSISlope,
		MACDLine:          f.MACDLine,
		MACDHist:          f.MACDHist,
		MACDHistDelta:     f.MACDHistDelta,
		HeikenColor:       f.HeikenColor,
		HeikenStreak:      f.HeikenStreak,
		FailedVWAPReclaim: f.FailedVWAPReclaim,
	}
}

func (f Features) RegimeInputs() regime.Inputs {
	return regime.Inputs{
		Price:        f.Price,
		VWAP:         f.VWAP,
		VWAPSlope:    f.VWAPSlope,
		Crosses:      f.Crosses,
		VolumeRecent: f.VolumeRecent,
		VolumeAvg:    f.VolumeAvg,
	}
}

func ptr(v float64) *float64 { return &v }
