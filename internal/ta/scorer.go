package ta

// ScoreInputs carries the indicator readings for one tick. Nil means the
// indicator could not be computed.
type ScoreInputs struct {
	Price             *float64
	VWAP              *float64
	VWAPSlope         *float64
	RSI               *float64
	RSISlope          *float64
	MACDLine          *float64
	MACDHist          *float64
	MACDHistDelta     *float64
	HeikenColor       HeikenColor
	HeikenStreak      int
	FailedVWAPReclaim bool
}

type ScoreResult struct {
	UpScore   float64 `json:"up_score"`
	DownScore float64 `json:"down_score"`
	RawUp     float64 `json:"raw_up"`
}

// Alignment is the share of directional points (above the 1/1 start) that back side up.
func (r ScoreResult) Alignment(up bool) float64 {
	total := r.UpScore + r.DownScore - 2
	if total <= 0 {
		return 0.5
	}
	if up {
		return (r.UpScore - 1) / total
	}
	return (r.DownScore - 1) / total
}

// Score runs the additive point system. With no inputs it returns 0.5.
func Score(in ScoreInputs) ScoreResult {
	up, down := 1.0, 1.0

	if in.Price != nil && in.VWAP != nil {
		if *in.Price > *in.VWAP {
			up += 2
		}
		if *in.Price < *in.VWAP {
			down += 2
		}
	}

	if in.VWAPSlope != nil {
		if *in.VWAPSlope > 0 {
			up += 2
		}
		if *in.VWAPSlope < 0 {
			down += 2
		}
	}

	if in.RSI != nil && in.RSISlope != nil {
		if *in.RSI > 55 && *in.RSISlope > 0 {
			up += 2
		}
		if *in.RSI < 45 && *in.RSISlope < 0 {
			down += 2
		}
	}

	if in.MACDHist != nil && in.MACDHistDelta != nil {
		if *in.MACDHist > 0 && *in.MACDHistDelta > 0 {
			up += 2
		}
		if *in.MACDHist < 0 && *in.MACDHistDelta < 0 {
			down += 2
		}
	}
	if in.MACDLine != nil {
		if *in.MACDLine > 0 {
			up++
		}
		if *in.MACDLine < 0 {
			down++
		}
	}

	if in.HeikenStreak >= 2 {
		switch in.HeikenColor {
		case HeikenGreen:
			up++
		case HeikenRed:
			down++
		}
	}

	if in.FailedVWAPReclaim {
		down += 3
	}

	return ScoreResult{UpScore: up, DownScore: down, RawUp: up / (up + down)}
}

// ApplyTimeDecay pulls a raw probability toward 0.5 as the window runs out of time
// for the indicators to play out.
func ApplyTimeDecay(rawUp, remainingMinutes, windowMinutes float64) float64 {
	if windowMinutes <= 0 {
		return rawUp
	}
	decay := remainingMinutes / windowMinutes
	if decay < 0 {
		decay = 0
	}
	if decay > 1 {
		decay = 1
	}
	return 0.5 + (rawUp-0.5)*decay
}
