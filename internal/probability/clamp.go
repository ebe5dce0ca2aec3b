package probability

import (
	"errors"
	"fmt"
	"math"
)

const (
	MinProb = 0.01
	MaxProb = 0.99
)

var ErrInvalidProbability = errors.New("invalid probability")

// Clamp bounds a probability to [MinProb, MaxProb]. Callers validate finiteness
// first; Clamp never hides a NaN because NaN comparisons fall through to the input.
func Clamp(p float64) float64 {
	return clampRange(p, MinProb, MaxProb)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Validate rejects non-finite values and values outside [0, 1].
func Validate(name string, p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return fmt.Errorf("%w: %s is not finite", ErrInvalidProbability, name)
	}
	if p < 0 || p > 1 {
		return fmt.Errorf("%w: %s=%.6f outside [0,1]", ErrInvalidProbability, name, p)
	}
	return nil
}
