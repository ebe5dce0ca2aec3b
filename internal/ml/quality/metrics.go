package quality

import (
	"encoding/json"
	"math"
	"sort"
)

// holdoutSplit keeps the newest fifth of the samples for evaluation.
func holdoutSplit(samples [][]float64, labels []float64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) {
	n := len(samples)
	cut := int(float64(n) * 0.8)
	if cut < 1 {
		cut = 1
	}
	if cut >= n {
		cut = n - 1
	}
	return samples[:cut], labels[:cut], samples[cut:], labels[cut:]
}

func hasBothClasses(labels []float64) bool {
	var pos, neg bool
	for _, y := range labels {
		if y >= 0.5 {
			pos = true
		} else {
			neg = true
		}
	}
	return pos && neg
}

func computeMetrics(labels, probs []float64) map[string]float64 {
	n := len(labels)
	if n == 0 || len(probs) != n {
		return map[string]float64{"auc": 0.5, "accuracy": 0, "brier": 0, "n_test": 0}
	}
	correct := 0.0
	brier := 0.0
	for i := range labels {
		p := clamp01(probs[i])
		if (p >= 0.5) == (labels[i] >= 0.5) {
			correct++
		}
		d := p - labels[i]
		brier += d * d
	}
	return map[string]float64{
		"auc":      computeAUC(labels, probs),
		"accuracy": correct / float64(n),
		"brier":    brier / float64(n),
		"n_test":   float64(n),
	}
}

// computeAUC is the Mann-Whitney rank statistic with averaged tie ranks.
func computeAUC(labels, probs []float64) float64 {
	type pair struct {
		p float64
		y float64
	}
	pairs := make([]pair, len(labels))
	pos, neg := 0.0, 0.0
	for i := range labels {
		pairs[i] = pair{p: clamp01(probs[i]), y: labels[i]}
		if labels[i] >= 0.5 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].p < pairs[j].p })

	sumRankPos := 0.0
	for i := 0; i < len(pairs); {
		j := i + 1
		for j < len(pairs) && math.Abs(pairs[j].p-pairs[i].p) < 1e-12 {
			j++
		}
		avgRank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if pairs[k].y >= 0.5 {
				sumRankPos += avgRank
			}
		}
		i = j
	}
	auc := (sumRankPos - pos*(pos+1)/2) / (pos * neg)
	if math.IsNaN(auc) || math.IsInf(auc, 0) {
		return 0.5
	}
	return auc
}

func metricValue(metricsJSON, key string) (float64, bool) {
	var m map[string]float64
	if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
		return 0, false
	}
	v, ok := m[key]
	return v, ok
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}
