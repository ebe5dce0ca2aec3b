package logreg

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// TrainOptions configures batch gradient descent. RecencyHalfLife, when set,
// weights each sample by 0.5^(age/halfLife) where age counts samples from the
// newest one, so recent outcomes dominate a drifting market.
type TrainOptions struct {
	LearningRate    float64
	Epochs          int
	L2              float64
	RecencyHalfLife int
}

type Artifact struct {
	FeatureNames    []string  `json:"feature_names"`
	Weights         []float64 `json:"weights"`
	Bias            float64   `json:"bias"`
	Means           []float64 `json:"means"`
	Stds            []float64 `json:"stds"`
	L2              float64   `json:"l2"`
	LearningRate    float64   `json:"learning_rate"`
	Epochs          int       `json:"epochs"`
	RecencyHalfLife int       `json:"recency_half_life"`
}

type Model struct {
	artifact Artifact
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LearningRate:    0.1,
		Epochs:          400,
		L2:              0.01,
		RecencyHalfLife: 200,
	}
}

// Train fits P(label=1 | sample) on standardised features.
func Train(samples [][]float64, labels []float64, featureNames []string, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return nil, errors.New("invalid training dataset")
	}
	featCount := len(samples[0])
	if featCount == 0 {
		return nil, errors.New("empty feature vectors")
	}
	for i := range samples {
		if len(samples[i]) != featCount {
			return nil, errors.New("ragged feature vectors")
		}
	}
	defaults := DefaultTrainOptions()
	if opts.LearningRate <= 0 {
		opts.LearningRate = defaults.LearningRate
	}
	if opts.Epochs <= 0 {
		opts.Epochs = defaults.Epochs
	}
	if opts.L2 < 0 {
		opts.L2 = defaults.L2
	}

	sampleWeights := recencyWeights(len(samples), opts.RecencyHalfLife)
	totalWeight := 0.0
	for _, w := range sampleWeights {
		totalWeight += w
	}

	means := make([]float64, featCount)
	stds := make([]float64, featCount)
	for j := 0; j < featCount; j++ {
		for i := range samples {
			means[j] += samples[i][j]
		}
		means[j] /= float64(len(samples))
		for i := range samples {
			d := samples[i][j] - means[j]
			stds[j] += d * d
		}
		stds[j] = math.Sqrt(stds[j] / float64(len(samples)))
		if stds[j] == 0 {
			stds[j] = 1
		}
	}

	normalized := make([][]float64, len(samples))
	for i := range samples {
		normalized[i] = normalize(samples[i], means, stds)
	}

	weights := make([]float64, featCount)
	bias := 0.0
	grads := make([]float64, featCount)
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grads {
			grads[j] = 0
		}
		gradBias := 0.0
		for i, x := range normalized {
			err := (sigmoid(dot(weights, x)+bias) - labels[i]) * sampleWeights[i]
			for j := range grads {
				grads[j] += err * x[j]
			}
			gradBias += err
		}
		for j := range weights {
			weights[j] -= opts.LearningRate * (grads[j]/totalWeight + opts.L2*weights[j])
		}
		bias -= opts.LearningRate * (gradBias / totalWeight)
	}

	if len(featureNames) != featCount {
		featureNames = defaultFeatureNames(featCount)
	}

	return &Model{artifact: Artifact{
		FeatureNames:    append([]string(nil), featureNames...),
		Weights:         weights,
		Bias:            bias,
		Means:           means,
		Stds:            stds,
		L2:              opts.L2,
		LearningRate:    opts.LearningRate,
		Epochs:          opts.Epochs,
		RecencyHalfLife: opts.RecencyHalfLife,
	}}, nil
}

func recencyWeights(n, halfLife int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if halfLife <= 0 {
			out[i] = 1
			continue
		}
		age := float64(n - 1 - i)
		out[i] = math.Pow(0.5, age/float64(halfLife))
	}
	return out
}

func (m *Model) PredictProb(sample []float64) float64 {
	if m == nil || len(sample) != len(m.artifact.Weights) {
		return 0.5
	}
	x := normalize(sample, m.artifact.Means, m.artifact.Stds)
	return sigmoid(dot(m.artifact.Weights, x) + m.artifact.Bias)
}

func (m *Model) PredictBatch(samples [][]float64) []float64 {
	probs := make([]float64, len(samples))
	for i := range samples {
		probs[i] = m.PredictProb(samples[i])
	}
	return probs
}

// Coefficients maps feature names to their standardised weights.
func (m *Model) Coefficients() map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m.artifact.Weights))
	for i, w := range m.artifact.Weights {
		out[m.artifact.FeatureNames[i]] = w
	}
	return out
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return json.Marshal(m.artifact)
}

func UnmarshalBinary(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	n := len(a.Weights)
	if n == 0 || n != len(a.Means) || n != len(a.Stds) || n != len(a.FeatureNames) {
		return nil, errors.New("invalid artifact")
	}
	return &Model{artifact: a}, nil
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.artifact.FeatureNames...)
}

func sigmoid(x float64) float64 {
	if x > 35 {
		return 1
	}
	if x < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

func dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func normalize(in, means, stds []float64) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		out[i] = (in[i] - means[i]) / stds[i]
	}
	return out
}

func defaultFeatureNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "f" + strconv.Itoa(i)
	}
	return out
}
