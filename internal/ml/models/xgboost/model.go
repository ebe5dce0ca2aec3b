package xgboost

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/rmera/boo"
	"github.com/rmera/boo/utils"
)

// TrainOptions are sized for the few hundred outcomes a quality model sees.
type TrainOptions struct {
	Rounds        int
	LearningRate  float64
	MaxDepth      int
	MinClassCount int
}

type artifact struct {
	FeatureNames []string `json:"feature_names"`
	ModelText    string   `json:"model_text"`
}

type Model struct {
	featureNames []string
	boost        *boo.MultiClass
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Rounds:        25,
		LearningRate:  0.1,
		MaxDepth:      3,
		MinClassCount: 5,
	}
}

// Train fits a two-class boosted tree model; label 1 is a winning trade.
func Train(samples [][]float64, labels []float64, featureNames []string, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return nil, errors.New("invalid training dataset")
	}
	if len(samples[0]) == 0 {
		return nil, errors.New("empty feature vectors")
	}
	defaults := DefaultTrainOptions()
	if opts.Rounds <= 0 {
		opts.Rounds = defaults.Rounds
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = defaults.LearningRate
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaults.MaxDepth
	}
	if opts.MinClassCount <= 0 {
		opts.MinClassCount = 1
	}

	intLabels := make([]int, len(labels))
	counts := [2]int{}
	for i, v := range labels {
		if v >= 0.5 {
			intLabels[i] = 1
		}
		counts[intLabels[i]]++
	}
	if counts[0] < opts.MinClassCount || counts[1] < opts.MinClassCount {
		return nil, fmt.Errorf("need %d samples per class, got %d losses and %d wins", opts.MinClassCount, counts[0], counts[1])
	}
	if len(featureNames) != len(samples[0]) {
		featureNames = make([]string, len(samples[0]))
		for i := range featureNames {
			featureNames[i] = fmt.Sprintf("f%d", i)
		}
	}

	o := boo.DefaultXOptions()
	o.Rounds = opts.Rounds
	o.LearningRate = opts.LearningRate
	o.MaxDepth = opts.MaxDepth
	o.Verbose = false
	o.EarlyStop = 0

	model := boo.NewMultiClass(&utils.DataBunch{
		Data:   samples,
		Labels: intLabels,
		Keys:   featureNames,
	}, o)
	if model == nil {
		return nil, errors.New("failed to train xgboost model")
	}
	return &Model{featureNames: append([]string(nil), featureNames...), boost: model}, nil
}

func (m *Model) PredictProb(sample []float64) float64 {
	if m == nil || m.boost == nil || len(sample) != len(m.featureNames) {
		return 0.5
	}
	probs := m.boost.PredictSingle(sample)
	for i, label := range m.boost.ClassLabels() {
		if label == 1 && i < len(probs) {
			return clamp01(probs[i])
		}
	}
	if len(probs) == 0 {
		return 0.5
	}
	return clamp01(probs[len(probs)-1])
}

func (m *Model) PredictBatch(samples [][]float64) []float64 {
	out := make([]float64, len(samples))
	for i := range samples {
		out[i] = m.PredictProb(samples[i])
	}
	return out
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil || m.boost == nil {
		return nil, errors.New("nil model")
	}
	var buf bytes.Buffer
	if err := boo.JSONMultiClass(m.boost, "softmax", &buf); err != nil {
		return nil, err
	}
	return json.Marshal(artifact{
		FeatureNames: m.featureNames,
		ModelText:    buf.String(),
	})
}

func UnmarshalBinary(blob []byte) (*Model, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	if a.ModelText == "" || len(a.FeatureNames) == 0 {
		return nil, errors.New("invalid artifact")
	}
	model, err := boo.UnJSONMultiClass(bufio.NewReader(bytes.NewReader([]byte(a.ModelText))))
	if err != nil {
		return nil, err
	}
	return &Model{featureNames: append([]string(nil), a.FeatureNames...), boost: model}, nil
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.featureNames...)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}
