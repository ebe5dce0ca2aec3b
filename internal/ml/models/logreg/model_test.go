package logreg

import (
	"math"
	"testing"
)

func TestTrainPredictAndRoundTrip(t *testing.T) {
	samples, labels := separableData()
	model, err := Train(samples, labels, []string{"edge", "alignment"}, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}

	pLow := model.PredictProb([]float64{-2, -2})
	pHigh := model.PredictProb([]float64{3, 3})
	if pLow >= 0.5 {
		t.Fatalf("expected low sample prob < 0.5, got %.4f", pLow)
	}
	if pHigh <= 0.5 {
		t.Fatalf("expected high sample prob > 0.5, got %.4f", pHigh)
	}

	blob, err := model.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	restored, err := UnmarshalBinary(blob)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if diff := math.Abs(restored.PredictProb([]float64{3, 3}) - pHigh); diff > 1e-6 {
		t.Fatalf("roundtrip changed prediction by %.8f", diff)
	}
	if coef := restored.Coefficients(); coef["edge"] <= 0 {
		t.Fatalf("expected positive edge coefficient, got %v", coef)
	}
}

func TestTrainRejectsBadInput(t *testing.T) {
	if _, err := Train(nil, nil, nil, DefaultTrainOptions()); err == nil {
		t.Fatal("expected error for empty dataset")
	}
	if _, err := Train([][]float64{{1, 2}, {1}}, []float64{0, 1}, nil, DefaultTrainOptions()); err == nil {
		t.Fatal("expected error for ragged features")
	}
	if _, err := UnmarshalBinary([]byte(`{"weights":[1],"means":[0],"stds":[1]}`)); err == nil {
		t.Fatal("expected error for artifact without feature names")
	}
}

func TestRecencyWeights(t *testing.T) {
	w := recencyWeights(3, 1)
	if w[2] != 1 || w[1] != 0.5 || w[0] != 0.25 {
		t.Fatalf("unexpected weights %v", w)
	}
	for _, v := range recencyWeights(3, 0) {
		if v != 1 {
			t.Fatalf("half-life 0 must weight uniformly, got %v", v)
		}
	}
}

func separableData() ([][]float64, []float64) {
	samples := make([][]float64, 0, 80)
	labels := make([]float64, 0, 80)
	for i := 0; i < 40; i++ {
		samples = append(samples, []float64{-1.5 - float64(i)/40, -1.0 - float64(i)/60})
		labels = append(labels, 0)
	}
	for i := 0; i < 40; i++ {
		samples = append(samples, []float64{1.0 + float64(i)/40, 1.4 + float64(i)/60})
		labels = append(labels, 1)
	}
	return samples, labels
}
