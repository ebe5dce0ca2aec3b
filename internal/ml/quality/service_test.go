package quality

import (
	"context"
	"encoding/json"
	"testing"

	"updown-trader/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubRegistry struct {
	versions []domain.QualityModelVersion
	active   int
}

func (s *stubRegistry) NextVersion(_ context.Context, _ string) (int, error) {
	return len(s.versions) + 1, nil
}

func (s *stubRegistry) InsertModelVersion(_ context.Context, m domain.QualityModelVersion) (*domain.QualityModelVersion, error) {
	m.ID = int64(len(s.versions) + 1)
	s.versions = append(s.versions, m)
	return &m, nil
}

func (s *stubRegistry) GetActiveModel(_ context.Context, _ string) (*domain.QualityModelVersion, error) {
	for i := range s.versions {
		if s.versions[i].Version == s.active {
			v := s.versions[i]
			v.IsActive = true
			return &v, nil
		}
	}
	return nil, nil
}

func (s *stubRegistry) ActivateModel(_ context.Context, _ string, version int) error {
	s.active = version
	return nil
}

func testService(reg ModelRegistry) *Service {
	return NewService(trace.NewNoopTracerProvider().Tracer("test"), reg, Config{
		Backend:      BackendLogReg,
		MinSamples:   30,
		RetrainEvery: 10,
		MaxSamples:   200,
	})
}

func outcomeMeta(won bool) domain.SignalMetadata {
	edge := -0.08
	if won {
		edge = 0.08
	}
	return domain.SignalMetadata{
		TradeID:  "t",
		MarketID: "btc-15m",
		Side:     domain.SideUp,
		Features: []float64{edge, 0.6, 0.004, 0.5, 0.1, 0.02, 1, 0},
	}
}

func TestEstimateUnavailableBelowMinSamples(t *testing.T) {
	svc := testService(nil)
	for i := 0; i < 5; i++ {
		svc.Observe(context.Background(), outcomeMeta(i%2 == 0), i%2 == 0)
	}
	est := svc.Estimate(outcomeMeta(true).Features, domain.SideUp)
	if est.Available {
		t.Fatalf("expected unavailable estimate, got %+v", est)
	}
	if est.Samples != 5 {
		t.Fatalf("expected 5 samples, got %d", est.Samples)
	}
}

func TestObserveSkipsWrongFeatureWidth(t *testing.T) {
	svc := testService(nil)
	svc.Observe(context.Background(), domain.SignalMetadata{Features: []float64{1, 2}}, true)
	if got := svc.Status().Samples; got != 0 {
		t.Fatalf("expected sample to be skipped, have %d", got)
	}
}

func TestObserveTrainsAndPromotes(t *testing.T) {
	reg := &stubRegistry{}
	svc := testService(reg)
	for i := 0; i < 40; i++ {
		won := i%2 == 0
		svc.Observe(context.Background(), outcomeMeta(won), won)
	}

	status := svc.Status()
	if !status.HasModel {
		t.Fatalf("expected a trained model, status %+v", status)
	}
	if status.Samples != 40 || status.Wins != 20 {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(reg.versions) != 2 {
		t.Fatalf("expected retrain at 30 and 40 outcomes, got %d versions", len(reg.versions))
	}
	if reg.active != 2 || status.ModelVersion != 2 {
		t.Fatalf("expected version 2 active, registry=%d service=%d", reg.active, status.ModelVersion)
	}
	if reg.versions[0].ArtifactFormat != formatLogReg {
		t.Fatalf("unexpected artifact format %q", reg.versions[0].ArtifactFormat)
	}
	var metrics map[string]float64
	if err := json.Unmarshal([]byte(reg.versions[1].MetricsJSON), &metrics); err != nil {
		t.Fatalf("metrics json: %v", err)
	}
	if _, ok := metrics["auc"]; !ok {
		t.Fatalf("expected auc in metrics, got %v", metrics)
	}

	up := svc.Estimate(outcomeMeta(true).Features, domain.SideUp)
	if !up.Available || up.Source != SourceModel {
		t.Fatalf("expected model estimate, got %+v", up)
	}
	if up.WinProb <= 0.5 {
		t.Fatalf("winning-like features should score above 0.5, got %.3f", up.WinProb)
	}
	if up.UpProb != up.WinProb {
		t.Fatalf("UP leaning should keep the win probability, got %+v", up)
	}

	down := svc.Estimate(outcomeMeta(true).Features, domain.SideDown)
	if diff := down.UpProb - (1 - down.WinProb); diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("DOWN leaning should flip the probability, got %+v", down)
	}

	lose := svc.Estimate(outcomeMeta(false).Features, domain.SideUp)
	if lose.WinProb >= up.WinProb {
		t.Fatalf("losing-like features should score below winning ones: %.3f vs %.3f", lose.WinProb, up.WinProb)
	}
}

func TestRetrainKeepsBetterActiveModel(t *testing.T) {
	reg := &stubRegistry{
		versions: []domain.QualityModelVersion{{Version: 1, MetricsJSON: `{"auc":1.5}`}},
		active:   1,
	}
	svc := testService(reg)
	for i := 0; i < 30; i++ {
		won := i%2 == 0
		svc.Observe(context.Background(), outcomeMeta(won), won)
	}
	if len(reg.versions) != 2 {
		t.Fatalf("expected the new version to be stored, got %d", len(reg.versions))
	}
	if reg.active != 1 {
		t.Fatalf("active model should not change, got %d", reg.active)
	}
	if svc.Status().HasModel {
		t.Fatal("unpromoted model should not be served")
	}
}

func TestEstimateFallsBackToWinRate(t *testing.T) {
	svc := testService(nil)
	svc.cfg.RetrainEvery = 1000
	for i := 0; i < 40; i++ {
		won := i%4 != 0
		svc.Observe(context.Background(), outcomeMeta(won), won)
	}
	est := svc.Estimate(outcomeMeta(true).Features, domain.SideDown)
	if !est.Available || est.Source != SourceWinRate {
		t.Fatalf("expected win-rate estimate, got %+v", est)
	}
	if est.WinProb != 0.75 {
		t.Fatalf("expected win rate 0.75, got %.3f", est.WinProb)
	}
	if d := est.UpProb - 0.25; d > 1e-12 || d < -1e-12 {
		t.Fatalf("expected flipped up prob 0.25, got %.3f", est.UpProb)
	}
	want := (40.0 / 60.0) * 0.5
	if d := est.Confidence - want; d > 1e-9 || d < -1e-9 {
		t.Fatalf("expected confidence %.4f, got %.4f", want, est.Confidence)
	}
}

func TestLoadRestoresActiveModel(t *testing.T) {
	reg := &stubRegistry{}
	trainer := testService(reg)
	for i := 0; i < 30; i++ {
		won := i%2 == 0
		trainer.Observe(context.Background(), outcomeMeta(won), won)
	}
	if reg.active == 0 {
		t.Fatal("expected an active model")
	}

	fresh := testService(reg)
	if err := fresh.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	st := fresh.Status()
	if !st.HasModel || st.ModelVersion != reg.active {
		t.Fatalf("expected loaded model v%d, got %+v", reg.active, st)
	}
}

func TestComputeAUC(t *testing.T) {
	if got := computeAUC([]float64{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}); got != 1 {
		t.Fatalf("perfect ranking auc = %v", got)
	}
	if got := computeAUC([]float64{0, 1}, []float64{0.5, 0.5}); got != 0.5 {
		t.Fatalf("tied auc = %v", got)
	}
}
