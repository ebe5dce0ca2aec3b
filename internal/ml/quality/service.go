package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"updown-trader/internal/domain"
	"updown-trader/internal/ml/models/logreg"
	"updown-trader/internal/ml/models/xgboost"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	BackendLogReg  = "logreg"
	BackendXGBoost = "xgboost"

	formatLogReg  = "json/logreg-v2"
	formatXGBoost = "json/boo-xgboost-v2"

	SourceModel   = "model"
	SourceWinRate = "win_rate"
)

var ErrNotEnoughSamples = errors.New("not enough labelled outcomes")

type ModelRegistry interface {
	NextVersion(ctx context.Context, modelKey string) (int, error)
	InsertModelVersion(ctx context.Context, model domain.QualityModelVersion) (*domain.QualityModelVersion, error)
	GetActiveModel(ctx context.Context, modelKey string) (*domain.QualityModelVersion, error)
	ActivateModel(ctx context.Context, modelKey string, version int) error
}

type predictor interface {
	PredictProb(sample []float64) float64
	PredictBatch(samples [][]float64) []float64
	MarshalBinary() ([]byte, error)
}

type Config struct {
	Backend      string `yaml:"backend" default:"logreg" validate:"oneof=logreg xgboost"`
	MinSamples   int    `yaml:"min_samples" default:"30" validate:"gte=10"`
	RetrainEvery int    `yaml:"retrain_every" default:"10" validate:"gte=1"`
	MaxSamples   int    `yaml:"max_samples" default:"500" validate:"gtefield=MinSamples"`
	// PromoteMargin is the AUC gain a retrained model needs over the active one.
	PromoteMargin float64 `yaml:"promote_margin" default:"0" validate:"gte=0,lte=0.5"`
}

// Estimate is the model's view of one candidate entry.
type Estimate struct {
	WinProb    float64 `json:"win_prob"`
	UpProb     float64 `json:"up_prob"`
	Confidence float64 `json:"confidence"`
	Available  bool    `json:"available"`
	Source     string  `json:"source,omitempty"`
	Samples    int     `json:"samples"`
}

type TrainResult struct {
	ModelKey    string             `json:"model_key"`
	Version     int                `json:"version"`
	SampleCount int                `json:"sample_count"`
	Metrics     map[string]float64 `json:"metrics"`
	Promoted    bool               `json:"promoted"`
}

type Status struct {
	Backend      string `json:"backend"`
	Samples      int    `json:"samples"`
	Wins         int    `json:"wins"`
	HasModel     bool   `json:"has_model"`
	ModelVersion int    `json:"model_version"`
}

// Service learns P(win) for entries from settled outcomes. Until a model is
// trained it falls back to the observed win rate.
type Service struct {
	tracer   trace.Tracer
	registry ModelRegistry
	cfg      Config
	now      func() time.Time

	mu           sync.RWMutex
	samples      [][]float64
	labels       []float64
	sinceTrain   int
	model        predictor
	modelVersion int
}

func NewService(tracer trace.Tracer, registry ModelRegistry, cfg Config) *Service {
	if cfg.Backend != BackendXGBoost {
		cfg.Backend = BackendLogReg
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 30
	}
	if cfg.RetrainEvery <= 0 {
		cfg.RetrainEvery = 10
	}
	if cfg.MaxSamples < cfg.MinSamples {
		cfg.MaxSamples = 500
	}
	return &Service{
		tracer:   tracer,
		registry: registry,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) modelKey() string {
	return "quality_" + s.cfg.Backend
}

// Load restores the active model from the registry, if any.
func (s *Service) Load(ctx context.Context) error {
	if s.registry == nil {
		return nil
	}
	_, span := s.tracer.Start(ctx, "quality.load")
	defer span.End()

	active, err := s.registry.GetActiveModel(ctx, s.modelKey())
	if err != nil {
		return fmt.Errorf("load active quality model: %w", err)
	}
	if active == nil {
		return nil
	}
	model, err := decode(active.ArtifactFormat, active.ArtifactBlob)
	if err != nil {
		return fmt.Errorf("decode quality model v%d: %w", active.Version, err)
	}
	s.mu.Lock()
	s.model = model
	s.modelVersion = active.Version
	s.mu.Unlock()
	log.Info().Str("model_key", active.ModelKey).Int("version", active.Version).Msg("quality model loaded")
	return nil
}

// Estimate scores an entry snapshot for the side the signal leans toward.
func (s *Service) Estimate(features []float64, leaning domain.Side) Estimate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.labels)
	est := Estimate{Samples: n}
	switch {
	case s.model != nil && len(features) == len(FeatureNames):
		est.WinProb = s.model.PredictProb(features)
		est.Source = SourceModel
	case n >= s.cfg.MinSamples:
		wins := 0.0
		for _, y := range s.labels {
			wins += y
		}
		est.WinProb = wins / float64(n)
		est.Source = SourceWinRate
	default:
		return est
	}
	est.WinProb = math.Max(0.01, math.Min(0.99, est.WinProb))
	est.Available = true
	est.UpProb = est.WinProb
	if leaning == domain.SideDown {
		est.UpProb = 1 - est.WinProb
	}
	sampleFactor := math.Min(1, float64(n)/float64(2*s.cfg.MinSamples))
	est.Confidence = sampleFactor * math.Abs(2*est.WinProb-1)
	return est
}

// Observe records one settled outcome and retrains when enough new outcomes
// have accumulated.
func (s *Service) Observe(ctx context.Context, meta domain.SignalMetadata, won bool) {
	if len(meta.Features) != len(FeatureNames) {
		log.Debug().Str("trade_id", meta.TradeID).Int("features", len(meta.Features)).Msg("skipping outcome with unexpected feature layout")
		return
	}
	label := 0.0
	if won {
		label = 1
	}

	s.mu.Lock()
	s.samples = append(s.samples, append([]float64(nil), meta.Features...))
	s.labels = append(s.labels, label)
	if over := len(s.labels) - s.cfg.MaxSamples; over > 0 {
		s.samples = append(s.samples[:0:0], s.samples[over:]...)
		s.labels = append(s.labels[:0:0], s.labels[over:]...)
	}
	s.sinceTrain++
	due := s.sinceTrain >= s.cfg.RetrainEvery && len(s.labels) >= s.cfg.MinSamples && hasBothClasses(s.labels)
	s.mu.Unlock()

	if !due {
		return
	}
	res, err := s.Retrain(ctx)
	if err != nil {
		log.Warn().Err(err).Str("model_key", s.modelKey()).Msg("quality model retrain failed")
		return
	}
	log.Info().
		Str("model_key", res.ModelKey).
		Int("version", res.Version).
		Int("samples", res.SampleCount).
		Float64("auc", res.Metrics["auc"]).
		Bool("promoted", res.Promoted).
		Msg("quality model retrained")
}

// Retrain fits a new model on the buffered outcomes, persists it and promotes
// it when it evaluates at least as well as the active one.
func (s *Service) Retrain(ctx context.Context) (TrainResult, error) {
	_, span := s.tracer.Start(ctx, "quality.retrain")
	defer span.End()

	s.mu.Lock()
	samples := append([][]float64(nil), s.samples...)
	labels := append([]float64(nil), s.labels...)
	s.sinceTrain = 0
	s.mu.Unlock()

	if len(labels) < s.cfg.MinSamples || !hasBothClasses(labels) {
		return TrainResult{}, ErrNotEnoughSamples
	}
	span.SetAttributes(attribute.Int("samples", len(labels)))

	trainX, trainY, testX, testY := holdoutSplit(samples, labels)
	model, format, err := s.train(trainX, trainY)
	if err != nil {
		return TrainResult{}, err
	}
	metrics := computeMetrics(testY, model.PredictBatch(testX))
	result := TrainResult{ModelKey: s.modelKey(), SampleCount: len(labels), Metrics: metrics}

	if s.registry == nil {
		result.Promoted = true
		s.swap(model, 0)
		return result, nil
	}

	blob, err := model.MarshalBinary()
	if err != nil {
		return result, fmt.Errorf("marshal quality model: %w", err)
	}
	version, err := s.registry.NextVersion(ctx, s.modelKey())
	if err != nil {
		return result, fmt.Errorf("next model version: %w", err)
	}
	metricsJSON, _ := json.Marshal(metrics)
	inserted, err := s.registry.InsertModelVersion(ctx, domain.QualityModelVersion{
		ModelKey:       s.modelKey(),
		Version:        version,
		SampleCount:    len(labels),
		ArtifactFormat: format,
		ArtifactBlob:   blob,
		MetricsJSON:    string(metricsJSON),
		TrainedAt:      s.now(),
	})
	if err != nil {
		return result, fmt.Errorf("insert quality model: %w", err)
	}
	result.Version = inserted.Version

	promote, err := s.shouldPromote(ctx, metrics["auc"])
	if err != nil {
		return result, err
	}
	if !promote {
		return result, nil
	}
	if err := s.registry.ActivateModel(ctx, s.modelKey(), inserted.Version); err != nil {
		return result, fmt.Errorf("activate quality model: %w", err)
	}
	result.Promoted = true
	s.swap(model, inserted.Version)
	return result, nil
}

func (s *Service) train(x [][]float64, y []float64) (predictor, string, error) {
	if s.cfg.Backend == BackendXGBoost {
		m, err := xgboost.Train(x, y, FeatureNames, xgboost.DefaultTrainOptions())
		if err != nil {
			return nil, "", fmt.Errorf("train xgboost: %w", err)
		}
		return m, formatXGBoost, nil
	}
	m, err := logreg.Train(x, y, FeatureNames, logreg.DefaultTrainOptions())
	if err != nil {
		return nil, "", fmt.Errorf("train logreg: %w", err)
	}
	return m, formatLogReg, nil
}

func (s *Service) shouldPromote(ctx context.Context, newAUC float64) (bool, error) {
	active, err := s.registry.GetActiveModel(ctx, s.modelKey())
	if err != nil {
		return false, err
	}
	if active == nil {
		return true, nil
	}
	activeAUC, ok := metricValue(active.MetricsJSON, "auc")
	if !ok {
		return true, nil
	}
	return newAUC >= activeAUC+s.cfg.PromoteMargin, nil
}

func (s *Service) swap(model predictor, version int) {
	s.mu.Lock()
	s.model = model
	s.modelVersion = version
	s.mu.Unlock()
}

func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wins := 0
	for _, y := range s.labels {
		if y >= 0.5 {
			wins++
		}
	}
	return Status{
		Backend:      s.cfg.Backend,
		Samples:      len(s.labels),
		Wins:         wins,
		HasModel:     s.model != nil,
		ModelVersion: s.modelVersion,
	}
}

func decode(format string, blob []byte) (predictor, error) {
	switch format {
	case formatLogReg:
		return logreg.UnmarshalBinary(blob)
	case formatXGBoost:
		return xgboost.UnmarshalBinary(blob)
	default:
		return nil, fmt.Errorf("unknown artifact format %q", format)
	}
}
