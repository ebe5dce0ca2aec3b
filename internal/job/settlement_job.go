package job

import (
	"context"
	"sort"
	"time"

	"updown-trader/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type SettlementSource interface {
	FinalPrices(ctx context.Context, windowStartMs int64, markets []string) (map[string]float64, error)
}

type Settler interface {
	DueWindows(now time.Time) map[int64][]string
	Settle(ctx context.Context, windowStartMs int64, finalPrices map[string]float64) []domain.SettlementResult
	CleanupStale(now time.Time) int
}

type MetadataSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SettlementJob resolves closed windows against the published settlement prices.
type SettlementJob struct {
	tracer       trace.Tracer
	source       SettlementSource
	engine       Settler
	sweeper      MetadataSweeper
	pollInterval time.Duration
	now          func() time.Time
}

func NewSettlementJob(tracer trace.Tracer, source SettlementSource, engine Settler, sweeper MetadataSweeper, pollIntervalSecs int) *SettlementJob {
	interval := time.Duration(pollIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &SettlementJob{
		tracer:       tracer,
		source:       source,
		engine:       engine,
		sweeper:      sweeper,
		pollInterval: interval,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (j *SettlementJob) Start(ctx context.Context) {
	if j.source == nil || j.engine == nil {
		log.Warn().Msg("settlement job disabled: no price source or engine")
		<-ctx.Done()
		return
	}
	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *SettlementJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "settlement-job.run-once")
	defer span.End()

	now := j.now()
	due := j.engine.DueWindows(now)
	windows := make([]int64, 0, len(due))
	for w := range due {
		windows = append(windows, w)
	}
	sort.Slice(windows, func(a, b int) bool { return windows[a] < windows[b] })

	resolved := 0
	for _, w := range windows {
		prices, err := j.source.FinalPrices(ctx, w, due[w])
		if err != nil {
			log.Warn().Err(err).Int64("window_start", w).Msg("settle prices unavailable")
			continue
		}
		if len(prices) == 0 {
			continue
		}
		resolved += len(j.engine.Settle(ctx, w, prices))
	}

	dropped := j.engine.CleanupStale(now)
	swept := 0
	if j.sweeper != nil {
		n, err := j.sweeper.Sweep(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("signal metadata sweep failed")
		}
		swept = n
	}
	span.SetAttributes(
		attribute.Int("windows", len(windows)),
		attribute.Int("resolved", resolved),
		attribute.Int("stale_dropped", dropped),
	)
	if resolved > 0 || dropped > 0 || swept > 0 {
		log.Info().Int("resolved", resolved).Int("stale_dropped", dropped).Int("swept", swept).Msg("settlement pass")
	}
}
