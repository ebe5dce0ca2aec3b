package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"updown-trader/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNoSnapshot    = errors.New("no market snapshot")
	ErrStaleSnapshot = errors.New("market snapshot is stale")
)

// RedisReader is the subset of the go-redis client the feed reads with.
type RedisReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// snapshot is what the ingestion collaborators write per market.
type snapshot struct {
	domain.MarketTick
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisFeed reads already-resolved market snapshots and settlement prices that
// the ingestion side publishes to Redis.
type RedisFeed struct {
	client RedisReader
	tracer trace.Tracer
	maxAge time.Duration
}

func NewRedisFeed(client RedisReader, tracer trace.Tracer, maxAge time.Duration) *RedisFeed {
	return &RedisFeed{client: client, tracer: tracer, maxAge: maxAge}
}

func SnapshotKey(marketID string) string {
	return "market:snapshot:" + marketID
}

func SettleKey(marketID string, windowStartMs int64) string {
	return "market:settle:" + marketID + ":" + strconv.FormatInt(windowStartMs, 10)
}

// Tick returns the latest snapshot for a market stamped with now.
func (f *RedisFeed) Tick(ctx context.Context, marketID string, now time.Time) (domain.MarketTick, error) {
	_, span := f.tracer.Start(ctx, "feed.tick")
	defer span.End()
	span.SetAttributes(attribute.String("market", marketID))

	raw, err := f.client.Get(ctx, SnapshotKey(marketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.MarketTick{}, fmt.Errorf("%w: %s", ErrNoSnapshot, marketID)
	}
	if err != nil {
		return domain.MarketTick{}, fmt.Errorf("read snapshot %s: %w", marketID, err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.MarketTick{}, fmt.Errorf("decode snapshot %s: %w", marketID, err)
	}
	if f.maxAge > 0 && !snap.UpdatedAt.IsZero() && now.Sub(snap.UpdatedAt) > f.maxAge {
		return domain.MarketTick{}, fmt.Errorf("%w: %s updated %s ago", ErrStaleSnapshot, marketID, now.Sub(snap.UpdatedAt).Round(time.Second))
	}
	tick := snap.MarketTick
	if tick.MarketID == "" {
		tick.MarketID = marketID
	}
	tick.Now = now
	return tick, nil
}

// FinalPrices returns the published settlement price of each market for the
// window. Markets without a published price are omitted.
func (f *RedisFeed) FinalPrices(ctx context.Context, windowStartMs int64, markets []string) (map[string]float64, error) {
	_, span := f.tracer.Start(ctx, "feed.final-prices")
	defer span.End()
	span.SetAttributes(attribute.Int64("window_start_ms", windowStartMs), attribute.Int("markets", len(markets)))

	out := make(map[string]float64, len(markets))
	if len(markets) == 0 {
		return out, nil
	}
	keys := make([]string, len(markets))
	for i, m := range markets {
		keys[i] = SettleKey(m, windowStartMs)
	}
	values, err := f.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read settle prices: %w", err)
	}
	for i, v := range values {
		if v == nil || i >= len(markets) {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(s, 64)
		if err != nil || price <= 0 {
			log.Warn().Str("market", markets[i]).Str("value", s).Msg("ignoring invalid settle price")
			continue
		}
		out[markets[i]] = price
	}
	return out, nil
}
