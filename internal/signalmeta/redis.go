package signalmeta

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"updown-trader/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps metadata in Redis so it survives restarts. GETDEL gives the
// single-consumer read; the tombstone key records that the read happened.
type RedisStore struct {
	client RedisClient
	ttl    time.Duration
	prefix string
}

func NewRedisStore(client RedisClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl, prefix: "signalmeta:"}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }
func (s *RedisStore) tombstone(id string) string { return s.prefix + "done:" + id }

func (s *RedisStore) Put(ctx context.Context, meta domain.SignalMetadata) error {
	n, err := s.client.Exists(ctx, s.tombstone(meta.TradeID)).Result()
	if err != nil {
		return fmt.Errorf("check tombstone: %w", err)
	}
	if n > 0 {
		return ErrAlreadyConsumed
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal signal metadata: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(meta.TradeID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("store signal metadata: %w", err)
	}
	if !ok {
		return ErrAlreadyStored
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, tradeID string) (domain.SignalMetadata, error) {
	data, err := s.client.GetDel(ctx, s.key(tradeID)).Bytes()
	if err == redis.Nil {
		n, existsErr := s.client.Exists(ctx, s.tombstone(tradeID)).Result()
		if existsErr != nil {
			return domain.SignalMetadata{}, fmt.Errorf("check tombstone: %w", existsErr)
		}
		if n > 0 {
			return domain.SignalMetadata{}, ErrAlreadyConsumed
		}
		return domain.SignalMetadata{}, ErrNotFound
	}
	if err != nil {
		return domain.SignalMetadata{}, fmt.Errorf("take signal metadata: %w", err)
	}

	var meta domain.SignalMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return domain.SignalMetadata{}, fmt.Errorf("decode signal metadata: %w", err)
	}
	// The key is already gone; a missing tombstone only weakens the replay check.
	if err := s.client.Set(ctx, s.tombstone(tradeID), "1", s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("trade_id", tradeID).Msg("failed to write signal metadata tombstone")
	}
	return meta, nil
}

// Sweep is a no-op: Redis expires keys and tombstones on its own.
func (s *RedisStore) Sweep(context.Context) (int, error) {
	return 0, nil
}
