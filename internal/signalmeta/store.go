package signalmeta

import (
	"context"
	"errors"

	"updown-trader/internal/domain"
)

var (
	ErrNotFound        = errors.New("signal metadata not found")
	ErrAlreadyConsumed = errors.New("signal metadata already consumed")
	ErrAlreadyStored   = errors.New("signal metadata already stored")
)

// Store holds entry-time signal snapshots until settlement. Each trade id can be
// written once and taken once; a taken id leaves a tombstone so late or
// repeated takes report ErrAlreadyConsumed instead of ErrNotFound.
type Store interface {
	Put(ctx context.Context, meta domain.SignalMetadata) error
	Take(ctx context.Context, tradeID string) (domain.SignalMetadata, error)
	Sweep(ctx context.Context) (int, error)
}
