package domain

import (
	"context"
	"time"
)

// PoolCache keeps the last pool snapshot per chain for warm starts.
type PoolCache interface {
	Set(ctx context.Context, snap PoolSnapshot) error
	Get(ctx context.Context, chainID int64) (PoolSnapshot, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of state and toast events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Channels published on the SignalBus.
const (
	ChannelToast = "ch:toast"
	ChannelState = "ch:state"
)
