package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// DefaultPoolCacheTTL bounds how stale a warm-start snapshot may be.
const DefaultPoolCacheTTL = 24 * time.Hour

// PoolCache stores the latest pool snapshot per chain as one JSON value.
type PoolCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPoolCache creates a PoolCache. A non-positive ttl uses DefaultPoolCacheTTL.
func NewPoolCache(c *Client, ttl time.Duration) *PoolCache {
	if ttl <= 0 {
		ttl = DefaultPoolCacheTTL
	}
	return &PoolCache{rdb: c.Underlying(), ttl: ttl}
}

func poolsKey(chainID int64) string {
	return "pools:" + strconv.FormatInt(chainID, 10)
}

// Set replaces the snapshot for snap.ChainID.
func (pc *PoolCache) Set(ctx context.Context, snap domain.PoolSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal pool snapshot: %w", err)
	}
	if err := pc.rdb.Set(ctx, poolsKey(snap.ChainID), data, pc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set pools %d: %w", snap.ChainID, err)
	}
	return nil
}

// Get returns the cached snapshot or domain.ErrNotFound.
func (pc *PoolCache) Get(ctx context.Context, chainID int64) (domain.PoolSnapshot, error) {
	data, err := pc.rdb.Get(ctx, poolsKey(chainID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PoolSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("redis: get pools %d: %w", chainID, err)
	}

	var snap domain.PoolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("redis: unmarshal pools %d: %w", chainID, err)
	}
	return snap, nil
}

var _ domain.PoolCache = (*PoolCache)(nil)
