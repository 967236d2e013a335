package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only log of action outcomes.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// PoolStore mirrors refreshed pools into a queryable table.
type PoolStore interface {
	UpsertBatch(ctx context.Context, chainID int64, pools []Pool) error
	GetByID(ctx context.Context, chainID int64, id uint64) (Pool, error)
	List(ctx context.Context, chainID int64, opts ListOpts) ([]Pool, error)
}
