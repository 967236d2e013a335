package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// SnapshotArchiver copies refreshed pool snapshots to cold storage.
type SnapshotArchiver interface {
	Archive(ctx context.Context, snap PoolSnapshot) (path string, err error)
}
