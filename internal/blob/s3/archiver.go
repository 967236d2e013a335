package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"

	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// Archiver writes every pool snapshot it receives as one JSON object under
// <prefix>/<chain id>/<yyyy>/<mm>/<dd>/<unix nanos>.json.
type Archiver struct {
	writer domain.BlobWriter
	prefix string
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, prefix string, audit domain.AuditStore) *Archiver {
	if prefix == "" {
		prefix = "snapshots"
	}
	return &Archiver{writer: writer, prefix: prefix, audit: audit}
}

// ObjectPath returns the key a snapshot is stored under.
func (a *Archiver) ObjectPath(snap domain.PoolSnapshot) string {
	t := snap.TakenAt.UTC()
	return path.Join(a.prefix,
		strconv.FormatInt(snap.ChainID, 10),
		t.Format("2006/01/02"),
		strconv.FormatInt(t.UnixNano(), 10)+".json",
	)
}

// Archive uploads snap and returns its object path. Payloads above
// MinPartSize go through the multipart uploader.
func (a *Archiver) Archive(ctx context.Context, snap domain.PoolSnapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal snapshot: %w", err)
	}

	key := a.ObjectPath(snap)
	if int64(len(data)) > MinPartSize {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(data), MinPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(data), "application/json")
	}
	if err != nil {
		return "", err
	}

	if a.audit != nil {
		_ = a.audit.Log(ctx, "snapshot.archived", map[string]any{
			"path":     key,
			"chain_id": snap.ChainID,
			"pools":    len(snap.Pools),
			"bytes":    len(data),
		})
	}
	return key, nil
}

var _ domain.SnapshotArchiver = (*Archiver)(nil)
