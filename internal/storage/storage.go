package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectReader is the read side used by the schema source and the DuckDB
// engine.
type ObjectReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

type ObjectStore interface {
	ObjectReader
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
}

// CopyTo streams an object into w and reports the number of bytes written.
// Objects larger than maxBytes are rejected when maxBytes > 0.
func CopyTo(ctx context.Context, store ObjectReader, key string, w io.Writer, maxBytes int64) (int64, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = reader.Close() }()

	src := io.Reader(reader)
	if maxBytes > 0 {
		src = io.LimitReader(reader, maxBytes+1)
	}
	written, err := io.Copy(w, src)
	if err != nil {
		return written, fmt.Errorf("copy object %q: %w", key, err)
	}
	if maxBytes > 0 && written > maxBytes {
		return written, fmt.Errorf("object %q exceeds %d bytes", key, maxBytes)
	}
	return written, nil
}
