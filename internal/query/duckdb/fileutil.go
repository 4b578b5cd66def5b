package duckdb

import (
	"context"
	"os"

	"github.com/askmesh/askmesh/internal/storage"
)

func downloadObject(ctx context.Context, store storage.ObjectReader, key, path string, maxBytes int64) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()

	return storage.CopyTo(ctx, store, key, file, maxBytes)
}
