package schema

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/askmesh/askmesh/internal/observability"
	"github.com/askmesh/askmesh/internal/storage"
)

// Source is where a schema description lives. Version must change whenever
// the content may have changed; the Cache rebuilds only on a new version.
type Source interface {
	Version(ctx context.Context) (string, error)
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

type FileSource struct {
	Path string
}

func (s FileSource) Version(_ context.Context) (string, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(info.ModTime().UnixNano(), 10) + "-" + strconv.FormatInt(info.Size(), 10), nil
}

func (s FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	return os.Open(s.Path)
}

func (s FileSource) String() string {
	return "file:" + s.Path
}

type ObjectSource struct {
	Store storage.ObjectReader
	Key   string
}

func (s ObjectSource) Version(ctx context.Context) (string, error) {
	info, err := s.Store.Stat(ctx, s.Key)
	if err != nil {
		return "", err
	}
	return info.ETag + "@" + strconv.FormatInt(info.LastModified.UnixNano(), 10), nil
}

func (s ObjectSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return s.Store.Get(ctx, s.Key)
}

func (s ObjectSource) String() string {
	return "object:" + s.Key
}

// Cache memoizes the Catalog built from a Source. Concurrent callers that
// observe the same new version share a single build.
type Cache struct {
	source Source
	logger *slog.Logger
	group  singleflight.Group

	mu            sync.RWMutex
	catalog       *Catalog
	version       string
	failedVersion string
}

func NewCache(source Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{source: source, logger: logger}
}

func (c *Cache) Catalog(ctx context.Context) (*Catalog, error) {
	if c.source == nil {
		return nil, loadErrorf("schema source is not configured")
	}
	version, err := c.source.Version(ctx)
	if err != nil {
		if cached := c.current(); cached != nil {
			c.logger.WarnContext(ctx, "schema source unavailable, serving cached catalog",
				slog.String("source", c.source.String()),
				slog.Any("error", err),
			)
			return cached, nil
		}
		return nil, &LoadError{Reason: "stat " + c.source.String(), Err: err}
	}

	c.mu.RLock()
	catalog, current, failed := c.catalog, c.version, c.failedVersion
	c.mu.RUnlock()
	if catalog != nil && (current == version || failed == version) {
		return catalog, nil
	}

	// A build outlives the caller that started it. Each waiting caller
	// stops on its own ctx.
	loadCtx := context.WithoutCancel(ctx)
	results := c.group.DoChan(version, func() (any, error) {
		c.mu.RLock()
		if c.catalog != nil && c.version == version {
			catalog := c.catalog
			c.mu.RUnlock()
			return catalog, nil
		}
		c.mu.RUnlock()
		return c.load(loadCtx, version)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			if cached := c.current(); cached != nil {
				c.logger.WarnContext(ctx, "schema source version rejected, serving cached catalog",
					slog.String("source", c.source.String()),
					slog.String("version", version),
					slog.Any("error", result.Err),
				)
				return cached, nil
			}
			return nil, result.Err
		}
		return result.Val.(*Catalog), nil
	}
}

// Invalidate drops the cached catalog so the next call rebuilds it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.catalog = nil
	c.version = ""
	c.failedVersion = ""
	c.mu.Unlock()
}

func (c *Cache) current() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog
}

// markFailed records a version that could not be built. It is not retried
// while a cached catalog exists.
func (c *Cache) markFailed(version string) {
	c.mu.Lock()
	c.failedVersion = version
	c.mu.Unlock()
}

func (c *Cache) load(ctx context.Context, version string) (*Catalog, error) {
	start := time.Now()
	reader, err := c.source.Open(ctx)
	if err != nil {
		c.markFailed(version)
		observability.ObserveCatalogLoad(false, 0, time.Since(start))
		return nil, &LoadError{Reason: "open " + c.source.String(), Err: err}
	}
	defer func() { _ = reader.Close() }()

	catalog, err := Parse(reader)
	if err != nil {
		c.markFailed(version)
		observability.ObserveCatalogLoad(false, 0, time.Since(start))
		return nil, fmt.Errorf("parse %s: %w", c.source.String(), err)
	}

	c.mu.Lock()
	c.catalog = catalog
	c.version = version
	c.failedVersion = ""
	c.mu.Unlock()

	observability.ObserveCatalogLoad(true, catalog.Len(), time.Since(start))
	c.logger.InfoContext(ctx, "schema catalog loaded",
		slog.String("source", c.source.String()),
		slog.String("version", version),
		slog.Int("tables", catalog.Len()),
		slog.String("duration", time.Since(start).String()),
	)
	return catalog, nil
}
