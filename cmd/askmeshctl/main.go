package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/askmesh/askmesh/internal/cli/askmeshctl"
	"github.com/askmesh/askmesh/internal/config"
	"github.com/askmesh/askmesh/internal/storage"
	s3store "github.com/askmesh/askmesh/internal/storage/s3"
)

func main() {
	if _, err := config.LoadEnvFile(envOr("ASKMESH_ENV_FILE", ".env")); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		os.Exit(1)
	}

	options := askmeshctl.Options{
		BaseURL: envOr("ASKMESH_API_URL", "http://localhost:8080"),
		APIKey:  strings.TrimSpace(os.Getenv("ASKMESH_API_KEY")),
		Timeout: parseDurationWithDefault(strings.TrimSpace(os.Getenv("ASKMESH_CLI_TIMEOUT")), 60*time.Second),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	// Offline and push commands share the server configuration when it loads.
	if cfg, err := config.LoadFromEnv("askmeshctl"); err == nil {
		options.SchemaKey = cfg.Schema.ObjectKey
		options.TopTables = cfg.Ranker.TopTables
		options.MaxColumns = cfg.Ranker.MaxColumns
		options.GuardLimit = cfg.Guard.DefaultLimit
		options.OpenStore = func(ctx context.Context) (storage.ObjectStore, error) {
			store, err := s3store.New(ctx, s3store.Config{
				Endpoint:         cfg.ObjectStore.Endpoint,
				Region:           cfg.ObjectStore.Region,
				Bucket:           cfg.ObjectStore.Bucket,
				AccessKeyID:      cfg.ObjectStore.AccessKeyID,
				SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
				UseSSL:           cfg.ObjectStore.UseSSL,
				Prefix:           cfg.ObjectStore.Prefix,
				AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
			})
			if err != nil {
				return nil, err
			}
			return store, nil
		}
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "config not loaded, push commands disabled: %v\n", err)
	}

	code := askmeshctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid ASKMESH_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
