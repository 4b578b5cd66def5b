package askmeshctl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/cobra"

	"github.com/askmesh/askmesh/internal/schema"
	"github.com/askmesh/askmesh/internal/storage"
)

func newPushCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload schema documents and table files to the object store",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return usageErrorf("push requires a subcommand")
		},
	}
	cmd.AddCommand(newPushSchemaCommand(opts), newPushTableCommand(opts))
	return cmd
}

func openStore(ctx context.Context, opts Options) (storage.ObjectStore, error) {
	if opts.OpenStore == nil {
		return nil, fmt.Errorf("object store is not configured")
	}
	return opts.OpenStore(ctx)
}

func newPushSchemaCommand(opts Options) *cobra.Command {
	var key, name string
	cmd := &cobra.Command{
		Use:   "schema <file>",
		Short: "Validate a schema document and publish it",
		Long: `Parses the schema document, uploads it to the live key read by the API and
keeps a dated copy under schemas/<name>/.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(key) == "" {
				return usageErrorf("--key is required")
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read schema: %w", err)
			}
			catalog, err := schema.Parse(bytes.NewReader(content))
			if err != nil {
				return err
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			archiveKey, err := storage.BuildSchemaArchivePath(name, now(opts))
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			for _, target := range []string{archiveKey, key} {
				info, err := store.Put(cmd.Context(), target, bytes.NewReader(content), int64(len(content)), storage.PutOptions{ContentType: "application/json"})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes)\n", info.Key, info.Size)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema has %d tables\n", catalog.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", opts.SchemaKey, "live object key read by the API")
	cmd.Flags().StringVar(&name, "name", "", "archive name (defaults to the file name)")
	return cmd
}

func newPushTableCommand(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table <TABLE> <file.parquet>...",
		Short: "Upload parquet files backing a table of the DuckDB engine",
		Long: `Uploads each parquet file as tables/<TABLE>/part-NNNNN.parquet and prints the
ASKMESH_QUERY_DUCKDB_TABLES entry that maps the table to the uploaded keys.`,
		Args: usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			store, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(args)-1)
			for i, path := range args[1:] {
				key, err := storage.BuildTableFilePath(table, i)
				if err != nil {
					return err
				}
				rows, err := uploadParquet(cmd.Context(), store, key, path)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d rows)\n", key, rows)
				keys = append(keys, key)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", table, strings.Join(keys, ","))
			return nil
		},
	}
	return cmd
}

// uploadParquet checks that path is a readable parquet file before sending
// it, and returns its row count.
func uploadParquet(ctx context.Context, store storage.ObjectStore, key, path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	parquetFile, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return 0, fmt.Errorf("%s is not a parquet file: %w", path, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind %s: %w", path, err)
	}
	if _, err := store.Put(ctx, key, file, stat.Size(), storage.PutOptions{}); err != nil {
		return 0, err
	}
	return parquetFile.NumRows(), nil
}

func now(opts Options) time.Time {
	if opts.Now != nil {
		return opts.Now()
	}
	return time.Now()
}
