package askmeshctl

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askmesh/askmesh/internal/contextpack"
	"github.com/askmesh/askmesh/internal/relevance"
	"github.com/askmesh/askmesh/internal/schema"
	"github.com/askmesh/askmesh/internal/sqlguard"
)

func loadSchemaFile(path string) (*schema.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, usageErrorf("--schema is required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema: %w", err)
	}
	defer func() { _ = file.Close() }()
	return schema.Parse(file)
}

func newPackCommand(opts Options) *cobra.Command {
	var (
		schemaPath string
		topTables  int
		maxColumns int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:     "pack <question>",
		Short:   "Rank a local schema file for a question and print the model context",
		Example: `  askmeshctl pack --schema schema/catalog.json "budget of open projects"`,
		Args:    usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadSchemaFile(schemaPath)
			if err != nil {
				return err
			}
			ranker := relevance.New(topTables, maxColumns)
			pack := contextpack.Build(catalog, ranker.Select(catalog, strings.Join(args, " ")))
			if !asJSON {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), pack.Text)
				return nil
			}
			encoded, err := json.MarshalIndent(map[string]any{
				"context": pack.Text,
				"tables":  pack.Tables,
				"columns": pack.Columns,
			}, "", "  ")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "path to the schema JSON document")
	cmd.Flags().IntVar(&topTables, "top-tables", intOr(opts.TopTables, relevance.DefaultTopTables), "number of candidate tables")
	cmd.Flags().IntVar(&maxColumns, "max-columns", intOr(opts.MaxColumns, relevance.DefaultMaxColumns), "columns kept per table")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tables and columns as JSON")
	return cmd
}

func newGuardCommand(opts Options) *cobra.Command {
	var (
		schemaPath     string
		tables         []string
		limit          int
		strict         bool
		scanSubqueries bool
	)
	cmd := &cobra.Command{
		Use:   "guard <sql>",
		Short: "Check a statement locally against an allowed table set",
		Long: `Runs the read-only and table whitelist checks on a statement and prints the
statement that would be executed. With --schema, integer literals compared to
text columns are quoted.`,
		Example: `  askmeshctl guard --tables ORDO_PROJECT "SELECT * FROM T1 WHERE STATUS = 'OPEN'"`,
		Args:    usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(tables) == 0 {
				return usageErrorf("--tables is required")
			}
			guard := sqlguard.Guard{
				DefaultLimit:   limit,
				Strict:         strict,
				ScanSubqueries: scanSubqueries,
			}
			if schemaPath != "" {
				catalog, err := loadSchemaFile(schemaPath)
				if err != nil {
					return err
				}
				guard.Coercer = sqlguard.NewCoercer(catalog)
			}

			verdict, err := guard.Check(strings.Join(args, " "), tables)
			if err != nil {
				reason, _ := sqlguard.Reason(err)
				return fmt.Errorf("rejected (%s): %w", reason, err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), verdict.Final)
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema JSON document used for literal coercion")
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "allowed table names, comma separated")
	cmd.Flags().IntVar(&limit, "limit", intOr(opts.GuardLimit, sqlguard.DefaultLimit), "LIMIT appended when the statement has none")
	cmd.Flags().BoolVar(&strict, "strict", false, "mask literals and comments and follow comma joins")
	cmd.Flags().BoolVar(&scanSubqueries, "scan-subqueries", false, "also check tables inside subqueries")
	return cmd
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
