package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/askmesh/askmesh/internal/query"
	"github.com/askmesh/askmesh/internal/storage"
)

type Config struct {
	// Tables maps a table name to the parquet object keys holding its rows.
	Tables           map[string][]string
	StatementTimeout time.Duration
	// MaxObjectBytes rejects larger parquet objects when > 0.
	MaxObjectBytes int64
}

// Engine answers statements with an in-memory DuckDB whose views read parquet
// objects fetched from the object store. Only tables named in the statement
// are downloaded.
type Engine struct {
	Store  storage.ObjectReader
	Config Config
}

func NewEngine(store storage.ObjectReader, cfg Config) *Engine {
	return &Engine{Store: store, Config: cfg}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.Store == nil {
		return query.Result{}, fmt.Errorf("object store is required")
	}
	if e.Config.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Config.StatementTimeout)
		defer cancel()
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "askmesh-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	groupedPaths := map[string][]string{}
	for _, tableName := range referencedTables(sqlText, e.Config.Tables) {
		for index, key := range e.Config.Tables[tableName] {
			localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(tableName), index))
			if _, err := downloadObject(ctx, e.Store, key, localPath, e.Config.MaxObjectBytes); err != nil {
				return query.Result{}, fmt.Errorf("fetch object %q for table %q: %w", key, tableName, err)
			}
			groupedPaths[tableName] = append(groupedPaths[tableName], localPath)
		}
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for tableName, localPaths := range groupedPaths {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(tableName), quoteStringArray(localPaths))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return query.Result{}, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}

	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit+1)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, truncated, err := query.ScanRows(rows, request.RowLimit)
	if err != nil {
		return query.Result{}, err
	}

	return query.Result{
		Columns:   columns,
		Rows:      resultRows,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

// referencedTables returns the mapped tables whose name appears as a word in
// sqlText, ignoring case.
func referencedTables(sqlText string, tables map[string][]string) []string {
	out := make([]string, 0, len(tables))
	for name := range tables {
		pattern := regexp.MustCompile(`(?i)(^|[^A-Za-z0-9_])` + regexp.QuoteMeta(name) + `($|[^A-Za-z0-9_])`)
		if pattern.MatchString(sqlText) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
