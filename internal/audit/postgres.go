package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type PostgresRecorder struct {
	db *sql.DB
}

var (
	_ Recorder = (*PostgresRecorder)(nil)
	_ Reader   = (*PostgresRecorder)(nil)
	_ Pruner   = (*PostgresRecorder)(nil)
)

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	tables := entry.Tables
	if tables == nil {
		tables = []string{}
	}
	var rowCount sql.NullInt64
	if entry.RowCount != nil {
		rowCount = sql.NullInt64{Int64: int64(*entry.RowCount), Valid: true}
	}

	query := `
INSERT INTO askmesh_audit (audit_id, principal, trace_id, operation, question, candidate_tables, raw_sql, final_sql, authorized, reason, row_count, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Principal,
		entry.TraceID,
		entry.Operation,
		entry.Question,
		tables,
		entry.RawSQL,
		entry.FinalSQL,
		entry.Authorized,
		entry.Reason,
		rowCount,
		entry.DurationMS,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
SELECT audit_id, principal, trace_id, operation, question, candidate_tables, raw_sql, final_sql, authorized, reason, row_count, duration_ms, created_at
FROM askmesh_audit
WHERE ($1 = FALSE OR authorized = FALSE)
ORDER BY created_at DESC
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, filter.RejectedOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	typeMap := pgtype.NewMap()
	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			entry    Entry
			rowCount sql.NullInt64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Principal,
			&entry.TraceID,
			&entry.Operation,
			&entry.Question,
			typeMap.SQLScanner(&entry.Tables),
			&entry.RawSQL,
			&entry.FinalSQL,
			&entry.Authorized,
			&entry.Reason,
			&rowCount,
			&entry.DurationMS,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if rowCount.Valid {
			count := int(rowCount.Int64)
			entry.RowCount = &count
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func (r *PostgresRecorder) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM askmesh_audit WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune audit entries: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune audit entries rows affected: %w", err)
	}
	return deleted, nil
}
