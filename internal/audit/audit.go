package audit

import (
	"context"
	"time"
)

const (
	OperationAsk       = "ask"
	OperationTranslate = "translate"
	OperationCheck     = "check"
)

// Entry is one guard verdict, with the execution outcome when the statement
// ran. RowCount is nil when nothing was executed.
type Entry struct {
	ID         string    `json:"id"`
	Principal  string    `json:"principal,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	Operation  string    `json:"operation"`
	Question   string    `json:"question,omitempty"`
	Tables     []string  `json:"tables"`
	RawSQL     string    `json:"raw_sql,omitempty"`
	FinalSQL   string    `json:"final_sql,omitempty"`
	Authorized bool      `json:"authorized"`
	Reason     string    `json:"reason,omitempty"`
	RowCount   *int      `json:"row_count,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type ListFilter struct {
	Limit        int
	RejectedOnly bool
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type Reader interface {
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
}

// Pruner deletes entries created before a cutoff and reports how many were
// removed.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// NopRecorder drops every entry. It is used when auditing is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) error { return nil }
