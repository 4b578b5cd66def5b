package query

import (
	"context"
	"time"

	"github.com/askmesh/askmesh/internal/observability"
)

type Request struct {
	SQL string
	// RowLimit caps the rows read back. Zero reads everything the statement
	// returns.
	RowLimit int
}

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

// Engine executes statements that already passed the guard.
type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

type instrumentedEngine struct {
	name string
	next Engine
}

// Instrument records execution latency and row counts for next under the
// given engine label.
func Instrument(name string, next Engine) Engine {
	return &instrumentedEngine{name: name, next: next}
}

func (e *instrumentedEngine) Execute(ctx context.Context, request Request) (Result, error) {
	started := time.Now()
	result, err := e.next.Execute(ctx, request)
	observability.ObserveQueryExecution(e.name, err == nil, len(result.Rows), time.Since(started))
	return result, err
}
