package ask

import (
	"errors"
	"fmt"

	"github.com/askmesh/askmesh/internal/sqlguard"
)

var (
	ErrQuestionRequired     = errors.New("question is required")
	ErrGeneratorUnavailable = errors.New("no SQL model is configured")
	ErrEngineUnavailable    = errors.New("no query engine is configured")

	ErrGeneration = errors.New("sql generation failed")
	ErrExecution  = errors.New("statement execution failed")
)

// RejectedError reports a statement the guard refused. It unwraps to the
// guard error so callers can match the sqlguard sentinels and types.
type RejectedError struct {
	Verdict sqlguard.Verdict
	Tables  []string
	Err     error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("statement rejected: %v", e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}
