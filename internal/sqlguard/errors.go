package sqlguard

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExtractionEmpty   = errors.New("sqlguard: no SELECT statement in model output")
	ErrNotReadOnly       = errors.New("sqlguard: not a single read-only statement")
	ErrUnauthorizedTable = errors.New("sqlguard: statement references tables outside the candidate set")
)

// Rejection reasons, stable for metrics, audit rows and API error codes.
const (
	ReasonExtractionEmpty   = "extraction_empty"
	ReasonNotReadOnly       = "not_read_only"
	ReasonUnauthorizedTable = "unauthorized_table"
)

type ExtractionEmptyError struct {
	Raw string
}

func (e *ExtractionEmptyError) Error() string {
	return ErrExtractionEmpty.Error()
}

func (e *ExtractionEmptyError) Is(target error) bool {
	return target == ErrExtractionEmpty
}

type NotReadOnlyError struct {
	SQL string
}

func (e *NotReadOnlyError) Error() string {
	return ErrNotReadOnly.Error()
}

func (e *NotReadOnlyError) Is(target error) bool {
	return target == ErrNotReadOnly
}

type UnauthorizedTableError struct {
	SQL       string
	Allowed   []string
	Offending []string
}

func (e *UnauthorizedTableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnauthorizedTable.Error(), strings.Join(e.Offending, ", "))
}

func (e *UnauthorizedTableError) Is(target error) bool {
	return target == ErrUnauthorizedTable
}

// Reason maps a guard rejection to its reason code. ok is false for errors
// that are not guard rejections.
func Reason(err error) (reason string, ok bool) {
	switch {
	case errors.Is(err, ErrExtractionEmpty):
		return ReasonExtractionEmpty, true
	case errors.Is(err, ErrNotReadOnly):
		return ReasonNotReadOnly, true
	case errors.Is(err, ErrUnauthorizedTable):
		return ReasonUnauthorizedTable, true
	default:
		return "", false
	}
}
