// Package sqlguard decides whether text returned by a model may run against
// a live database. The checks are regular-expression heuristics, not a SQL
// parser: they reject known write statements and tables outside the
// candidate set, and the executors add a read-only transaction behind them.
package sqlguard

import (
	"strings"
)

const DefaultLimit = 5000

// Verdict records every stage of an authorized statement. Final is the only
// text that may be executed.
type Verdict struct {
	Raw       string
	Extracted string
	Resolved  string
	Final     string
}

type Guard struct {
	DefaultLimit int
	// ScanSubqueries also checks FROM/JOIN inside parenthesized groups that
	// start with SELECT or WITH.
	ScanSubqueries bool
	// Strict masks string literals and comments before scanning and follows
	// comma separated FROM lists.
	Strict bool
	// Coercer, when set, quotes integer literals compared to text columns in
	// the authorized statement.
	Coercer *Coercer
}

// Authorize runs model output through extraction, handle resolution, the
// read-only and whitelist checks, limit normalization and literal
// coercion, stopping at the first rejection.
func (g Guard) Authorize(raw string, tables []string) (Verdict, error) {
	verdict := Verdict{Raw: raw}
	verdict.Extracted = ExtractStatement(raw)
	if verdict.Extracted == "" {
		return verdict, &ExtractionEmptyError{Raw: raw}
	}
	return g.authorize(verdict, tables)
}

// Check runs the guard on a statement supplied as-is, without extraction, so
// trailing statements after the first terminator are still inspected.
func (g Guard) Check(sql string, tables []string) (Verdict, error) {
	verdict := Verdict{Raw: sql, Extracted: strings.TrimSpace(sql)}
	if verdict.Extracted == "" {
		return verdict, &ExtractionEmptyError{Raw: sql}
	}
	return g.authorize(verdict, tables)
}

func (g Guard) authorize(verdict Verdict, tables []string) (Verdict, error) {
	verdict.Resolved = ResolveHandles(verdict.Extracted, tables)

	scanned := verdict.Resolved
	if g.Strict {
		scanned = MaskLiterals(scanned)
	}
	if !IsReadOnlyTolerant(scanned) {
		return verdict, &NotReadOnlyError{SQL: verdict.Resolved}
	}

	offending := unauthorizedTables(verdict.Resolved, tables, scanOptions{
		subqueries: g.ScanSubqueries,
		strict:     g.Strict,
	})
	if len(offending) > 0 {
		return verdict, &UnauthorizedTableError{
			SQL:       verdict.Resolved,
			Allowed:   append([]string(nil), tables...),
			Offending: offending,
		}
	}

	final := EnsureLimit(verdict.Resolved, g.limit())
	if g.Coercer != nil {
		final = g.Coercer.Coerce(final)
	}
	verdict.Final = final
	return verdict, nil
}

func (g Guard) limit() int {
	if g.DefaultLimit <= 0 {
		return DefaultLimit
	}
	return g.DefaultLimit
}
