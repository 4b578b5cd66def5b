package sqlguard

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	fenceReplacer      = strings.NewReplacer("```sql", "", "```SQL", "", "```", "")
	terminatedSelect   = regexp.MustCompile(`(?is)SELECT.*?;`)
	unterminatedSelect = regexp.MustCompile(`(?is)SELECT.*`)
	handlePattern      = regexp.MustCompile(`\bT([1-9][0-9]*)\b`)
)

// ExtractStatement pulls the first SELECT statement out of model output.
// Fence markers are dropped, the first "SELECT ... ;" span wins, otherwise
// everything from the first SELECT is kept. No SELECT yields "".
func ExtractStatement(raw string) string {
	text := fenceReplacer.Replace(strings.TrimSpace(raw))
	if match := terminatedSelect.FindString(text); match != "" {
		return strings.TrimSpace(match)
	}
	return strings.TrimSpace(unterminatedSelect.FindString(text))
}

// ResolveHandles replaces the placeholders T1..Tn with the table at that
// position. The substitution is a single pass, so a table literally named
// like another handle is never rewritten twice.
func ResolveHandles(sql string, tables []string) string {
	if len(tables) == 0 {
		return sql
	}
	return handlePattern.ReplaceAllStringFunc(sql, func(handle string) string {
		position, err := strconv.Atoi(handle[1:])
		if err != nil || position < 1 || position > len(tables) {
			return handle
		}
		return tables[position-1]
	})
}
