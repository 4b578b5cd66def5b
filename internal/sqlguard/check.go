package sqlguard

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	bannedKeywords   = regexp.MustCompile(`(?i)\b(UPDATE|DELETE|INSERT|DROP|ALTER|TRUNCATE|CREATE|GRANT|REVOKE)\b`)
	innermostGroup   = regexp.MustCompile(`\([^()]*\)`)
	sourceIdentifier = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z0-9_."]+)`)
	sourceList       = regexp.MustCompile(`(?i)\bFROM\s+([a-zA-Z0-9_."]+(?:\s+(?:AS\s+)?[a-zA-Z0-9_"]+)?(?:\s*,\s*[a-zA-Z0-9_."]+(?:\s+(?:AS\s+)?[a-zA-Z0-9_"]+)?)*)`)
	limitClause      = regexp.MustCompile(`(?i)\blimit\s+\d+`)
	subqueryStart    = regexp.MustCompile(`(?i)^(SELECT|WITH)\b`)
	compoundOperand  = regexp.MustCompile(`(?i)(?:^|\b(?:UNION|INTERSECT|EXCEPT|MINUS)(?:\s+(?:ALL|DISTINCT))?)\s*$`)
)

// IsReadOnly reports whether sql starts with SELECT, after leading
// whitespace and opening parentheses, and carries no write or DDL keyword
// anywhere in its text.
func IsReadOnly(sql string) bool {
	return startsWithSelect(sql) && !bannedKeywords.MatchString(sql)
}

// IsReadOnlyTolerant is IsReadOnly with the keyword scan applied only
// outside parenthesized groups, so EXTRACT(...) and nested subqueries do not
// trip on identifiers that merely contain a banned word. Groups that make up
// the statement itself, like "(SELECT ...)" or the operands of a UNION, are
// still scanned.
func IsReadOnlyTolerant(sql string) bool {
	if !startsWithSelect(sql) {
		return false
	}
	for _, scope := range statementScopes(sql) {
		if bannedKeywords.MatchString(StripParentheses(scope)) {
			return false
		}
	}
	return true
}

func startsWithSelect(sql string) bool {
	trimmed := strings.TrimLeft(strings.TrimLeftFunc(sql, unicode.IsSpace), "(")
	if len(trimmed) < 6 {
		return false
	}
	return strings.EqualFold(trimmed[:6], "SELECT")
}

// StripParentheses removes balanced parenthesized groups, innermost first,
// until none remain. Unbalanced parentheses are left in place.
func StripParentheses(sql string) string {
	for {
		next := innermostGroup.ReplaceAllString(sql, " ")
		if next == sql {
			return sql
		}
		sql = next
	}
}

// IsWhitelisted reports whether every table named after FROM or JOIN,
// outside parentheses, is one of allowed.
func IsWhitelisted(sql string, allowed []string) bool {
	return len(UnauthorizedTables(sql, allowed)) == 0
}

// UnauthorizedTables lists, in order of appearance and without repeats, the
// referenced tables that are not in allowed.
func UnauthorizedTables(sql string, allowed []string) []string {
	return unauthorizedTables(sql, allowed, scanOptions{})
}

type scanOptions struct {
	subqueries bool
	strict     bool
}

func unauthorizedTables(sql string, allowed []string, opts scanOptions) []string {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = struct{}{}
	}
	var offending []string
	seen := map[string]struct{}{}
	for _, name := range referencedTables(sql, opts) {
		if _, ok := allowedSet[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		offending = append(offending, name)
	}
	return offending
}

func referencedTables(sql string, opts scanOptions) []string {
	if opts.strict {
		sql = MaskLiterals(sql)
	}
	var names []string
	for _, scope := range statementScopes(sql) {
		names = append(names, topLevelTables(StripParentheses(scope), opts.strict)...)
	}
	if opts.subqueries {
		for _, body := range subqueryBodies(sql) {
			names = append(names, topLevelTables(StripParentheses(body), opts.strict)...)
		}
	}
	return names
}

func topLevelTables(sql string, strict bool) []string {
	var names []string
	for _, match := range sourceIdentifier.FindAllStringSubmatch(sql, -1) {
		names = append(names, normalizeTable(match[1]))
	}
	if !strict {
		return names
	}
	for _, match := range sourceList.FindAllStringSubmatch(sql, -1) {
		for _, item := range strings.Split(match[1], ",") {
			fields := strings.Fields(item)
			if len(fields) > 0 {
				names = append(names, normalizeTable(fields[0]))
			}
		}
	}
	return names
}

func normalizeTable(identifier string) string {
	identifier = strings.ReplaceAll(identifier, `"`, "")
	if dot := strings.LastIndex(identifier, "."); dot >= 0 {
		identifier = identifier[dot+1:]
	}
	return identifier
}

// subqueryBodies returns the content of every parenthesized group, at any
// depth, whose text starts with SELECT or WITH.
func subqueryBodies(sql string) []string {
	var bodies []string
	var walk func(text string)
	walk = func(text string) {
		for _, group := range groupContents(text) {
			if subqueryStart.MatchString(strings.TrimLeftFunc(group, unicode.IsSpace)) {
				bodies = append(bodies, group)
			}
			walk(group)
		}
	}
	walk(sql)
	return bodies
}

// statementScopes returns sql followed by the contents of every group that
// stands as a whole operand of the statement: a group opening the text or
// following UNION, INTERSECT or EXCEPT. Nested operands are expanded too.
func statementScopes(sql string) []string {
	scopes := []string{sql}
	for _, g := range outerGroups(sql) {
		if compoundOperand.MatchString(sql[:g.open]) {
			scopes = append(scopes, statementScopes(sql[g.open+1:g.close])...)
		}
	}
	return scopes
}

type groupSpan struct {
	open, close int
}

// outerGroups returns the byte offsets of the parentheses delimiting each
// outermost balanced group.
func outerGroups(text string) []groupSpan {
	var spans []groupSpan
	depth, start := 0, -1
	for i, r := range text {
		switch r {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans = append(spans, groupSpan{open: start, close: i})
			}
		}
	}
	return spans
}

// groupContents returns the contents of the outermost balanced groups.
func groupContents(text string) []string {
	spans := outerGroups(text)
	groups := make([]string, 0, len(spans))
	for _, g := range spans {
		groups = append(groups, text[g.open+1:g.close])
	}
	return groups
}

// EnsureLimit appends " LIMIT n;" unless the statement already has a
// LIMIT clause. Applying it twice changes nothing.
func EnsureLimit(sql string, limit int) string {
	if limitClause.MatchString(sql) {
		return sql
	}
	trimmed := strings.TrimRightFunc(sql, func(r rune) bool {
		return r == ';' || unicode.IsSpace(r)
	})
	return trimmed + " LIMIT " + strconv.Itoa(limit) + ";"
}

// MaskLiterals blanks the content of single-quoted literals and replaces
// comments with a space, so keyword and identifier scans only see code.
func MaskLiterals(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'':
			b.WriteRune('\'')
			i++
			for ; i < len(runes); i++ {
				if runes[i] == '\'' {
					if i+1 < len(runes) && runes[i+1] == '\'' {
						b.WriteString("  ")
						i++
						continue
					}
					b.WriteRune('\'')
					break
				}
				b.WriteRune(' ')
			}
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			b.WriteRune(' ')
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			if i < len(runes) {
				b.WriteRune('\n')
			}
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			b.WriteRune(' ')
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				i++
			}
			i++
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
