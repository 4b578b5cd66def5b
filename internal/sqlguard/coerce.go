package sqlguard

import (
	"regexp"
	"sort"
	"strings"

	"github.com/askmesh/askmesh/internal/schema"
)

// Coercer quotes bare integer literals compared with "=" to text or bool
// columns, e.g. FLAG = 1 becomes FLAG = '1'. It applies to every such
// column of the catalog whether or not its table is referenced.
type Coercer struct {
	pattern *regexp.Regexp
}

func NewCoercer(catalog *schema.Catalog) *Coercer {
	if catalog == nil {
		return &Coercer{}
	}
	columns := catalog.ColumnsOfKind(schema.KindText, schema.KindBool)
	if len(columns) == 0 {
		return &Coercer{}
	}
	sort.SliceStable(columns, func(i, j int) bool { return len(columns[i]) > len(columns[j]) })
	quoted := make([]string, 0, len(columns))
	for _, column := range columns {
		quoted = append(quoted, regexp.QuoteMeta(column))
	}
	pattern := regexp.MustCompile(`(?i)((?:\b\w+\.)?"?\b(?:` + strings.Join(quoted, "|") + `)\b"?\s*=\s*)(\d+)`)
	return &Coercer{pattern: pattern}
}

func (c *Coercer) Coerce(sql string) string {
	if c == nil || c.pattern == nil {
		return sql
	}
	matches := c.pattern.FindAllStringSubmatchIndex(sql, -1)
	if len(matches) == 0 {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql) + 2*len(matches))
	last := 0
	for _, m := range matches {
		digitsStart, digitsEnd := m[4], m[5]
		if !integerEndsAt(sql, digitsEnd) {
			continue
		}
		b.WriteString(sql[last:digitsStart])
		b.WriteByte('\'')
		b.WriteString(sql[digitsStart:digitsEnd])
		b.WriteByte('\'')
		last = digitsEnd
	}
	b.WriteString(sql[last:])
	return b.String()
}

// integerEndsAt rejects digit runs that continue as a float or identifier.
func integerEndsAt(sql string, end int) bool {
	if end >= len(sql) {
		return true
	}
	next := sql[end]
	if next == '.' {
		return !(end+1 < len(sql) && isDigit(sql[end+1]))
	}
	return !(next == '_' || isDigit(next) || (next|0x20 >= 'a' && next|0x20 <= 'z'))
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// CoerceLiterals is NewCoercer(catalog).Coerce(sql).
func CoerceLiterals(sql string, catalog *schema.Catalog) string {
	return NewCoercer(catalog).Coerce(sql)
}
