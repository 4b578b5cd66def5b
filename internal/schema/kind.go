package schema

import "strings"

type Kind string

const (
	KindDate   Kind = "date"
	KindNumber Kind = "number"
	KindText   Kind = "text"
	KindBool   Kind = "bool"
	KindOther  Kind = "other"
)

var kindRules = []struct {
	kind    Kind
	markers []string
}{
	{KindDate, []string{"DATE", "TIMESTAMP", "TIME"}},
	{KindNumber, []string{"INT", "NUM", "DEC", "FLOAT", "DOUBLE", "REAL"}},
	{KindText, []string{"CHAR", "TEXT", "STRING", "CLOB"}},
	{KindBool, []string{"BOOL"}},
}

// KindOf classifies a raw SQL type by substring, first matching rule wins.
func KindOf(rawType string) Kind {
	upper := strings.ToUpper(strings.TrimSpace(rawType))
	if upper == "" {
		return KindOther
	}
	for _, rule := range kindRules {
		for _, marker := range rule.markers {
			if strings.Contains(upper, marker) {
				return rule.kind
			}
		}
	}
	return KindOther
}
