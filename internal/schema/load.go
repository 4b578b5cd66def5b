package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrSchemaLoad = errors.New("schema: load failed")

// LoadError reports a schema source that is missing or malformed. It is fatal
// for catalog construction.
type LoadError struct {
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema load: %s: %v", e.Reason, e.Err)
	}
	return "schema load: " + e.Reason
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	return target == ErrSchemaLoad
}

func loadErrorf(format string, args ...any) error {
	return &LoadError{Reason: fmt.Sprintf(format, args...)}
}

type sourceDocument struct {
	Tables []sourceTable `json:"tables"`
}

type sourceTable struct {
	Name        string         `json:"name"`
	Description *string        `json:"description_table"`
	Aliases     []string       `json:"aliases"`
	Columns     []sourceColumn `json:"columns"`
	PrimaryKey  []string       `json:"pk"`
	ForeignKeys []sourceFK     `json:"fks"`
}

type sourceColumn struct {
	Name        string  `json:"name"`
	Type        *string `json:"type"`
	Nullable    *bool   `json:"nullable"`
	Description *string `json:"description"`
}

type sourceFK struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Parse builds a Catalog from the JSON schema description. Both
// {"tables": [...]} and a bare array of tables are accepted.
func Parse(r io.Reader) (*Catalog, error) {
	if r == nil {
		return nil, loadErrorf("source is required")
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Reason: "read source", Err: err}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, loadErrorf("source is empty")
	}

	var tables []sourceTable
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &tables); err != nil {
			return nil, &LoadError{Reason: "decode table list", Err: err}
		}
	case '{':
		var doc sourceDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, &LoadError{Reason: "decode schema document", Err: err}
		}
		if doc.Tables == nil {
			return nil, loadErrorf(`"tables" array is required`)
		}
		tables = doc.Tables
	default:
		return nil, loadErrorf("unexpected JSON shape")
	}

	converted := make([]Table, 0, len(tables))
	for i, src := range tables {
		table, err := convertTable(i, src)
		if err != nil {
			return nil, err
		}
		converted = append(converted, table)
	}
	return NewCatalog(converted)
}

func convertTable(index int, src sourceTable) (Table, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		return Table{}, loadErrorf("table %d: name is required", index)
	}
	table := Table{
		Name:        name,
		Description: deref(src.Description),
		PrimaryKey:  append([]string(nil), src.PrimaryKey...),
	}
	for _, alias := range src.Aliases {
		if alias = strings.TrimSpace(alias); alias != "" {
			table.Aliases = append(table.Aliases, alias)
		}
	}
	for _, col := range src.Columns {
		table.Columns = append(table.Columns, Column{
			Name:        strings.TrimSpace(col.Name),
			Type:        strings.TrimSpace(deref(col.Type)),
			Nullable:    col.Nullable,
			Description: deref(col.Description),
		})
	}
	for _, fk := range src.ForeignKeys {
		from := strings.TrimSpace(fk.From)
		to := strings.TrimSpace(fk.To)
		dot := strings.LastIndex(to, ".")
		if from == "" || dot <= 0 || dot == len(to)-1 {
			return Table{}, loadErrorf("table %q: foreign key %q -> %q must have the form table.column", name, fk.From, fk.To)
		}
		table.ForeignKeys = append(table.ForeignKeys, ForeignKey{
			FromColumn: from,
			ToTable:    to[:dot],
			ToColumn:   to[dot+1:],
		})
	}
	return table, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
