// Package contextpack renders a ranked selection into the compact,
// handle-based schema text given to the model. Only schema metadata is
// emitted, never row data.
package contextpack

import (
	"fmt"
	"strings"

	"github.com/askmesh/askmesh/internal/relevance"
	"github.com/askmesh/askmesh/internal/schema"
)

type Pack struct {
	Text    string
	Tables  []string
	Columns map[string][]string
}

// Handle returns the placeholder for the 1-based table position.
func Handle(position int) string {
	return fmt.Sprintf("T%d", position)
}

// Build renders one line per selected table and, when foreign keys link
// selected tables, a single trailing Relations line. Tables missing from the
// catalog are kept in the handle numbering but rendered without columns.
func Build(catalog *schema.Catalog, selection relevance.Selection) Pack {
	pack := Pack{
		Tables:  append([]string(nil), selection.Tables...),
		Columns: make(map[string][]string, len(selection.Tables)),
	}
	positions := make(map[string]int, len(pack.Tables))
	for i, name := range pack.Tables {
		if _, dup := positions[name]; !dup {
			positions[name] = i + 1
		}
	}

	var b strings.Builder
	for i, name := range pack.Tables {
		columns := append([]string(nil), selection.Columns[name]...)
		pack.Columns[name] = columns

		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(Handle(i + 1))
		b.WriteByte('=')
		b.WriteString(name)
		b.WriteByte('(')
		table, _ := catalog.Table(name)
		for j, columnName := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(describeColumn(table, columnName))
		}
		b.WriteByte(')')
	}

	if relations := relationsOf(catalog, pack.Tables, positions); len(relations) > 0 {
		b.WriteString("\nRelations: ")
		b.WriteString(strings.Join(relations, "; "))
	}
	pack.Text = b.String()
	return pack
}

func describeColumn(table *schema.Table, name string) string {
	if table == nil {
		return name
	}
	column, ok := table.Column(name)
	if !ok || strings.TrimSpace(column.Type) == "" {
		return name
	}
	return strings.TrimRight(name+" "+column.Type, " ")
}

func relationsOf(catalog *schema.Catalog, tables []string, positions map[string]int) []string {
	var relations []string
	for i, name := range tables {
		table, ok := catalog.Table(name)
		if !ok {
			continue
		}
		for _, fk := range table.ForeignKeys {
			target, ok := positions[fk.ToTable]
			if !ok {
				continue
			}
			relations = append(relations, fmt.Sprintf("%s.%s -> %s.%s", Handle(i+1), fk.FromColumn, Handle(target), fk.ToColumn))
		}
	}
	return relations
}
