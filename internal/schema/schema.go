package schema

import "strings"

type Column struct {
	Name        string
	Type        string
	Kind        Kind
	Nullable    *bool
	Description string
}

type ForeignKey struct {
	FromColumn string
	ToTable    string
	ToColumn   string
}

type Table struct {
	Name        string
	Description string
	Aliases     []string
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey

	columnIndex map[string]int
}

func (t *Table) Column(name string) (Column, bool) {
	idx, ok := t.columnIndex[name]
	if !ok {
		return Column{}, false
	}
	return t.Columns[idx], true
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.columnIndex[name]
	return ok
}

func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		names = append(names, column.Name)
	}
	return names
}

// Catalog is read-only once built. Tables keep source order, which is the
// iteration order every consumer relies on.
type Catalog struct {
	tables []*Table
	byName map[string]*Table
}

func NewCatalog(tables []Table) (*Catalog, error) {
	c := &Catalog{
		tables: make([]*Table, 0, len(tables)),
		byName: make(map[string]*Table, len(tables)),
	}
	for i := range tables {
		table := tables[i]
		if strings.TrimSpace(table.Name) == "" {
			return nil, loadErrorf("table %d: name is required", i)
		}
		if _, exists := c.byName[table.Name]; exists {
			return nil, loadErrorf("table %q: duplicate name", table.Name)
		}
		table.Columns = append([]Column(nil), table.Columns...)
		table.columnIndex = make(map[string]int, len(table.Columns))
		for j := range table.Columns {
			column := &table.Columns[j]
			if strings.TrimSpace(column.Name) == "" {
				return nil, loadErrorf("table %q column %d: name is required", table.Name, j)
			}
			if _, exists := table.columnIndex[column.Name]; exists {
				return nil, loadErrorf("table %q column %q: duplicate name", table.Name, column.Name)
			}
			column.Kind = KindOf(column.Type)
			table.columnIndex[column.Name] = j
		}
		for _, pk := range table.PrimaryKey {
			if _, ok := table.columnIndex[pk]; !ok {
				return nil, loadErrorf("table %q: primary key column %q does not exist", table.Name, pk)
			}
		}
		for _, fk := range table.ForeignKeys {
			if _, ok := table.columnIndex[fk.FromColumn]; !ok {
				return nil, loadErrorf("table %q: foreign key column %q does not exist", table.Name, fk.FromColumn)
			}
		}
		stored := table
		c.tables = append(c.tables, &stored)
		c.byName[stored.Name] = &stored
	}
	return c, nil
}

func (c *Catalog) Len() int {
	return len(c.tables)
}

func (c *Catalog) Table(name string) (*Table, bool) {
	if c == nil {
		return nil, false
	}
	table, ok := c.byName[name]
	return table, ok
}

// Tables returns the tables in catalog order. Callers must not modify them.
func (c *Catalog) Tables() []*Table {
	out := make([]*Table, len(c.tables))
	copy(out, c.tables)
	return out
}

func (c *Catalog) TableNames() []string {
	names := make([]string, 0, len(c.tables))
	for _, table := range c.tables {
		names = append(names, table.Name)
	}
	return names
}

// ColumnsOfKind lists distinct column names, across all tables, whose kind is
// one of kinds. Order follows the catalog.
func (c *Catalog) ColumnsOfKind(kinds ...Kind) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, table := range c.tables {
		for _, column := range table.Columns {
			if !containsKind(kinds, column.Kind) {
				continue
			}
			key := strings.ToUpper(column.Name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, column.Name)
		}
	}
	return names
}

func containsKind(kinds []Kind, kind Kind) bool {
	for _, candidate := range kinds {
		if candidate == kind {
			return true
		}
	}
	return false
}
