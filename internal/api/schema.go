package api

import (
	"net/http"

	"github.com/askmesh/askmesh/internal/schema"
)

type schemaColumn struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Kind        string `json:"kind"`
	Nullable    *bool  `json:"nullable,omitempty"`
	Description string `json:"description,omitempty"`
}

type schemaForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

type schemaTable struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Aliases     []string           `json:"aliases,omitempty"`
	Columns     []schemaColumn     `json:"columns"`
	PrimaryKey  []string           `json:"pk,omitempty"`
	ForeignKeys []schemaForeignKey `json:"fks,omitempty"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "question service is not configured", false, nil)
		return
	}
	catalog, err := deps.Service.Catalog(r.Context())
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": schemaTables(catalog),
	})
}

func schemaTables(catalog *schema.Catalog) []schemaTable {
	tables := catalog.Tables()
	out := make([]schemaTable, 0, len(tables))
	for _, table := range tables {
		item := schemaTable{
			Name:        table.Name,
			Description: table.Description,
			Aliases:     table.Aliases,
			Columns:     make([]schemaColumn, 0, len(table.Columns)),
			PrimaryKey:  table.PrimaryKey,
		}
		for _, column := range table.Columns {
			item.Columns = append(item.Columns, schemaColumn{
				Name:        column.Name,
				Type:        column.Type,
				Kind:        string(column.Kind),
				Nullable:    column.Nullable,
				Description: column.Description,
			})
		}
		for _, fk := range table.ForeignKeys {
			item.ForeignKeys = append(item.ForeignKeys, schemaForeignKey{
				Column:    fk.FromColumn,
				RefTable:  fk.ToTable,
				RefColumn: fk.ToColumn,
			})
		}
		out = append(out, item)
	}
	return out
}
