package contextpack

import (
	"reflect"
	"strings"
	"testing"

	"github.com/askmesh/askmesh/internal/relevance"
	"github.com/askmesh/askmesh/internal/schema"
)

func testCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	catalog, err := schema.NewCatalog([]schema.Table{
		{
			Name: "ORDO_PROJECT",
			Columns: []schema.Column{
				{Name: "PROJECT_ID", Type: "NUMBER"},
				{Name: "NAME", Type: "VARCHAR2(240)"},
				{Name: "BU_ID", Type: "NUMBER"},
				{Name: "NOTES"},
			},
			ForeignKeys: []schema.ForeignKey{
				{FromColumn: "BU_ID", ToTable: "ORDO_BU", ToColumn: "ID"},
				{FromColumn: "PROJECT_ID", ToTable: "ARCHIVE", ToColumn: "PROJECT_ID"},
			},
		},
		{
			Name:    "ORDO_BU",
			Columns: []schema.Column{{Name: "ID", Type: "NUMBER"}, {Name: "LABEL", Type: "VARCHAR"}},
		},
		{
			Name:    "ORDO_TASK",
			Columns: []schema.Column{{Name: "TASK_ID", Type: "NUMBER"}, {Name: "PROJECT_ID", Type: "NUMBER"}},
			ForeignKeys: []schema.ForeignKey{
				{FromColumn: "PROJECT_ID", ToTable: "ORDO_PROJECT", ToColumn: "PROJECT_ID"},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	return catalog
}

func TestBuildRendersHandlesAndRelations(t *testing.T) {
	pack := Build(testCatalog(t), relevance.Selection{
		Tables: []string{"ORDO_PROJECT", "ORDO_BU", "ORDO_TASK"},
		Columns: map[string][]string{
			"ORDO_PROJECT": {"PROJECT_ID", "NAME", "NOTES"},
			"ORDO_BU":      {"ID"},
			"ORDO_TASK":    {"TASK_ID", "PROJECT_ID"},
		},
	})

	want := strings.Join([]string{
		"T1=ORDO_PROJECT(PROJECT_ID NUMBER, NAME VARCHAR2(240), NOTES)",
		"T2=ORDO_BU(ID NUMBER)",
		"T3=ORDO_TASK(TASK_ID NUMBER, PROJECT_ID NUMBER)",
		"Relations: T1.BU_ID -> T2.ID; T3.PROJECT_ID -> T1.PROJECT_ID",
	}, "\n")
	if pack.Text != want {
		t.Fatalf("Text =\n%s\nwant\n%s", pack.Text, want)
	}
	if !reflect.DeepEqual(pack.Tables, []string{"ORDO_PROJECT", "ORDO_BU", "ORDO_TASK"}) {
		t.Fatalf("Tables = %v", pack.Tables)
	}
	if !reflect.DeepEqual(pack.Columns["ORDO_BU"], []string{"ID"}) {
		t.Fatalf("Columns = %v", pack.Columns)
	}
}

func TestBuildOmitsRelationsOutsideSelection(t *testing.T) {
	pack := Build(testCatalog(t), relevance.Selection{
		Tables:  []string{"ORDO_PROJECT"},
		Columns: map[string][]string{"ORDO_PROJECT": {"PROJECT_ID"}},
	})
	if pack.Text != "T1=ORDO_PROJECT(PROJECT_ID NUMBER)" {
		t.Fatalf("Text = %q", pack.Text)
	}
}

func TestBuildDoesNotAliasSelection(t *testing.T) {
	selection := relevance.Selection{
		Tables:  []string{"ORDO_BU"},
		Columns: map[string][]string{"ORDO_BU": {"ID", "LABEL"}},
	}
	pack := Build(testCatalog(t), selection)
	selection.Tables[0] = "CHANGED"
	selection.Columns["ORDO_BU"][0] = "CHANGED"
	if pack.Tables[0] != "ORDO_BU" || pack.Columns["ORDO_BU"][0] != "ID" {
		t.Fatalf("pack changed through selection: %+v", pack)
	}
}

func TestBuildFromRanker(t *testing.T) {
	catalog := testCatalog(t)
	selection := relevance.Ranker{}.Select(catalog, "tâches de ordo_task")
	pack := Build(catalog, selection)
	if !strings.HasPrefix(pack.Text, "T1=ORDO_TASK(") {
		t.Fatalf("Text = %q", pack.Text)
	}
	if strings.Contains(pack.Text, "Relations:") {
		t.Fatalf("unexpected relations in %q", pack.Text)
	}
}

func TestHandle(t *testing.T) {
	if Handle(1) != "T1" || Handle(12) != "T12" {
		t.Fatalf("Handle() = %q %q", Handle(1), Handle(12))
	}
}
