package sqlguard

import (
	"reflect"
	"testing"
)

func TestIsReadOnly(t *testing.T) {
	accepted := []string{
		"SELECT 1",
		"  select * from ORDO_PROJECT",
		"((SELECT 1))",
		"SELECT UPDATE_FLAG, CREATED_AT FROM ORDO_PROJECT",
	}
	for _, sql := range accepted {
		if !IsReadOnly(sql) {
			t.Fatalf("IsReadOnly(%q) = false", sql)
		}
	}
	rejected := []string{
		"DROP TABLE ORDO_PROJECT;",
		"SELECT 1; DELETE FROM ORDO_PROJECT",
		"WITH x AS (SELECT 1) SELECT * FROM x",
		"SEL",
		"",
		"INSERT INTO t SELECT * FROM u",
		`SELECT * FROM t WHERE c IN (SELECT "DROP" FROM u)`,
	}
	for _, sql := range rejected {
		if IsReadOnly(sql) {
			t.Fatalf("IsReadOnly(%q) = true", sql)
		}
	}
}

func TestIsReadOnlyTolerantIgnoresParenthesizedGroups(t *testing.T) {
	sql := `SELECT * FROM t WHERE c IN (SELECT "DROP" FROM u)`
	if !IsReadOnlyTolerant(sql) {
		t.Fatalf("IsReadOnlyTolerant(%q) = false", sql)
	}
	for _, sql := range []string{
		"SELECT 1; DROP TABLE x",
		"DROP TABLE ORDO_PROJECT;",
		"(SELECT 1) UNION ALL (SELECT 2); TRUNCATE t",
		"select 1; grant all on t to public",
		"(SELECT 1; DROP TABLE x)",
		"(SELECT 1) UNION (SELECT 2; TRUNCATE t)",
	} {
		if IsReadOnlyTolerant(sql) {
			t.Fatalf("IsReadOnlyTolerant(%q) = true", sql)
		}
	}
}

func TestStripParentheses(t *testing.T) {
	got := StripParentheses("SELECT COUNT(*) FROM A WHERE EXTRACT(YEAR FROM (B)) = 1 AND (C")
	if got != "SELECT COUNT  FROM A WHERE EXTRACT  = 1 AND (C" {
		t.Fatalf("StripParentheses() = %q", got)
	}
}

func TestIsWhitelistedIgnoresExtractArguments(t *testing.T) {
	sql := "SELECT COUNT(*) FROM ORDO_PROJECT " +
		"WHERE AGL_AA_S_CUR_RELEASE IS NULL AND EXTRACT(YEAR FROM BUDGET_START) = 2013;"
	if !IsWhitelisted(sql, []string{"ORDO_PROJECT"}) {
		t.Fatalf("IsWhitelisted(%q) = false", sql)
	}
}

func TestIsWhitelistedBlocksUnknownTables(t *testing.T) {
	if IsWhitelisted("SELECT * FROM UNKNOWN_TABLE", []string{"ORDO_PROJECT"}) {
		t.Fatal("IsWhitelisted() = true for unknown table")
	}
	got := UnauthorizedTables("SELECT * FROM SECRET_TABLE s JOIN OTHER o ON s.ID = o.ID JOIN SECRET_TABLE x ON 1 = 1", []string{"ORDO_PROJECT"})
	if !reflect.DeepEqual(got, []string{"SECRET_TABLE", "OTHER"}) {
		t.Fatalf("UnauthorizedTables() = %v", got)
	}
}

func TestIsWhitelistedNormalizesQualifiedNames(t *testing.T) {
	sql := `SELECT * FROM "erp"."ORDO_PROJECT" p JOIN erp.ORDO_TASK t ON p.ID = t.PID`
	if !IsWhitelisted(sql, []string{"ORDO_PROJECT", "ORDO_TASK"}) {
		t.Fatalf("IsWhitelisted(%q) = false", sql)
	}
	if IsWhitelisted("select * from ordo_project", []string{"ORDO_PROJECT"}) {
		t.Fatal("table membership must be exact")
	}
}

func TestIsWhitelistedScansWrappedStatements(t *testing.T) {
	got := UnauthorizedTables("((SELECT * FROM A)) UNION (SELECT * FROM B WHERE X IN (SELECT Y FROM C))", []string{"A"})
	if !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("UnauthorizedTables() = %v", got)
	}
	if !IsWhitelisted("SELECT * FROM A WHERE EXISTS (SELECT 1 FROM B)", []string{"A"}) {
		t.Fatal("IsWhitelisted() = false for subquery in WHERE")
	}
}

func TestIsWhitelistedIsMonotonic(t *testing.T) {
	statements := []string{
		"SELECT * FROM A JOIN B ON A.ID = B.ID",
		"SELECT * FROM C",
		"SELECT 1",
		"SELECT * FROM A WHERE X IN (SELECT Y FROM D)",
		"(SELECT * FROM A) UNION (SELECT * FROM C)",
	}
	universe := []string{"A", "B", "C", "D"}
	for _, sql := range statements {
		for mask := 0; mask < 1<<len(universe); mask++ {
			var allowed []string
			for i, name := range universe {
				if mask&(1<<i) != 0 {
					allowed = append(allowed, name)
				}
			}
			if !IsWhitelisted(sql, allowed) {
				continue
			}
			for _, extra := range universe {
				if !IsWhitelisted(sql, append(append([]string(nil), allowed...), extra)) {
					t.Fatalf("IsWhitelisted(%q) flipped to false after adding %q to %v", sql, extra, allowed)
				}
			}
		}
	}
}

func TestEnsureLimit(t *testing.T) {
	cases := []struct {
		sql  string
		want string
	}{
		{"SELECT 1", "SELECT 1 LIMIT 5000;"},
		{"SELECT 1;  \n", "SELECT 1 LIMIT 5000;"},
		{"SELECT 1 ;;", "SELECT 1 LIMIT 5000;"},
		{"SELECT 1 LIMIT 10", "SELECT 1 LIMIT 10"},
		{"SELECT * FROM t limit 99999;", "SELECT * FROM t limit 99999;"},
	}
	for _, tc := range cases {
		got := EnsureLimit(tc.sql, 5000)
		if got != tc.want {
			t.Fatalf("EnsureLimit(%q) = %q, want %q", tc.sql, got, tc.want)
		}
		if again := EnsureLimit(got, 5000); again != got {
			t.Fatalf("EnsureLimit() not idempotent: %q -> %q", got, again)
		}
	}
}

func TestMaskLiterals(t *testing.T) {
	got := MaskLiterals("SELECT 'it''s -- x' FROM/* hidden */T -- trailing\nWHERE A = 'b'")
	want := "SELECT '          ' FROM T  \nWHERE A = ' '"
	if got != want {
		t.Fatalf("MaskLiterals() = %q, want %q", got, want)
	}
}

func TestIsWhitelistedRejectsDerivedTableAliases(t *testing.T) {
	// The alias of a derived table is read as a table name once the
	// subquery is stripped, so such statements are refused.
	if IsWhitelisted("SELECT * FROM (SELECT * FROM ORDO_PROJECT) p", []string{"ORDO_PROJECT"}) {
		t.Fatal("IsWhitelisted() = true for derived table alias")
	}
}
