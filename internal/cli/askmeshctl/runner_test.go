package askmeshctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/askmesh/askmesh/internal/storage"
)

const testSchema = `{"tables": [
  {"name": "ORDO_PROJECT", "description_table": "Projects with their status and budget",
   "columns": [{"name": "ID", "type": "NUMBER"}, {"name": "STATUS", "type": "VARCHAR2(20)"}, {"name": "FLAG", "type": "CHAR(1)"}],
   "pk": ["ID"]},
  {"name": "ORDO_TASK",
   "columns": [{"name": "ID", "type": "NUMBER"}, {"name": "PROJECT_ID", "type": "NUMBER"}],
   "fks": [{"from": "PROJECT_ID", "to": "ORDO_PROJECT.ID"}]}
]}`

func TestRunAskCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sql":"SELECT 1 LIMIT 10;","row_count":1}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"--api-key", "k1",
		"ask", "--limit", "10", "--debug",
		"how", "many", "projects?",
	}, Options{Stdout: &stdout, Stderr: &stderr, Timeout: 2 * time.Second})

	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/ask" || gotAPIKey != "k1" {
		t.Fatalf("request = %s %s key=%q", gotMethod, gotPath, gotAPIKey)
	}
	if gotBody["question"] != "how many projects?" || gotBody["limit"] != float64(10) || gotBody["debug"] != true {
		t.Fatalf("body = %#v", gotBody)
	}
	if _, ok := gotBody["sample"]; ok {
		t.Fatalf("sample sent without flag: %#v", gotBody)
	}
	if !strings.Contains(stdout.String(), `"row_count": 1`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunAuditCommandSendsFilter(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"entries":[]}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"--base-url", srv.URL, "audit", "--limit", "5", "--rejected"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotQuery != "limit=5&rejected=true" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestRunReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_code":"UNAUTHORIZED_TABLE"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "check", "--tables", "ORDO_PROJECT", "SELECT * FROM SECRET"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "http 422") || !strings.Contains(stderr.String(), "UNAUTHORIZED_TABLE") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"unknown"},
		{"ask"},
		{"health", "--no-such-flag"},
		{"guard", "SELECT 1"},
	} {
		if code := Run(context.Background(), args, Options{}); code != 2 {
			t.Fatalf("Run(%q) exit code = %d, want 2", args, code)
		}
	}
}

func TestPackCommandPrintsContext(t *testing.T) {
	schemaPath := writeSchema(t)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"pack", "--schema", schemaPath, "--top-tables", "2", "ordo_task rows per status of ordo_project"}, Options{Stdout: &stdout, Stderr: &stderr})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "=ORDO_PROJECT(") || !strings.Contains(out, "=ORDO_TASK(") {
		t.Fatalf("stdout = %s", out)
	}
	if !strings.Contains(out, "Relations: ") {
		t.Fatalf("stdout without relations: %s", out)
	}
}

func TestGuardCommand(t *testing.T) {
	schemaPath := writeSchema(t)

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{
		"guard", "--schema", schemaPath, "--tables", "ORDO_PROJECT", "--limit", "100",
		"SELECT * FROM T1 WHERE T1.FLAG = 1",
	}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got := strings.TrimSpace(stdout.String()); got != "SELECT * FROM ORDO_PROJECT WHERE ORDO_PROJECT.FLAG = '1' LIMIT 100;" {
		t.Fatalf("stdout = %q", got)
	}

	var stderr bytes.Buffer
	code = Run(context.Background(), []string{"guard", "--tables", "ORDO_PROJECT", "DELETE FROM ORDO_PROJECT"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "not_read_only") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestPushSchemaUploadsLiveAndArchiveCopies(t *testing.T) {
	schemaPath := writeSchema(t)
	store := newMemoryStore()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"push", "schema", "--name", "erp", schemaPath}, Options{
		Stdout:    &stdout,
		Stderr:    &stderr,
		SchemaKey: "schema/catalog.json",
		OpenStore: func(context.Context) (storage.ObjectStore, error) { return store, nil },
		Now:       func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) },
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if string(store.objects["schema/catalog.json"]) != testSchema {
		t.Fatal("live schema not uploaded")
	}
	if _, ok := store.objects["schemas/erp/date=2026-03-04/schema-20260304T050607Z.json"]; !ok {
		t.Fatalf("archive copy missing: %v", store.keys())
	}
	if !strings.Contains(stdout.String(), "schema has 2 tables") {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestPushSchemaRejectsInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte(`{"tables": [{"columns": []}]}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	store := newMemoryStore()
	code := Run(context.Background(), []string{"push", "schema", "--key", "schema/catalog.json", path}, Options{
		OpenStore: func(context.Context) (storage.ObjectStore, error) { return store, nil },
	})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if len(store.objects) != 0 {
		t.Fatalf("objects = %v", store.keys())
	}
}

type projectRow struct {
	ID     int64  `parquet:"ID"`
	Status string `parquet:"STATUS"`
}

func TestPushTableUploadsParquetParts(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.parquet")
	second := filepath.Join(dir, "b.parquet")
	if err := parquet.WriteFile(first, []projectRow{{ID: 1, Status: "OPEN"}, {ID: 2, Status: "CLOSED"}}); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := parquet.WriteFile(second, []projectRow{{ID: 3, Status: "OPEN"}}); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	store := newMemoryStore()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"push", "table", "ORDO_PROJECT", first, second}, Options{
		Stdout:    &stdout,
		Stderr:    &stderr,
		OpenStore: func(context.Context) (storage.ObjectStore, error) { return store, nil },
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	want := "ORDO_PROJECT=tables/ORDO_PROJECT/part-00000.parquet,tables/ORDO_PROJECT/part-00001.parquet"
	if !strings.Contains(stdout.String(), want) {
		t.Fatalf("stdout = %s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "(2 rows)") {
		t.Fatalf("stdout = %s", stdout.String())
	}
	if len(store.objects) != 2 {
		t.Fatalf("objects = %v", store.keys())
	}
}

func TestPushTableRejectsNonParquetFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	if err := os.WriteFile(path, []byte("ID,STATUS\n1,OPEN\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	store := newMemoryStore()
	code := Run(context.Background(), []string{"push", "table", "ORDO_PROJECT", path}, Options{
		OpenStore: func(context.Context) (storage.ObjectStore, error) { return store, nil },
	})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if len(store.objects) != 0 {
		t.Fatalf("objects = %v", store.keys())
	}
}

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(testSchema), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

type memoryStore struct {
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) keys() []string {
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	return keys
}
