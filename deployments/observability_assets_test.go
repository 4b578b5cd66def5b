package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "grafana", "askmesh_dashboard.json")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dashboard file: %v", err)
	}

	var decoded struct {
		Title  string `json:"title"`
		Panels []struct {
			Title   string `json:"title"`
			Targets []struct {
				Expr string `json:"expr"`
			} `json:"targets"`
		} `json:"panels"`
	}
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}
	if strings.TrimSpace(decoded.Title) == "" {
		t.Fatal("dashboard title is required")
	}
	if len(decoded.Panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
	for _, panel := range decoded.Panels {
		if len(panel.Targets) == 0 {
			t.Fatalf("panel %q has no targets", panel.Title)
		}
		for _, target := range panel.Targets {
			if !strings.Contains(target.Expr, "askmesh") {
				t.Fatalf("panel %q target %q does not query askmesh series", panel.Title, target.Expr)
			}
		}
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	text := readAsset(t, "prometheus", "askmesh_rules.yaml")

	requiredAlerts := []string{
		"AskMeshHTTPErrorRateHigh",
		"AskMeshAskLatencyP95High",
		"AskMeshModelErrorRateHigh",
		"AskMeshQueryExecutionSlow",
		"AskMeshGuardRejectionRatioHigh",
		"AskMeshCatalogLoadFailing",
		"AskMeshIntegrityRunFailed",
		"AskMeshAuditRetentionFailing",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}

	records := readAsset(t, "prometheus", "askmesh_recording_rules.yaml")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		expr, ok := strings.CutPrefix(line, "expr: ")
		if !ok {
			continue
		}
		record, _, _ := strings.Cut(expr, " ")
		if !strings.Contains(records, "record: "+record) {
			t.Fatalf("alert expression %q references unknown record %q", expr, record)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := readAsset(t, "prometheus", "prometheus-scrape.example.yaml")

	requiredTokens := []string{
		"metrics_path: /v1/metrics",
		"askmesh_rules.yaml",
		"askmesh_recording_rules.yaml",
		"job_name: askmesh-api",
	}
	for _, token := range requiredTokens {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func TestPrometheusRecordingRulesContainExpectedRecords(t *testing.T) {
	text := readAsset(t, "prometheus", "askmesh_recording_rules.yaml")

	requiredRecords := []string{
		"askmesh:slo_http_error_rate_5m",
		"askmesh:slo_ask_latency_seconds_p95",
		"askmesh:slo_model_call_seconds_p95",
		"askmesh:slo_model_error_rate_5m",
		"askmesh:slo_query_execution_seconds_p95",
		"askmesh:slo_guard_rejection_ratio_15m",
		"askmesh:slo_unauthorized_table_rejections_15m",
		"askmesh:slo_catalog_load_failures_15m",
		"askmesh:slo_integrity_failures_30m",
		"askmesh:slo_audit_retention_failures_24h",
	}
	for _, recordName := range requiredRecords {
		if !strings.Contains(text, "record: "+recordName) {
			t.Fatalf("recording rules missing record %q", recordName)
		}
	}

	requiredMetrics := []string{
		"askmesh_http_requests_total",
		"askmesh_http_request_duration_seconds_bucket",
		"askmesh_model_call_seconds_bucket",
		"askmesh_query_execution_seconds_bucket",
		"askmesh_guard_verdicts_total",
		"askmesh_catalog_loads_total",
		"askmesh_maintenance_runs_total",
	}
	for _, metricName := range requiredMetrics {
		if !strings.Contains(text, metricName) {
			t.Fatalf("recording rules missing metric reference %q", metricName)
		}
	}
}

func readAsset(t *testing.T, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{repoRoot(t), "deployments", "observability"}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(content)
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
