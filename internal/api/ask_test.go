package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/askmesh/askmesh/internal/ask"
	"github.com/askmesh/askmesh/internal/audit"
	"github.com/askmesh/askmesh/internal/contextpack"
	"github.com/askmesh/askmesh/internal/sqlguard"
)

func TestAskReturnsAnswer(t *testing.T) {
	service := &fakeService{answer: ask.Answer{
		SQL:        "SELECT COUNT(*) AS N FROM ORDO_PROJECT LIMIT 5000;",
		RowCount:   1,
		Columns:    []string{"N"},
		Preview:    []map[string]any{{"N": 3}},
		Insight:    "Three projects.",
		TablesUsed: []string{"ORDO_PROJECT"},
	}}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Service: service})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"how many projects?","limit":10,"sample":5}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["sql"] != service.answer.SQL || body["insight"] != "Three projects." {
		t.Fatalf("body = %#v", body)
	}
	if service.lastQuestion.Text != "how many projects?" || service.lastQuestion.Limit != 10 || service.lastQuestion.SampleRows != 5 {
		t.Fatalf("question = %#v", service.lastQuestion)
	}
}

func TestAskValidatesRequest(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Service: &fakeService{}})
	cases := map[string]string{
		`{"question":"  "}`:             "QUESTION_REQUIRED",
		`{"question":"x","extra":true}`: "INVALID_JSON",
		`not json`:                      "INVALID_JSON",
		`{"question":"x","limit":-1}`:   "INVALID_LIMIT",
	}
	for payload, code := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(payload)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("payload %s status = %d", payload, rr.Code)
		}
		if body := decodeBody(t, rr); body["error_code"] != code {
			t.Fatalf("payload %s error_code = %v, want %s", payload, body["error_code"], code)
		}
	}
}

func TestAskMapsGuardRejections(t *testing.T) {
	verdict := sqlguard.Verdict{
		Raw:       "SELECT * FROM T1 JOIN SECRET_TABLE",
		Extracted: "SELECT * FROM T1 JOIN SECRET_TABLE",
		Resolved:  "SELECT * FROM ORDO_PROJECT JOIN SECRET_TABLE",
	}
	cases := []struct {
		err  error
		code string
	}{
		{&sqlguard.UnauthorizedTableError{SQL: verdict.Resolved, Allowed: []string{"ORDO_PROJECT"}, Offending: []string{"SECRET_TABLE"}}, "UNAUTHORIZED_TABLE"},
		{&sqlguard.NotReadOnlyError{SQL: "DROP TABLE ORDO_PROJECT"}, "NOT_READ_ONLY"},
		{&sqlguard.ExtractionEmptyError{Raw: "I cannot answer that."}, "EXTRACTION_EMPTY"},
	}
	for _, tc := range cases {
		service := &fakeService{err: &ask.RejectedError{Verdict: verdict, Tables: []string{"ORDO_PROJECT"}, Err: tc.err}}
		h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Service: service})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"list secrets"}`)))
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s status = %d", tc.code, rr.Code)
		}
		body := decodeBody(t, rr)
		if body["error_code"] != tc.code {
			t.Fatalf("error_code = %v, want %s", body["error_code"], tc.code)
		}
		extra, ok := body["context"].(map[string]any)
		if !ok || extra["sql_after_handles"] != verdict.Resolved {
			t.Fatalf("context = %#v", body["context"])
		}
		if tc.code == "UNAUTHORIZED_TABLE" {
			offending, _ := extra["offending_tables"].([]any)
			if len(offending) != 1 || offending[0] != "SECRET_TABLE" {
				t.Fatalf("offending_tables = %#v", extra["offending_tables"])
			}
		}
	}
}

func TestAskMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ask.ErrQuestionRequired, http.StatusBadRequest, "QUESTION_REQUIRED"},
		{ask.ErrGeneratorUnavailable, http.StatusServiceUnavailable, "MODEL_NOT_CONFIGURED"},
		{ask.ErrEngineUnavailable, http.StatusServiceUnavailable, "ENGINE_NOT_CONFIGURED"},
		{fmt.Errorf("%w: %w", ask.ErrGeneration, errors.New("upstream 500")), http.StatusBadGateway, "MODEL_ERROR"},
		{fmt.Errorf("%w: %w", ask.ErrExecution, errors.New("relation does not exist")), http.StatusBadRequest, "QUERY_EXECUTION_FAILED"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Service: &fakeService{err: tc.err}})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/translate", strings.NewReader(`{"question":"x"}`)))
		if rr.Code != tc.status {
			t.Fatalf("%v status = %d, want %d", tc.err, rr.Code, tc.status)
		}
		if body := decodeBody(t, rr); body["error_code"] != tc.code {
			t.Fatalf("%v error_code = %v, want %s", tc.err, body["error_code"], tc.code)
		}
	}
}

func TestTranslateReturnsStatement(t *testing.T) {
	debug := true
	service := &fakeService{trans: ask.Translation{
		SQL:        "SELECT * FROM ORDO_PROJECT LIMIT 5000;",
		TablesUsed: []string{"ORDO_PROJECT"},
		Debug:      &ask.Debug{Context: "T1(ORDO_PROJECT): ID"},
	}}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Service: service})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/translate", strings.NewReader(`{"question":"projects","debug":true}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["sql"] != service.trans.SQL {
		t.Fatalf("body = %#v", body)
	}
	if service.lastQuestion.Debug == nil || *service.lastQuestion.Debug != debug {
		t.Fatalf("debug flag = %v", service.lastQuestion.Debug)
	}
	if _, ok := body["debug"].(map[string]any); !ok {
		t.Fatalf("debug = %#v", body["debug"])
	}
}

func TestContextReturnsPack(t *testing.T) {
	service := &fakeService{pack: contextpack.Pack{
		Text:    "T1(ORDO_PROJECT): ID NUMBER",
		Tables:  []string{"ORDO_PROJECT"},
		Columns: map[string][]string{"ORDO_PROJECT": {"ID"}},
	}}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Service: service})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/context", strings.NewReader(`{"question":"projects"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["context"] != service.pack.Text {
		t.Fatalf("body = %#v", body)
	}
}

func TestGuardCheck(t *testing.T) {
	service := &fakeService{verdict: sqlguard.Verdict{
		Extracted: "SELECT * FROM ORDO_PROJECT",
		Resolved:  "SELECT * FROM ORDO_PROJECT",
		Final:     "SELECT * FROM ORDO_PROJECT LIMIT 5000;",
	}}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Service: service})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/guard/check", strings.NewReader(`{"sql":"SELECT * FROM ORDO_PROJECT","tables":["ORDO_PROJECT"]}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["authorized"] != true || body["sql_final"] != "SELECT * FROM ORDO_PROJECT LIMIT 5000;" {
		t.Fatalf("body = %#v", body)
	}
	if service.lastSQL != "SELECT * FROM ORDO_PROJECT" || len(service.lastTables) != 1 {
		t.Fatalf("check args = %q %v", service.lastSQL, service.lastTables)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/guard/check", strings.NewReader(`{"tables":["ORDO_PROJECT"]}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty sql status = %d", rr.Code)
	}
}

func TestGuardCheckRejectsWrites(t *testing.T) {
	service := &fakeService{err: &ask.RejectedError{
		Tables: []string{"ORDO_PROJECT"},
		Err:    &sqlguard.NotReadOnlyError{SQL: "DELETE FROM ORDO_PROJECT"},
	}}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Service: service})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/guard/check", strings.NewReader(`{"sql":"DELETE FROM ORDO_PROJECT","tables":["ORDO_PROJECT"]}`)))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "NOT_READ_ONLY" {
		t.Fatalf("body = %#v", body)
	}
}

func TestAuditListAppliesFilter(t *testing.T) {
	rowCount := 4
	reader := &fakeAuditReader{entries: []audit.Entry{{
		ID:         "a1",
		Operation:  audit.OperationAsk,
		Question:   "how many projects?",
		Authorized: true,
		RowCount:   &rowCount,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{Audit: reader})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/audit?limit=10&rejected=true", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if reader.filter.Limit != 10 || !reader.filter.RejectedOnly {
		t.Fatalf("filter = %#v", reader.filter)
	}
	entries, _ := decodeBody(t, rr)["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries = %#v", entries)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/audit?limit=abc", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit status = %d", rr.Code)
	}
}

func TestAuditListNotConfigured(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{}), Dependencies{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/audit", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}
