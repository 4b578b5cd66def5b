package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askmesh/askmesh/internal/ask"
	"github.com/askmesh/askmesh/internal/observability"
	"github.com/askmesh/askmesh/internal/schema"
	"github.com/askmesh/askmesh/internal/sqlguard"
)

type contextRequest struct {
	Question string `json:"question"`
}

type contextResponse struct {
	Context string              `json:"context"`
	Tables  []string            `json:"tables"`
	Columns map[string][]string `json:"columns"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question service is not configured", false, nil)
		return
	}
	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	answer, err := deps.Service.Ask(r.Context(), question)
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "question service is not configured", false, nil)
		return
	}
	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	translation, err := deps.Service.Translate(r.Context(), question)
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, translation)
}

func handleContext(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CONTEXT_NOT_CONFIGURED", "question service is not configured", false, nil)
		return
	}
	var req contextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid context request body", false, map[string]any{"details": err.Error()})
		return
	}
	pack, err := deps.Service.Pack(r.Context(), req.Question)
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contextResponse{
		Context: pack.Text,
		Tables:  pack.Tables,
		Columns: pack.Columns,
	})
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (ask.Question, bool) {
	var question ask.Question
	if err := decodeJSON(w, r, &question); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return ask.Question{}, false
	}
	if strings.TrimSpace(question.Text) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return ask.Question{}, false
	}
	if question.Limit < 0 || question.SampleRows < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit and sample must not be negative", false, nil)
		return ask.Question{}, false
	}
	return question, true
}

// writeServiceError maps service failures to the API error envelope. Guard
// rejections keep the intermediate statements in the error context.
func writeServiceError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var rejected *ask.RejectedError
	if errors.As(err, &rejected) {
		writeRejection(ctx, w, rejected)
		return
	}

	switch {
	case errors.Is(err, ask.ErrQuestionRequired):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
	case errors.Is(err, schema.ErrSchemaLoad):
		logServiceError(deps, ctx, "schema catalog unavailable", err)
		writeError(ctx, w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "schema catalog could not be loaded", true, map[string]any{"details": err.Error()})
	case errors.Is(err, ask.ErrGeneratorUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, "MODEL_NOT_CONFIGURED", err.Error(), false, nil)
	case errors.Is(err, ask.ErrEngineUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, "ENGINE_NOT_CONFIGURED", err.Error(), false, nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", "request timed out", true, map[string]any{"details": err.Error()})
	case errors.Is(err, ask.ErrGeneration):
		logServiceError(deps, ctx, "sql generation failed", err)
		writeError(ctx, w, http.StatusBadGateway, "MODEL_ERROR", "sql generation failed", true, map[string]any{"details": err.Error()})
	case errors.Is(err, ask.ErrExecution):
		writeError(ctx, w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
	default:
		logServiceError(deps, ctx, "question request failed", err)
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "request failed", true, map[string]any{"details": err.Error()})
	}
}

func writeRejection(ctx context.Context, w http.ResponseWriter, rejected *ask.RejectedError) {
	verdict := rejected.Verdict
	extra := map[string]any{
		"sql_raw":           verdict.Raw,
		"sql_clean":         verdict.Extracted,
		"sql_after_handles": verdict.Resolved,
		"allowed_tables":    rejected.Tables,
	}

	var unauthorized *sqlguard.UnauthorizedTableError
	var notReadOnly *sqlguard.NotReadOnlyError
	switch {
	case errors.As(rejected.Err, &unauthorized):
		extra["offending_tables"] = unauthorized.Offending
		writeError(ctx, w, http.StatusUnprocessableEntity, "UNAUTHORIZED_TABLE", "statement references tables outside the candidate set", false, extra)
	case errors.As(rejected.Err, &notReadOnly):
		writeError(ctx, w, http.StatusUnprocessableEntity, "NOT_READ_ONLY", "only a single read-only SELECT statement is allowed", false, extra)
	case errors.Is(rejected.Err, sqlguard.ErrExtractionEmpty):
		writeError(ctx, w, http.StatusUnprocessableEntity, "EXTRACTION_EMPTY", "model output contains no SELECT statement", false, extra)
	default:
		writeError(ctx, w, http.StatusUnprocessableEntity, "REJECTED", rejected.Error(), false, extra)
	}
}

func logServiceError(deps Dependencies, ctx context.Context, message string, err error) {
	if deps.Logger == nil {
		return
	}
	deps.Logger.ErrorContext(ctx, message,
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("error", err.Error()),
	)
}
