package api

import (
	"net/http"
	"strings"
)

type guardCheckRequest struct {
	SQL    string   `json:"sql"`
	Tables []string `json:"tables"`
}

type guardCheckResponse struct {
	Authorized bool   `json:"authorized"`
	Extracted  string `json:"sql_clean"`
	Resolved   string `json:"sql_after_handles"`
	FinalSQL   string `json:"sql_final"`
}

func handleGuardCheck(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GUARD_NOT_CONFIGURED", "question service is not configured", false, nil)
		return
	}
	var req guardCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid guard check request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	verdict, err := deps.Service.Check(r.Context(), req.SQL, req.Tables)
	if err != nil {
		writeServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, guardCheckResponse{
		Authorized: true,
		Extracted:  verdict.Extracted,
		Resolved:   verdict.Resolved,
		FinalSQL:   verdict.Final,
	})
}
