package api

import (
	"net/http"
	"strconv"

	"github.com/askmesh/askmesh/internal/audit"
)

func handleAuditList(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Audit == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AUDIT_NOT_CONFIGURED", "audit log is not configured", false, nil)
		return
	}

	filter := audit.ListFilter{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("rejected"); raw != "" {
		rejected, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FILTER", "rejected must be a boolean", false, map[string]any{"rejected": raw})
			return
		}
		filter.RejectedOnly = rejected
	}

	entries, err := deps.Audit.List(r.Context(), filter)
	if err != nil {
		logServiceError(deps, r.Context(), "audit list failed", err)
		writeError(r.Context(), w, http.StatusInternalServerError, "AUDIT_ERROR", "failed to list audit entries", true, map[string]any{"details": err.Error()})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
