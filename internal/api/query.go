package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/duckgate/duckgate/internal/gate"
	"github.com/duckgate/duckgate/internal/observability"
	"github.com/duckgate/duckgate/internal/query"
	"github.com/duckgate/duckgate/internal/runner"
)

type queryRequest struct {
	SQL string `json:"sql"`
}

type queryResponse struct {
	SQL       string           `json:"sql"`
	Plan      string           `json:"plan"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
	ElapsedMs int64            `json:"elapsed_ms"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Runner == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "query_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	result, err := deps.Runner.Run(r.Context(), runner.Request{
		SQL:       request.SQL,
		RequestID: observability.TraceIDFromContext(r.Context()),
	})
	if err != nil {
		writeRunError(r.Context(), w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		SQL:       result.SQL,
		Plan:      result.Plan,
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
		ElapsedMs: result.Elapsed.Milliseconds(),
	})
}

// writeRunError maps the runner's typed errors onto the response contract:
// policy rejections and execution failures are distinct payload shapes, and
// neither ever carries rows or plan text.
func writeRunError(ctx context.Context, w http.ResponseWriter, err error, extra map[string]any) {
	var rejection *gate.RejectionError
	if errors.As(err, &rejection) {
		payload := map[string]any{
			"rejected": true,
			"reason":   string(rejection.Kind),
			"detail":   rejection.Detail,
			"trace_id": observability.TraceIDFromContext(ctx),
		}
		for key, value := range extra {
			payload[key] = value
		}
		writeJSON(w, http.StatusBadRequest, payload)
		return
	}

	var failure *query.ExecError
	if errors.As(err, &failure) {
		status := http.StatusBadRequest
		switch failure.Kind {
		case query.FailureTimeout, query.FailureCanceled:
			status = http.StatusGatewayTimeout
		case query.FailureConnection:
			status = http.StatusServiceUnavailable
		}
		payload := map[string]any{
			"failed":     true,
			"kind":       string(failure.Kind),
			"detail":     failure.Detail,
			"elapsed_ms": failure.Elapsed.Milliseconds(),
			"trace_id":   observability.TraceIDFromContext(ctx),
		}
		for key, value := range extra {
			payload[key] = value
		}
		writeJSON(w, status, payload)
		return
	}

	writeError(ctx, w, http.StatusInternalServerError, "QUERY_FAILED", err.Error(), false, nil)
}
