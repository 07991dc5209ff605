package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/duckgate/duckgate/internal/nl2sql"
	"github.com/duckgate/duckgate/internal/observability"
	"github.com/duckgate/duckgate/internal/runner"
)

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Question  string           `json:"question"`
	SQL       string           `json:"sql"`
	Plan      string           `json:"plan"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
	ElapsedMs int64            `json:"elapsed_ms"`
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
}

// handleChat is the question-to-preview flow: translate, then hand the
// generated text to the same gate-and-execute path as raw queries. The
// generated SQL is included in rejection payloads so callers can show what
// the model produced and retry generation.
func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	if deps.Runner == nil || deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, "query_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request chatRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	tables, err := deps.Schema.TableContexts(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema context", true, map[string]any{"details": err.Error()})
		return
	}

	translated, err := deps.Translator.Translate(r.Context(), nl2sql.Request{
		Question: request.Question,
		RowLimit: deps.DefaultRowLimit,
		Tables:   tables,
	})
	if err != nil {
		observability.ObserveTranslate("error")
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to translate question", true, map[string]any{"details": err.Error()})
		return
	}
	observability.ObserveTranslate("ok")

	result, err := deps.Runner.Run(r.Context(), runner.Request{
		SQL:       translated.SQL,
		RequestID: observability.TraceIDFromContext(r.Context()),
	})
	if err != nil {
		writeRunError(r.Context(), w, err, map[string]any{"sql": translated.SQL})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Question:  request.Question,
		SQL:       result.SQL,
		Plan:      result.Plan,
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
		ElapsedMs: result.Elapsed.Milliseconds(),
		Provider:  translated.Provider,
		Model:     translated.Model,
	})
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema dependency is not configured", false, nil)
		return
	}
	if err := requireRole(r, "query_reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	tables, err := deps.Schema.TableContexts(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema context", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}
