package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/duckgate/duckgate/internal/auth"
	"github.com/duckgate/duckgate/internal/config"
	"github.com/duckgate/duckgate/internal/gate"
	"github.com/duckgate/duckgate/internal/nl2sql"
	"github.com/duckgate/duckgate/internal/query"
	"github.com/duckgate/duckgate/internal/runner"
)

type fakeRunner struct {
	gotSQL string
	result runner.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, request runner.Request) (runner.Result, error) {
	f.gotSQL = request.SQL
	if f.err != nil {
		return runner.Result{}, f.err
	}
	return f.result, nil
}

type fakeTranslator struct {
	gotQuestion string
	result      nl2sql.Result
	err         error
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.gotQuestion = req.Question
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return f.result, nil
}

type fakeSchema struct {
	tables []nl2sql.TableContext
	err    error
}

func (f *fakeSchema) TableContexts(context.Context) ([]nl2sql.TableContext, error) {
	return f.tables, f.err
}

func testConfig() config.Config {
	cfg, err := config.Load("duckgate-api", func(string) (string, bool) { return "", false })
	if err != nil {
		panic(err)
	}
	return cfg
}

func successResult() runner.Result {
	return runner.Result{
		SQL:       "SELECT country FROM events LIMIT 200",
		Plan:      "SEQ_SCAN events",
		Columns:   []string{"country"},
		Rows:      []map[string]any{{"country": "PL"}},
		RowCount:  1,
		Truncated: false,
		Elapsed:   25 * time.Millisecond,
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestQueryEndpointSuccess(t *testing.T) {
	fake := &fakeRunner{result: successResult()}
	handler := NewHandler(testConfig(), Dependencies{Runner: fake})

	body := bytes.NewBufferString(`{"sql":"SELECT country FROM events"}`)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if fake.gotSQL != "SELECT country FROM events" {
		t.Fatalf("runner got %q", fake.gotSQL)
	}

	var response struct {
		SQL       string           `json:"sql"`
		Plan      string           `json:"plan"`
		Rows      []map[string]any `json:"rows"`
		RowCount  int              `json:"row_count"`
		Truncated bool             `json:"truncated"`
		ElapsedMs int64            `json:"elapsed_ms"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.SQL != "SELECT country FROM events LIMIT 200" {
		t.Fatalf("sql = %q", response.SQL)
	}
	if response.Plan != "SEQ_SCAN events" || response.RowCount != 1 || response.Truncated {
		t.Fatalf("response = %+v", response)
	}
	if response.ElapsedMs != 25 {
		t.Fatalf("elapsed_ms = %d", response.ElapsedMs)
	}
}

func TestQueryEndpointRejection(t *testing.T) {
	fake := &fakeRunner{err: &gate.RejectionError{Kind: gate.RejectForbiddenKeyword, Detail: "DROP"}}
	handler := NewHandler(testConfig(), Dependencies{Runner: fake})

	body := bytes.NewBufferString(`{"sql":"DROP TABLE events"}`)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", body))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	var response struct {
		Rejected bool   `json:"rejected"`
		Reason   string `json:"reason"`
		Detail   string `json:"detail"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !response.Rejected || response.Reason != "FORBIDDEN_KEYWORD" || response.Detail != "DROP" {
		t.Fatalf("response = %+v", response)
	}
}

func TestQueryEndpointFailureStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		kind       query.FailureKind
		wantStatus int
	}{
		{"timeout", query.FailureTimeout, http.StatusGatewayTimeout},
		{"canceled", query.FailureCanceled, http.StatusGatewayTimeout},
		{"connection", query.FailureConnection, http.StatusServiceUnavailable},
		{"engine", query.FailureEngine, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeRunner{err: &query.ExecError{Kind: tt.kind, Detail: "boom", Elapsed: time.Second}}
			handler := NewHandler(testConfig(), Dependencies{Runner: fake})

			body := bytes.NewBufferString(`{"sql":"SELECT 1"}`)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", body))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var response struct {
				Failed    bool   `json:"failed"`
				Kind      string `json:"kind"`
				ElapsedMs int64  `json:"elapsed_ms"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if !response.Failed || response.Kind != string(tt.kind) {
				t.Fatalf("response = %+v", response)
			}
			if response.ElapsedMs != 1000 {
				t.Fatalf("elapsed_ms = %d", response.ElapsedMs)
			}
		})
	}
}

func TestQueryEndpointValidation(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{Runner: &fakeRunner{}})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"unknown field", `{"sql":"SELECT 1","extra":true}`},
		{"missing sql", `{"sql":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString(tt.body)))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
		})
	}
}

func TestChatEndpointTranslatesAndRuns(t *testing.T) {
	translator := &fakeTranslator{result: nl2sql.Result{SQL: "SELECT country FROM events", Provider: "openai", Model: "gpt-5"}}
	fake := &fakeRunner{result: successResult()}
	handler := NewHandler(testConfig(), Dependencies{
		Runner:     fake,
		Translator: translator,
		Schema:     &fakeSchema{tables: []nl2sql.TableContext{{TableName: "events", Columns: []string{"country"}}}},
	})

	body := bytes.NewBufferString(`{"question":"top countries by events"}`)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if translator.gotQuestion != "top countries by events" {
		t.Fatalf("translator got %q", translator.gotQuestion)
	}
	if fake.gotSQL != "SELECT country FROM events" {
		t.Fatalf("runner got %q", fake.gotSQL)
	}

	var response struct {
		SQL      string `json:"sql"`
		Provider string `json:"provider"`
		Model    string `json:"model"`
		RowCount int    `json:"row_count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.SQL != "SELECT country FROM events LIMIT 200" || response.Provider != "openai" {
		t.Fatalf("response = %+v", response)
	}
}

func TestChatEndpointRejectionIncludesGeneratedSQL(t *testing.T) {
	translator := &fakeTranslator{result: nl2sql.Result{SQL: "DROP TABLE events"}}
	fake := &fakeRunner{err: &gate.RejectionError{Kind: gate.RejectForbiddenKeyword, Detail: "DROP"}}
	handler := NewHandler(testConfig(), Dependencies{
		Runner:     fake,
		Translator: translator,
		Schema:     &fakeSchema{},
	})

	body := bytes.NewBufferString(`{"question":"drop everything"}`)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", body))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	var response struct {
		Rejected bool   `json:"rejected"`
		SQL      string `json:"sql"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !response.Rejected || response.SQL != "DROP TABLE events" {
		t.Fatalf("response = %+v", response)
	}
}

func TestChatEndpointWithoutTranslator(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{Runner: &fakeRunner{}, Schema: &fakeSchema{}})

	body := bytes.NewBufferString(`{"question":"hi"}`)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", body))

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{
		Schema: &fakeSchema{tables: []nl2sql.TableContext{{TableName: "events", Columns: []string{"country", "device"}}}},
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var response struct {
		Tables []nl2sql.TableContext `json:"tables"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Tables) != 1 || response.Tables[0].TableName != "events" {
		t.Fatalf("tables = %+v", response.Tables)
	}
}

func TestReadyEndpointReportsFailure(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{
		Readiness: func(context.Context) error { return errors.New("warehouse down") },
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Required = true
	validator, err := auth.NewStaticAPIKeyValidator("k1:analyst:query_reader,k2:viewer:dashboard_viewer")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	handler := NewHandler(cfg, Dependencies{
		Runner:         &fakeRunner{result: successResult()},
		AuthMiddleware: auth.Middleware(nil, validator),
	})

	t.Run("missing key", func(t *testing.T) {
		body := bytes.NewBufferString(`{"sql":"SELECT 1"}`)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/query", body))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rr.Code)
		}
	})

	t.Run("valid key with role", func(t *testing.T) {
		body := bytes.NewBufferString(`{"sql":"SELECT 1"}`)
		req := httptest.NewRequest(http.MethodPost, "/v1/query", body)
		req.Header.Set("X-API-Key", "k1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
		}
	})

	t.Run("valid key without role", func(t *testing.T) {
		body := bytes.NewBufferString(`{"sql":"SELECT 1"}`)
		req := httptest.NewRequest(http.MethodPost, "/v1/query", body)
		req.Header.Set("X-API-Key", "k2")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("status = %d", rr.Code)
		}
	})

	t.Run("health stays public", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
	})
}
