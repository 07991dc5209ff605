package duckgatectl

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/duckgate/duckgate/internal/demo"
	"github.com/duckgate/duckgate/internal/warehouse"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer

	// OpenWarehouse is replaceable in tests; by default it opens the real
	// warehouse for the seed command.
	OpenWarehouse func(ctx context.Context, cfg warehouse.Config) (*sql.DB, error)
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("duckgatectl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "DuckGate API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	sqlText := fs.String("sql", "", "SQL text for the query command")
	question := fs.String("question", "", "Natural-language question for the chat command")
	dbPath := fs.String("db", "data/demo.duckdb", "DuckDB file for the seed command")
	rows := fs.Int("rows", 100000, "Number of demo events for the seed command")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	method := ""
	path := ""
	var body any
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "schema":
		method, path = http.MethodGet, "/v1/schema"
	case "query":
		if strings.TrimSpace(*sqlText) == "" {
			_, _ = fmt.Fprintln(stderr, "query requires -sql")
			return 2
		}
		method, path = http.MethodPost, "/v1/query"
		body = map[string]string{"sql": *sqlText}
	case "chat":
		if strings.TrimSpace(*question) == "" {
			_, _ = fmt.Fprintln(stderr, "chat requires -question")
			return 2
		}
		method, path = http.MethodPost, "/v1/chat"
		body = map[string]string{"question": *question}
	case "seed":
		return runSeed(ctx, defaults, stdout, stderr, *dbPath, *rows)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, *apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

// runSeed writes the demo events table straight into the warehouse file. It
// deliberately bypasses the API: seeding is a mutating operation the gate
// would (correctly) refuse.
func runSeed(ctx context.Context, defaults Options, stdout, stderr io.Writer, dbPath string, rows int) int {
	open := defaults.OpenWarehouse
	if open == nil {
		open = warehouse.Open
	}
	db, err := open(ctx, warehouse.Config{Driver: warehouse.DriverDuckDB, Path: dbPath})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "open warehouse: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	stats, err := demo.Seed(ctx, db, rows)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "seed failed: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "seeded %s with %d rows (%s .. %s)\n",
		stats.Table, stats.Rows, stats.MinTS.Format(time.RFC3339), stats.MaxTS.Format(time.RFC3339))
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: duckgatectl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health    GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready     GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema    GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  query     POST /v1/query (requires -sql)")
	_, _ = fmt.Fprintln(w, "  chat      POST /v1/chat (requires -question)")
	_, _ = fmt.Fprintln(w, "  seed      create the local demo events table (-db, -rows)")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
