// Package duckdb executes admitted statements against the warehouse under a
// hard wall-clock deadline. It works over database/sql, so the same executor
// serves the embedded DuckDB driver and the pgx stdlib driver.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"time"

	"github.com/duckgate/duckgate/internal/query"
)

const defaultAcquireTimeout = 2 * time.Second

type Engine struct {
	db *sql.DB

	// AcquireTimeout bounds how long a request may wait for a pooled
	// connection before the request fails as retry-eligible.
	AcquireTimeout time.Duration
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db, AcquireTimeout: defaultAcquireTimeout}
}

// Execute runs the statement on a dedicated connection so that cancelling
// this query can never abort another request's in-flight statement. The
// deadline covers plan capture and row streaming together; on expiry the
// driver cancels the engine-side execution and no partial rows are returned.
func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	start := time.Now()
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, &query.ExecError{Kind: query.FailureEngine, Detail: "sql is required"}
	}

	execCtx := ctx
	if request.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, request.Timeout)
		defer cancel()
	}

	acquireCtx, cancelAcquire := context.WithTimeout(execCtx, e.acquireTimeout())
	defer cancelAcquire()
	conn, err := e.db.Conn(acquireCtx)
	if err != nil {
		return query.Result{}, &query.ExecError{
			Kind:    query.FailureConnection,
			Detail:  "no warehouse connection available: " + err.Error(),
			Elapsed: time.Since(start),
			Err:     err,
		}
	}
	defer func() { _ = conn.Close() }()

	plan, err := capturePlan(execCtx, conn, request.SQL)
	if err != nil {
		return query.Result{}, classifyError(err, time.Since(start))
	}

	rows, err := conn.QueryContext(execCtx, request.SQL)
	if err != nil {
		return query.Result{}, classifyError(err, time.Since(start))
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, classifyError(err, time.Since(start))
	}

	resultRows := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		// ceiling applies even if the rewritten LIMIT was ignored
		if request.HardRowCeiling > 0 && len(resultRows) >= request.HardRowCeiling {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, classifyError(err, time.Since(start))
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, record)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, classifyError(err, time.Since(start))
	}

	return query.Result{
		Columns:   columns,
		Rows:      resultRows,
		RowCount:  len(resultRows),
		Truncated: truncated,
		Plan:      plan,
		Elapsed:   time.Since(start),
	}, nil
}

func (e *Engine) acquireTimeout() time.Duration {
	if e.AcquireTimeout > 0 {
		return e.AcquireTimeout
	}
	return defaultAcquireTimeout
}

// capturePlan collects the engine's EXPLAIN output. DuckDB returns key/value
// pairs, Postgres a single text column; both flatten into line-joined text.
func capturePlan(ctx context.Context, conn *sql.Conn, sqlText string) (string, error) {
	rows, err := conn.QueryContext(ctx, "EXPLAIN "+sqlText)
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var lines []string
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return "", err
		}
		var parts []string
		for _, value := range values {
			if text, ok := normalizeValue(value).(string); ok && strings.TrimSpace(text) != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, "\n"))
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func classifyError(err error, elapsed time.Duration) *query.ExecError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &query.ExecError{
			Kind:    query.FailureTimeout,
			Detail:  "query exceeded its deadline",
			Elapsed: elapsed,
			Err:     err,
		}
	case errors.Is(err, context.Canceled):
		return &query.ExecError{
			Kind:    query.FailureCanceled,
			Detail:  "query canceled by caller",
			Elapsed: elapsed,
			Err:     err,
		}
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return &query.ExecError{
			Kind:    query.FailureConnection,
			Detail:  err.Error(),
			Elapsed: elapsed,
			Err:     err,
		}
	default:
		// the statement already passed the gate; engine errors are
		// informational and surfaced verbatim
		return &query.ExecError{
			Kind:    query.FailureEngine,
			Detail:  err.Error(),
			Elapsed: elapsed,
			Err:     err,
		}
	}
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}
