// Package runner wires the safety gate to the bounded executor and assembles
// the response contract. It is the in-process entry point the HTTP surface
// and CLI call; it performs no I/O of its own beyond the engine it is handed.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/duckgate/duckgate/internal/gate"
	"github.com/duckgate/duckgate/internal/observability"
	"github.com/duckgate/duckgate/internal/query"
)

type Request struct {
	SQL       string
	RequestID string
}

// Result is the success contract: the rewritten statement, the engine's plan,
// and a bounded row preview. Rejections and failures are returned as typed
// errors and never carry partial rows or plan text.
type Result struct {
	SQL       string
	Plan      string
	Columns   []string
	Rows      []map[string]any
	RowCount  int
	Truncated bool
	Elapsed   time.Duration
}

type Runner struct {
	gate   *gate.Gate
	engine query.Engine
	logger *slog.Logger
}

func New(g *gate.Gate, engine query.Engine, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{gate: g, engine: engine, logger: logger}
}

// Run admits, executes, and assembles one untrusted statement. Errors are
// either *gate.RejectionError or *query.ExecError; no retries happen here —
// retry policy belongs to the caller.
func (r *Runner) Run(ctx context.Context, request Request) (Result, error) {
	admitted, err := r.gate.Admit(request.SQL)
	if err != nil {
		var rejection *gate.RejectionError
		if errors.As(err, &rejection) {
			observability.ObserveGateVerdict(string(rejection.Kind))
			// rejections are expected and frequent, not errors
			r.logger.DebugContext(ctx, "statement rejected",
				slog.String("request_id", request.RequestID),
				slog.String("reason", string(rejection.Kind)),
				slog.String("detail", rejection.Detail),
			)
		}
		return Result{}, err
	}
	observability.ObserveGateVerdict("ACCEPTED")

	policy := r.gate.Policy()
	executed, err := r.engine.Execute(ctx, query.Request{
		SQL:            admitted.SQL,
		RequestID:      request.RequestID,
		HardRowCeiling: policy.HardRowCeiling,
		Timeout:        policy.QueryTimeout,
	})
	if err != nil {
		var failure *query.ExecError
		if errors.As(err, &failure) {
			observability.ObserveQueryExecution(string(failure.Kind), failure.Elapsed)
			level := slog.LevelInfo
			if failure.Kind == query.FailureConnection {
				level = slog.LevelWarn
			}
			r.logger.Log(ctx, level, "query execution failed",
				slog.String("request_id", request.RequestID),
				slog.String("kind", string(failure.Kind)),
				slog.String("detail", failure.Detail),
				slog.Int64("elapsed_ms", failure.Elapsed.Milliseconds()),
			)
		}
		return Result{}, err
	}

	observability.ObserveQueryExecution("OK", executed.Elapsed)
	observability.ObserveQueryRows(executed.RowCount, executed.Truncated)
	r.logger.InfoContext(ctx, "query executed",
		slog.String("request_id", request.RequestID),
		slog.Int("rows", executed.RowCount),
		slog.Bool("truncated", executed.Truncated),
		slog.Int64("elapsed_ms", executed.Elapsed.Milliseconds()),
	)

	return Result{
		SQL:       admitted.SQL,
		Plan:      executed.Plan,
		Columns:   executed.Columns,
		Rows:      executed.Rows,
		RowCount:  executed.RowCount,
		Truncated: executed.Truncated,
		Elapsed:   executed.Elapsed,
	}, nil
}
