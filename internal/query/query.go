// Package query defines the execution contract between the safety gate and
// the warehouse engine.
package query

import (
	"context"
	"fmt"
	"time"
)

// Request carries an admitted, rewritten statement together with the policy
// bounds the executor enforces. The SQL already carries an outermost LIMIT;
// HardRowCeiling is the defense-in-depth cap applied again while scanning.
type Request struct {
	SQL            string
	RequestID      string
	HardRowCeiling int
	Timeout        time.Duration
}

// Result is a bounded preview of the statement's output. Row cells are
// normalized scalars: string, int64, float64, bool, time.Time, or nil.
type Result struct {
	Columns   []string
	Rows      []map[string]any
	RowCount  int
	Truncated bool
	Plan      string
	Elapsed   time.Duration
}

// FailureKind distinguishes the execution failure classes callers react to
// differently: timeouts are tunable, connection errors are circuit-breaker
// material, engine errors are informational.
type FailureKind string

const (
	FailureTimeout    FailureKind = "TIMEOUT"
	FailureCanceled   FailureKind = "CANCELED"
	FailureConnection FailureKind = "CONNECTION_ERROR"
	FailureEngine     FailureKind = "ENGINE_ERROR"
)

// ExecError is a typed execution failure for a single request. It never
// poisons the shared pool; the next request starts clean.
type ExecError struct {
	Kind    FailureKind
	Detail  string
	Elapsed time.Duration
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("query execution failed (%s): %s", e.Kind, e.Detail)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
