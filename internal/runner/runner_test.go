package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/duckgate/duckgate/internal/gate"
	"github.com/duckgate/duckgate/internal/query"
)

type fakeEngine struct {
	gotRequest query.Request
	result     query.Result
	err        error
}

func (f *fakeEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	f.gotRequest = request
	if f.err != nil {
		return query.Result{}, f.err
	}
	return f.result, nil
}

func testGate() *gate.Gate {
	return gate.New(gate.NewPolicy(nil, 200, 10000, 8*time.Second))
}

func TestRunExecutesRewrittenStatement(t *testing.T) {
	engine := &fakeEngine{
		result: query.Result{
			Columns:  []string{"country"},
			Rows:     []map[string]any{{"country": "PL"}},
			RowCount: 1,
			Plan:     "SEQ_SCAN events",
			Elapsed:  12 * time.Millisecond,
		},
	}
	r := New(testGate(), engine, nil)

	result, err := r.Run(context.Background(), Request{SQL: "SELECT country FROM events", RequestID: "req-1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if engine.gotRequest.SQL != "SELECT country FROM events LIMIT 200" {
		t.Fatalf("executed SQL = %q", engine.gotRequest.SQL)
	}
	if engine.gotRequest.HardRowCeiling != 10000 {
		t.Fatalf("HardRowCeiling = %d", engine.gotRequest.HardRowCeiling)
	}
	if engine.gotRequest.Timeout != 8*time.Second {
		t.Fatalf("Timeout = %s", engine.gotRequest.Timeout)
	}
	if result.SQL != "SELECT country FROM events LIMIT 200" {
		t.Fatalf("result SQL = %q", result.SQL)
	}
	if result.Plan != "SEQ_SCAN events" || result.RowCount != 1 || result.Truncated {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunReturnsRejectionWithoutExecuting(t *testing.T) {
	engine := &fakeEngine{}
	r := New(testGate(), engine, nil)

	_, err := r.Run(context.Background(), Request{SQL: "DROP TABLE events"})
	var rejection *gate.RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("Run() error = %v, want *gate.RejectionError", err)
	}
	if rejection.Kind != gate.RejectForbiddenKeyword {
		t.Fatalf("Kind = %s", rejection.Kind)
	}
	if engine.gotRequest.SQL != "" {
		t.Fatal("engine must not be called for rejected statements")
	}
}

func TestRunPropagatesExecutionFailure(t *testing.T) {
	execErr := &query.ExecError{
		Kind:    query.FailureTimeout,
		Detail:  "query exceeded 8s timeout",
		Elapsed: 8 * time.Second,
	}
	r := New(testGate(), &fakeEngine{err: execErr}, nil)

	_, err := r.Run(context.Background(), Request{SQL: "SELECT 1"})
	var failure *query.ExecError
	if !errors.As(err, &failure) {
		t.Fatalf("Run() error = %v, want *query.ExecError", err)
	}
	if failure.Kind != query.FailureTimeout {
		t.Fatalf("Kind = %s", failure.Kind)
	}
}
