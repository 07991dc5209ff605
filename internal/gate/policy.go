package gate

import (
	"fmt"
	"strings"
	"time"
)

// RejectionKind is the machine-readable reason a statement was refused.
type RejectionKind string

const (
	RejectMultipleStatements RejectionKind = "MULTIPLE_STATEMENTS"
	RejectForbiddenKeyword   RejectionKind = "FORBIDDEN_KEYWORD"
	RejectNotAReadStatement  RejectionKind = "NOT_A_READ_STATEMENT"
)

// RejectionError is a policy rejection. It is an expected, frequent outcome
// and is never logged as an error; callers relay the reason to the generator
// for a retry.
type RejectionError struct {
	Kind   RejectionKind
	Detail string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("statement rejected (%s): %s", e.Kind, e.Detail)
}

// Policy is the immutable safety snapshot for the process lifetime. It is
// built once at startup and shared read-only across concurrent requests.
type Policy struct {
	DeniedKeywords  map[string]struct{}
	MaxStatements   int
	DefaultRowLimit int
	HardRowCeiling  int
	QueryTimeout    time.Duration
}

// DefaultDeniedKeywords covers mutating, data-definition, and administrative
// verbs for the supported warehouses. The list is deliberately broad: a
// valid-but-unusual read statement getting rejected is acceptable, a mutating
// one getting through is not.
func DefaultDeniedKeywords() []string {
	return []string{
		"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "TRUNCATE",
		"GRANT", "REVOKE", "ATTACH", "DETACH", "COPY", "EXPORT", "IMPORT",
		"PRAGMA", "CALL", "EXEC", "EXECUTE", "MERGE", "VACUUM", "CHECKPOINT",
		"INSTALL", "LOAD", "SET", "RESET", "BEGIN", "COMMIT", "ROLLBACK",
	}
}

// NewPolicy normalizes keyword casing and applies defaults for unset limits.
func NewPolicy(denied []string, defaultRowLimit, hardRowCeiling int, queryTimeout time.Duration) Policy {
	if len(denied) == 0 {
		denied = DefaultDeniedKeywords()
	}
	set := make(map[string]struct{}, len(denied))
	for _, keyword := range denied {
		keyword = strings.ToUpper(strings.TrimSpace(keyword))
		if keyword != "" {
			set[keyword] = struct{}{}
		}
	}
	if defaultRowLimit <= 0 {
		defaultRowLimit = 200
	}
	if hardRowCeiling <= 0 {
		hardRowCeiling = 10000
	}
	if defaultRowLimit > hardRowCeiling {
		defaultRowLimit = hardRowCeiling
	}
	if queryTimeout <= 0 {
		queryTimeout = 8 * time.Second
	}
	return Policy{
		DeniedKeywords:  set,
		MaxStatements:   1,
		DefaultRowLimit: defaultRowLimit,
		HardRowCeiling:  hardRowCeiling,
		QueryTimeout:    queryTimeout,
	}
}

// Validate applies the rule set in order, first match wins. It is a pure
// function of its inputs: no state, no I/O, which is what keeps the gate
// auditable without a live database.
func (p Policy) Validate(c Classified) *RejectionError {
	if c.StatementCount != p.MaxStatements {
		return &RejectionError{
			Kind:   RejectMultipleStatements,
			Detail: fmt.Sprintf("expected exactly %d statement, got %d", p.MaxStatements, c.StatementCount),
		}
	}
	if c.DeniedToken != "" {
		return &RejectionError{Kind: RejectForbiddenKeyword, Detail: c.DeniedToken}
	}
	if c.Verb != VerbSelect && c.Verb != VerbWith {
		return &RejectionError{
			Kind:   RejectNotAReadStatement,
			Detail: "only SELECT statements and WITH chains ending in SELECT are allowed",
		}
	}
	return nil
}
