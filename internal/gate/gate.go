// Package gate decides whether an untrusted SQL string may run against the
// warehouse. It classifies the statement, applies the allow/deny policy, and
// rewrites the admitted text so a row cap is always present. The gate never
// talks to the database; execution belongs to the query engine.
package gate

// Admitted is a statement that passed the policy gate, rewritten so its
// outermost LIMIT is at most the policy's hard row ceiling.
type Admitted struct {
	SQL      string
	RowLimit int
}

type Gate struct {
	policy Policy
}

func New(policy Policy) *Gate {
	return &Gate{policy: policy}
}

func (g *Gate) Policy() Policy {
	return g.policy
}

// Admit turns raw text into either an execution-ready statement or a
// *RejectionError with a typed reason. Any other error shape is a bug.
func (g *Gate) Admit(raw string) (Admitted, error) {
	classified := Classify(raw, g.policy.DeniedKeywords)
	if rejection := g.policy.Validate(classified); rejection != nil {
		return Admitted{}, rejection
	}

	rewritten := rewriteLimit(classified, g.policy)
	limit := g.policy.DefaultRowLimit
	if classified.HasLimit && classified.LimitValue <= g.policy.HardRowCeiling {
		limit = classified.LimitValue
	} else if classified.HasLimit {
		limit = g.policy.HardRowCeiling
	}
	return Admitted{SQL: rewritten, RowLimit: limit}, nil
}
