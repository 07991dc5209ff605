package gate

import "strconv"

// rewriteLimit guarantees that the statement carries an outermost LIMIT no
// larger than the policy's hard row ceiling:
//
//   - an existing limit at or under the ceiling passes through unchanged,
//   - an existing limit over the ceiling is clamped in place,
//   - a missing limit gets the default appended.
//
// Only the outermost clause is touched; a LIMIT inside a subquery changes
// result semantics and is never rewritten.
func rewriteLimit(c Classified, p Policy) string {
	if c.HasLimit {
		if c.LimitValue <= p.HardRowCeiling {
			return c.Statement
		}
		return c.Statement[:c.limitValueStart] +
			strconv.Itoa(p.HardRowCeiling) +
			c.Statement[c.limitValueEnd:]
	}
	limit := p.DefaultRowLimit
	if limit > p.HardRowCeiling {
		limit = p.HardRowCeiling
	}
	return c.Statement + " LIMIT " + strconv.Itoa(limit)
}
