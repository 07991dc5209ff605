package gate

import (
	"strconv"
	"strings"
)

// Verb is the leading keyword shape of a statement.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbSelect
	VerbWith
)

func (v Verb) String() string {
	switch v {
	case VerbSelect:
		return "SELECT"
	case VerbWith:
		return "WITH"
	default:
		return "OTHER_OR_UNKNOWN"
	}
}

// Classified is the derived view of one untrusted SQL string. It is built
// once per request from the comment-stripped, whitespace-collapsed text and
// discarded after validation. Statement holds the single normalized statement
// (without a trailing semicolon); rewriting and execution operate on it so
// that a stripped comment can never reintroduce a hidden token.
type Classified struct {
	Statement      string
	StatementCount int
	Verb           Verb
	DeniedToken    string
	HasLimit       bool
	LimitValue     int

	// byte offsets of the outermost LIMIT value inside Statement
	limitValueStart int
	limitValueEnd   int
}

// Classify never fails: unparseable input (unterminated quotes or comments)
// is conservatively classified as VerbUnknown, which the validator rejects.
func Classify(raw string, denied map[string]struct{}) Classified {
	normalized, literal, malformed := normalizeSQL(raw)

	segments := splitStatements(normalized, literal)
	classified := Classified{StatementCount: len(segments)}
	if len(segments) != 1 {
		return classified
	}

	stmt := segments[0]
	classified.Statement = stmt.text

	tokens := tokenize(stmt.text, stmt.literal)
	for _, token := range tokens {
		if _, ok := denied[strings.ToUpper(token.text)]; ok {
			classified.DeniedToken = strings.ToUpper(token.text)
			break
		}
	}

	if !malformed && len(tokens) > 0 {
		switch strings.ToUpper(tokens[0].text) {
		case "SELECT":
			classified.Verb = VerbSelect
		case "WITH":
			if cteChainEndsInSelect(tokens) {
				classified.Verb = VerbWith
			}
		}
	}

	if start, end, value, ok := outermostLimit(tokens); ok {
		classified.HasLimit = true
		classified.LimitValue = value
		classified.limitValueStart = start
		classified.limitValueEnd = end
	}

	return classified
}

// normalizeSQL strips line and block comments, collapses whitespace runs to a
// single space, and reports which bytes of the result sit inside string
// literals or quoted identifiers (quote characters included). The literal mask
// is what lets the keyword scan and statement splitting ignore quoted content.
func normalizeSQL(raw string) (string, []bool, bool) {
	var out strings.Builder
	var literal []bool
	malformed := false
	pendingSpace := false

	writeByte := func(b byte, inLiteral bool) {
		if pendingSpace && out.Len() > 0 {
			out.WriteByte(' ')
			literal = append(literal, false)
		}
		pendingSpace = false
		out.WriteByte(b)
		literal = append(literal, inLiteral)
	}

	i := 0
	for i < len(raw) {
		c := raw[i]
		switch {
		case c == '-' && i+1 < len(raw) && raw[i+1] == '-':
			// line comment
			for i < len(raw) && raw[i] != '\n' {
				i++
			}
			pendingSpace = true
		case c == '/' && i+1 < len(raw) && raw[i+1] == '*':
			end := strings.Index(raw[i+2:], "*/")
			if end < 0 {
				malformed = true
				i = len(raw)
				break
			}
			i += 2 + end + 2
			pendingSpace = true
		case c == '\'' || c == '"':
			quote := c
			writeByte(c, true)
			i++
			closed := false
			for i < len(raw) {
				writeByte(raw[i], true)
				if raw[i] == quote {
					// doubled quote is an escape, not a terminator
					if i+1 < len(raw) && raw[i+1] == quote {
						i++
						writeByte(raw[i], true)
						i++
						continue
					}
					closed = true
					i++
					break
				}
				i++
			}
			if !closed {
				malformed = true
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			pendingSpace = true
			i++
		default:
			writeByte(c, false)
			i++
		}
	}

	return out.String(), literal, malformed
}

type segment struct {
	text    string
	literal []bool
}

// splitStatements splits on semicolons outside quoting and drops empty
// segments, so a single trailing semicolon does not count as a second
// statement.
func splitStatements(normalized string, literal []bool) []segment {
	var segments []segment
	start := 0
	flush := func(end int) {
		text := normalized[start:end]
		mask := literal[start:end]
		for len(text) > 0 && text[0] == ' ' {
			text = text[1:]
			mask = mask[1:]
		}
		for len(text) > 0 && text[len(text)-1] == ' ' {
			text = text[:len(text)-1]
			mask = mask[:len(mask)-1]
		}
		if text != "" {
			segments = append(segments, segment{text: text, literal: mask})
		}
	}
	for i := 0; i < len(normalized); i++ {
		if normalized[i] == ';' && !literal[i] {
			flush(i)
			start = i + 1
		}
	}
	flush(len(normalized))
	return segments
}

type token struct {
	text  string
	start int
	end   int
	depth int
}

// tokenize extracts word tokens outside quoting together with their
// parenthesis depth. Word-boundary matching falls out of tokenization: an
// identifier like update_count is a single token and never matches UPDATE.
func tokenize(stmt string, literal []bool) []token {
	var tokens []token
	depth := 0
	i := 0
	for i < len(stmt) {
		if literal[i] {
			i++
			continue
		}
		c := stmt[i]
		switch {
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case isWordByte(c):
			start := i
			for i < len(stmt) && !literal[i] && isWordByte(stmt[i]) {
				i++
			}
			tokens = append(tokens, token{text: stmt[start:i], start: start, end: i, depth: depth})
		default:
			i++
		}
	}
	return tokens
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// cteChainEndsInSelect confirms that a WITH prologue leads into a SELECT and
// not into a mutating statement smuggled after the CTE definitions. It walks
// the depth-0 word tokens: every CTE name is followed by AS, so the first
// depth-0 token not followed by AS is the main verb of the chain.
func cteChainEndsInSelect(tokens []token) bool {
	top := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.depth == 0 {
			top = append(top, strings.ToUpper(t.text))
		}
	}
	if len(top) == 0 || top[0] != "WITH" {
		return false
	}
	i := 1
	if i < len(top) && top[i] == "RECURSIVE" {
		i++
	}
	for i < len(top) {
		if i+1 < len(top) && top[i+1] == "AS" {
			// CTE name, skip AS and optional materialization hint
			i += 2
			if i < len(top) && top[i] == "NOT" {
				i++
			}
			if i < len(top) && top[i] == "MATERIALIZED" {
				i++
			}
			continue
		}
		return top[i] == "SELECT"
	}
	return false
}

// outermostLimit finds the last depth-0 LIMIT clause with an integer value.
// A LIMIT inside a subquery sits at depth > 0 and does not bound the outer
// result set, so it is ignored.
func outermostLimit(tokens []token) (start, end, value int, ok bool) {
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].depth != 0 || !strings.EqualFold(tokens[i].text, "LIMIT") {
			continue
		}
		if i+1 >= len(tokens) {
			return 0, 0, 0, false
		}
		next := tokens[i+1]
		parsed, err := strconv.Atoi(next.text)
		if err != nil || parsed < 0 {
			return 0, 0, 0, false
		}
		return next.start, next.end, parsed, true
	}
	return 0, 0, 0, false
}
