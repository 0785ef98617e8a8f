package index

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"

	"github.com/lexandro/volindex-mcp/tokens"
)

type occur int

const (
	should occur = iota
	must
	mustNot
)

type field int

const (
	fieldName field = iota
	fieldExt
)

type clauseKind int

const (
	termClause clauseKind = iota
	prefixClause
	fuzzyClause
	phraseClause
)

type clause struct {
	occur     occur
	field     field
	kind      clauseKind
	term      string   // folded term for term/prefix/fuzzy clauses
	words     []string // folded words of a phrase
	fuzziness uint8
}

// sizeRange is an inclusive size interval.
type sizeRange struct {
	min, max uint64
}

func (r sizeRange) contains(n uint64) bool { return n >= r.min && n <= r.max }

type parsedQuery struct {
	clauses []clause
	sizes   []sizeRange
}

func (q *parsedQuery) positive() bool {
	for _, c := range q.clauses {
		if c.occur != mustNot {
			return true
		}
	}
	return false
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// parseQuery parses the query language:
//
//	word        optional term
//	+word       required term
//	-word       excluded term
//	"a b"       phrase: all words required, adjacent in the name
//	name:w      term in the name field (the default)
//	ext:pdf     extension equals pdf
//	repo*       prefix expansion
//	repord~     fuzzy expansion, edit distance 1 (or ~2)
//	size:>10MB  size filter; also >=, <, <=, =, and 1MB..2GB
func parseQuery(q string) (*parsedQuery, error) {
	raw, err := splitClauses(q)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, invalid("empty query")
	}

	pq := &parsedQuery{}
	for _, token := range raw {
		occ := should
		switch token[0] {
		case '+':
			occ, token = must, token[1:]
		case '-':
			occ, token = mustNot, token[1:]
		}
		if token == "" {
			return nil, invalid("dangling operator")
		}

		f := fieldName
		if i := strings.IndexByte(token, ':'); i > 0 && token[0] != '"' {
			switch strings.ToLower(token[:i]) {
			case "name":
			case "ext":
				f = fieldExt
			case "size":
				if occ == mustNot {
					return nil, invalid("size filters cannot be negated")
				}
				r, err := parseSizeRange(token[i+1:])
				if err != nil {
					return nil, err
				}
				pq.sizes = append(pq.sizes, r)
				continue
			default:
				return nil, invalid("unknown field %q", token[:i])
			}
			token = token[i+1:]
			if token == "" {
				return nil, invalid("empty %s clause", fieldLabel(f))
			}
		}

		clauses, err := parseClause(token, occ, f)
		if err != nil {
			return nil, err
		}
		pq.clauses = append(pq.clauses, clauses...)
	}

	if !pq.positive() && len(pq.sizes) == 0 {
		return nil, invalid("query has no positive clause")
	}
	return pq, nil
}

func fieldLabel(f field) string {
	if f == fieldExt {
		return "ext"
	}
	return "name"
}

func parseClause(token string, occ occur, f field) ([]clause, error) {
	if token[0] == '"' {
		if len(token) < 2 || token[len(token)-1] != '"' {
			return nil, invalid("unterminated phrase")
		}
		words := tokens.Runs(tokens.Fold(token[1 : len(token)-1]))
		if len(words) == 0 {
			return nil, invalid("empty phrase")
		}
		if occ == should {
			occ = must
		}
		return []clause{{occur: occ, field: f, kind: phraseClause, words: words}}, nil
	}

	kind := termClause
	var fuzziness uint8
	switch {
	case strings.HasSuffix(token, "*"):
		kind = prefixClause
		token = strings.TrimRight(token, "*")
	case strings.Contains(token, "~"):
		i := strings.LastIndexByte(token, '~')
		fuzziness = 1
		if digits := token[i+1:]; digits != "" {
			n, err := strconv.Atoi(digits)
			if err != nil || n < 1 || n > 2 {
				return nil, invalid("fuzziness %q must be 1 or 2", digits)
			}
			fuzziness = uint8(n)
		}
		kind = fuzzyClause
		token = token[:i]
	}

	if f == fieldExt {
		term := tokens.Fold(strings.TrimPrefix(token, "."))
		if term == "" {
			return nil, invalid("empty extension")
		}
		return []clause{{occur: occ, field: f, kind: kind, term: term, fuzziness: fuzziness}}, nil
	}

	runs := tokens.Runs(tokens.Fold(token))
	if len(runs) == 0 {
		return nil, invalid("clause %q has no searchable characters", token)
	}
	// modifiers apply to the last run; earlier runs are plain terms
	out := make([]clause, 0, len(runs))
	for i, run := range runs {
		c := clause{occur: occ, field: f, kind: termClause, term: run}
		if i == len(runs)-1 {
			c.kind, c.fuzziness = kind, fuzziness
		}
		out = append(out, c)
	}
	return out, nil
}

// splitClauses splits on whitespace outside double quotes.
func splitClauses(q string) ([]string, error) {
	var out []string
	var b strings.Builder
	quoted := false
	for _, r := range q {
		switch {
		case r == '"':
			quoted = !quoted
			b.WriteRune(r)
		case unicode.IsSpace(r) && !quoted:
			if b.Len() > 0 {
				out = append(out, b.String())
				b.Reset()
			}
		default:
			b.WriteRune(r)
		}
	}
	if quoted {
		return nil, invalid("unterminated phrase")
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out, nil
}

func parseSizeRange(expr string) (sizeRange, error) {
	full := sizeRange{min: 0, max: math.MaxUint64}
	if lo, hi, ok := strings.Cut(expr, ".."); ok {
		a, err := parseSize(lo)
		if err != nil {
			return full, err
		}
		b, err := parseSize(hi)
		if err != nil {
			return full, err
		}
		if a > b {
			return full, invalid("size range %q is empty", expr)
		}
		return sizeRange{min: a, max: b}, nil
	}

	for _, op := range []string{">=", "<=", ">", "<", "="} {
		rest, ok := strings.CutPrefix(expr, op)
		if !ok {
			continue
		}
		n, err := parseSize(rest)
		if err != nil {
			return full, err
		}
		switch op {
		case ">=":
			return sizeRange{min: n, max: math.MaxUint64}, nil
		case "<=":
			return sizeRange{min: 0, max: n}, nil
		case ">":
			if n == math.MaxUint64 {
				return full, invalid("size %q out of range", expr)
			}
			return sizeRange{min: n + 1, max: math.MaxUint64}, nil
		case "<":
			if n == 0 {
				return full, invalid("size %q matches nothing", expr)
			}
			return sizeRange{min: 0, max: n - 1}, nil
		default:
			return sizeRange{min: n, max: n}, nil
		}
	}

	n, err := parseSize(expr)
	if err != nil {
		return full, err
	}
	return sizeRange{min: n, max: n}, nil
}

func parseSize(s string) (uint64, error) {
	if s == "" {
		return 0, invalid("missing size")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, invalid("size %q: %v", s, err)
	}
	return n, nil
}
