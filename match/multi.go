package match

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/tokens"
)

// MultiOptions configures a MultiMatcher.
type MultiOptions struct {
	// CaseInsensitive folds patterns and text before matching. Match offsets
	// then index the folded text, which equals the input for ASCII names.
	CaseInsensitive bool
}

// Match is one pattern occurrence. End is exclusive.
type Match struct {
	PatternIndex int
	Start        int
	End          int
}

// EntryMatches pairs an entry with the matches found in its name.
type EntryMatches struct {
	Entry   entry.Entry
	Matches []Match
}

// MultiMatcher finds many literal patterns in one pass using a dense
// Aho-Corasick automaton. Matching is leftmost-first: among matches that
// start at the leftmost position, the pattern listed first wins, and
// scanning resumes at the end of the chosen match.
//
// A MultiMatcher is immutable after construction and safe for concurrent use.
type MultiMatcher struct {
	opts MultiOptions

	// delta[s*256+b] is the next state from s on byte b.
	delta []int32
	// term[s] is the slot of the pattern ending at s, or -1.
	term []int32
	// dict[s] is the nearest proper suffix state of s that is terminal, or -1.
	dict []int32

	lengths []int // pattern byte length per slot
	indices []int // caller's pattern index per slot
}

// NewMultiMatcher builds a matcher. Duplicate patterns (after folding when
// case-insensitive) are merged and keep the index of their first occurrence.
func NewMultiMatcher(patterns []string, opts MultiOptions) (*MultiMatcher, error) {
	if len(patterns) == 0 {
		return nil, ErrEmptyPatternSet
	}
	m := &MultiMatcher{opts: opts}

	seen := make(map[string]struct{}, len(patterns))
	var keys []string
	for i, p := range patterns {
		if p == "" {
			return nil, fmt.Errorf("pattern %d: %w", i, ErrEmptyPattern)
		}
		if opts.CaseInsensitive {
			p = tokens.Fold(p)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		keys = append(keys, p)
		m.lengths = append(m.lengths, len(p))
		m.indices = append(m.indices, i)
	}

	m.build(keys)
	return m, nil
}

func (m *MultiMatcher) newState() int32 {
	s := int32(len(m.term))
	m.term = append(m.term, -1)
	m.dict = append(m.dict, -1)
	m.delta = append(m.delta, make([]int32, 256)...)
	for b := 0; b < 256; b++ {
		m.delta[int(s)*256+b] = -1
	}
	return s
}

func (m *MultiMatcher) build(keys []string) {
	m.newState()
	for slot, k := range keys {
		s := int32(0)
		for i := 0; i < len(k); i++ {
			next := m.delta[int(s)*256+int(k[i])]
			if next < 0 {
				next = m.newState()
				m.delta[int(s)*256+int(k[i])] = next
			}
			s = next
		}
		m.term[s] = int32(slot)
	}

	// breadth-first failure computation, folding failures into delta so the
	// automaton becomes a complete DFA
	fail := make([]int32, len(m.term))
	queue := make([]int32, 0, len(m.term))
	for b := 0; b < 256; b++ {
		next := m.delta[b]
		if next < 0 {
			m.delta[b] = 0
			continue
		}
		fail[next] = 0
		queue = append(queue, next)
	}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		f := fail[s]
		if m.term[f] >= 0 {
			m.dict[s] = f
		} else {
			m.dict[s] = m.dict[f]
		}
		for b := 0; b < 256; b++ {
			i := int(s)*256 + b
			next := m.delta[i]
			if next < 0 {
				m.delta[i] = m.delta[int(f)*256+b]
				continue
			}
			fail[next] = m.delta[int(f)*256+b]
			queue = append(queue, next)
		}
	}
}

// Patterns returns the number of distinct patterns.
func (m *MultiMatcher) Patterns() int { return len(m.lengths) }

// CaseInsensitive reports whether the matcher folds its input.
func (m *MultiMatcher) CaseInsensitive() bool { return m.opts.CaseInsensitive }

// FindAll returns the leftmost-first, non-overlapping matches in text,
// ordered by start offset.
func (m *MultiMatcher) FindAll(text string) []Match {
	if m.opts.CaseInsensitive {
		text = tokens.Fold(text)
	}
	return m.FindAllFolded(text)
}

// FindAllFolded is FindAll for text that is already folded (or for
// case-sensitive matchers, any text).
func (m *MultiMatcher) FindAllFolded(text string) []Match {
	var all []Match
	s := int32(0)
	for i := 0; i < len(text); i++ {
		s = m.delta[int(s)*256+int(text[i])]
		for t := s; t >= 0; t = m.dict[t] {
			if slot := m.term[t]; slot >= 0 {
				end := i + 1
				all = append(all, Match{PatternIndex: m.indices[slot], Start: end - m.lengths[slot], End: end})
			}
		}
	}
	if len(all) == 0 {
		return nil
	}

	slices.SortFunc(all, func(a, b Match) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.PatternIndex, b.PatternIndex)
	})
	out := all[:0]
	next := 0
	for _, mt := range all {
		if mt.Start < next {
			continue
		}
		out = append(out, mt)
		next = mt.End
	}
	return out
}

// IsMatch reports whether any pattern occurs in text.
func (m *MultiMatcher) IsMatch(text string) bool {
	if m.opts.CaseInsensitive {
		text = tokens.Fold(text)
	}
	s := int32(0)
	for i := 0; i < len(text); i++ {
		s = m.delta[int(s)*256+int(text[i])]
		if m.term[s] >= 0 || m.dict[s] >= 0 {
			return true
		}
	}
	return false
}

// SearchEntries returns the entries whose names match at least one pattern,
// in input order, with their matches.
func (m *MultiMatcher) SearchEntries(entries []entry.Entry) []EntryMatches {
	var out []EntryMatches
	for _, e := range entries {
		if found := m.FindAll(e.Name); len(found) > 0 {
			out = append(out, EntryMatches{Entry: e, Matches: found})
		}
	}
	return out
}

// Coverage returns the number of bytes covered by matches.
func Coverage(matches []Match) int {
	n := 0
	for _, mt := range matches {
		n += mt.End - mt.Start
	}
	return n
}
