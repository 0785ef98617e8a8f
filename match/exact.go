// Package match implements literal substring search over entry names: a
// single-needle finder and a multi-pattern automaton.
package match

import (
	"bytes"
	"errors"
	"strings"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/tokens"
)

var (
	ErrEmptyPattern    = errors.New("empty pattern")
	ErrEmptyPatternSet = errors.New("empty pattern set")
)

// Finder searches for one needle. It is immutable and safe for concurrent use.
type Finder struct {
	needle []byte
	str    string
}

// NewFinder prepares needle for repeated scans.
func NewFinder(needle []byte) (*Finder, error) {
	if len(needle) == 0 {
		return nil, ErrEmptyPattern
	}
	n := bytes.Clone(needle)
	return &Finder{needle: n, str: string(n)}, nil
}

// Len returns the needle length in bytes.
func (f *Finder) Len() int { return len(f.needle) }

// FindAll returns the start offsets of all non-overlapping occurrences in
// haystack, in increasing order. Scanning resumes after each match.
func (f *Finder) FindAll(haystack []byte) []int {
	var out []int
	pos := 0
	for pos+len(f.needle) <= len(haystack) {
		i := bytes.Index(haystack[pos:], f.needle)
		if i < 0 {
			break
		}
		out = append(out, pos+i)
		pos += i + len(f.needle)
	}
	return out
}

// Contains reports whether haystack holds the needle.
func (f *Finder) Contains(haystack []byte) bool {
	return bytes.Contains(haystack, f.needle)
}

// ContainsString is Contains for string haystacks.
func (f *Finder) ContainsString(haystack string) bool {
	return strings.Contains(haystack, f.str)
}

// FindAll returns the non-overlapping start offsets of needle in haystack.
func FindAll(haystack, needle []byte) ([]int, error) {
	f, err := NewFinder(needle)
	if err != nil {
		return nil, err
	}
	return f.FindAll(haystack), nil
}

// Contains reports whether needle occurs in haystack. An empty needle never
// matches, consistent with FindAll.
func Contains(haystack, needle []byte) bool {
	if len(needle) == 0 {
		return false
	}
	return bytes.Contains(haystack, needle)
}

// SearchEntries returns the entries whose name contains pattern, in input
// order. Without caseSensitive both sides are case folded.
func SearchEntries(entries []entry.Entry, pattern string, caseSensitive bool) ([]entry.Entry, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	if !caseSensitive {
		pattern = tokens.Fold(pattern)
	}
	var out []entry.Entry
	for _, e := range entries {
		name := e.Name
		if !caseSensitive {
			name = tokens.Fold(name)
		}
		if strings.Contains(name, pattern) {
			out = append(out, e)
		}
	}
	return out, nil
}
