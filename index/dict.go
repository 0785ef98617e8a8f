package index

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/blevesearch/vellum"
	"github.com/blevesearch/vellum/levenshtein"
)

// maxExpansions caps the number of terms a prefix or fuzzy clause expands to.
const maxExpansions = 256

type posting struct {
	doc uint32
	tf  uint16
}

// termTable is the writer-side dictionary of one field.
type termTable struct {
	slots    map[string]uint32
	keys     []string // sorted
	postings [][]posting
	fst      *vellum.FST
}

func newTermTable() termTable {
	return termTable{slots: make(map[string]uint32)}
}

// termView is the immutable dictionary a Reader searches.
type termView struct {
	fst      *vellum.FST
	postings [][]posting
}

// buildFST encodes sorted keys with their slot numbers.
func buildFST(keys []string, slot func(string) uint32) (*vellum.FST, error) {
	var buf bytes.Buffer
	b, err := vellum.New(&buf, nil)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := b.Insert([]byte(k), uint64(slot(k))); err != nil {
			return nil, fmt.Errorf("inserting term %q: %w", k, err)
		}
	}
	if err := b.Close(); err != nil {
		return nil, err
	}
	return vellum.Load(buf.Bytes())
}

// mergeKeys merges sorted existing keys with unsorted additions.
func mergeKeys(existing, added []string) []string {
	if len(added) == 0 {
		return existing
	}
	sorted := slices.Clone(added)
	slices.Sort(sorted)
	out := make([]string, 0, len(existing)+len(sorted))
	i, j := 0, 0
	for i < len(existing) && j < len(sorted) {
		if existing[i] < sorted[j] {
			out = append(out, existing[i])
			i++
		} else {
			out = append(out, sorted[j])
			j++
		}
	}
	out = append(out, existing[i:]...)
	return append(out, sorted[j:]...)
}

func (v termView) lookup(term string) []posting {
	if v.fst == nil {
		return nil
	}
	slot, ok, err := v.fst.Get([]byte(term))
	if err != nil || !ok {
		return nil
	}
	return v.postings[slot]
}

// expandPrefix returns the postings of every term starting with prefix.
func (v termView) expandPrefix(prefix string) [][]posting {
	if v.fst == nil {
		return nil
	}
	it, err := v.fst.Iterator([]byte(prefix), prefixEnd([]byte(prefix)))
	return v.collect(it, err)
}

// expandFuzzy returns the postings of every term within the given edit
// distance of term.
func (v termView) expandFuzzy(term string, distance uint8) ([][]posting, error) {
	if v.fst == nil {
		return nil, nil
	}
	lb, err := levenshteinBuilder(distance)
	if err != nil {
		return nil, err
	}
	dfa, err := lb.BuildDfa(term, distance)
	if err != nil {
		return nil, err
	}
	it, err := v.fst.Search(dfa, nil, nil)
	return v.collect(it, err), nil
}

func (v termView) collect(it *vellum.FSTIterator, err error) [][]posting {
	var out [][]posting
	for err == nil && len(out) < maxExpansions {
		_, slot := it.Current()
		out = append(out, v.postings[slot])
		err = it.Next()
	}
	return out
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

var (
	levenshteinOnce     [3]sync.Once
	levenshteinBuilders [3]*levenshtein.LevenshteinAutomatonBuilder
	levenshteinErrs     [3]error
)

// levenshteinBuilder returns the shared automaton builder for a distance.
// Builders are expensive to construct and safe to reuse.
func levenshteinBuilder(distance uint8) (*levenshtein.LevenshteinAutomatonBuilder, error) {
	if distance == 0 || int(distance) >= len(levenshteinBuilders) {
		return nil, errors.New("unsupported edit distance")
	}
	levenshteinOnce[distance].Do(func() {
		levenshteinBuilders[distance], levenshteinErrs[distance] =
			levenshtein.NewLevenshteinAutomatonBuilder(distance, false)
	})
	return levenshteinBuilders[distance], levenshteinErrs[distance]
}
