package index

import (
	"cmp"
	"container/heap"
	"context"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

// DefaultLimit is the number of hits returned when no limit is given.
const DefaultLimit = 50

// cancelCheckEvery is how many candidates are scored between context checks.
const cancelCheckEvery = 4096

// Hit is one ranked search result.
type Hit struct {
	RecordID  uint64
	Name      string
	Extension string
	Size      uint64
	Score     float64
}

// Reader is an immutable view of the index at one commit. It is safe for
// concurrent use.
type Reader struct {
	version  uint64
	docs     []doc
	tombs    *roaring.Bitmap
	name     termView
	ext      termView
	live     uint64
	totalLen uint64
}

// Version returns the commit sequence number; the empty reader is 0.
func (r *Reader) Version() uint64 { return r.version }

// DocCount returns the number of live documents.
func (r *Reader) DocCount() uint64 { return r.live }

// TermCount returns the number of distinct name terms.
func (r *Reader) TermCount() int { return len(r.name.postings) }

// Search evaluates query and returns up to limit hits ordered by score
// descending, then record id ascending.
func (r *Reader) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pq, err := parseQuery(query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if r.live == 0 {
		return nil, nil
	}

	scores := make(map[uint32]float64)
	var required, optional, excluded []*roaring.Bitmap
	var phrases [][]string
	var excludedPhrases [][]string

	for _, c := range pq.clauses {
		if c.kind == phraseClause && c.occur == mustNot {
			excludedPhrases = append(excludedPhrases, c.words)
			continue
		}
		docs, err := r.evaluate(c, scores)
		if err != nil {
			return nil, err
		}
		switch c.occur {
		case must:
			required = append(required, docs)
			if c.kind == phraseClause {
				phrases = append(phrases, c.words)
			}
		case should:
			optional = append(optional, docs)
		case mustNot:
			excluded = append(excluded, docs)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates *roaring.Bitmap
	switch {
	case len(required) > 0:
		candidates = required[0].Clone()
		for _, bm := range required[1:] {
			candidates.And(bm)
		}
	case len(optional) > 0:
		candidates = roaring.FastOr(optional...)
	default:
		candidates = roaring.New()
		candidates.AddRange(0, uint64(len(r.docs)))
	}
	candidates.AndNot(r.tombs)
	for _, bm := range excluded {
		candidates.AndNot(bm)
	}

	top := &hitHeap{}
	it := candidates.Iterator()
	for i := 0; it.HasNext(); i++ {
		if i%cancelCheckEvery == cancelCheckEvery-1 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		n := it.Next()
		d := &r.docs[n]
		if !r.accept(d, pq.sizes, phrases, excludedPhrases) {
			continue
		}
		h := Hit{RecordID: d.RecordID, Name: d.Name, Extension: d.Ext, Size: d.Size, Score: scores[n]}
		if top.Len() < limit {
			heap.Push(top, h)
		} else if hitLess((*top)[0], h) {
			(*top)[0] = h
			heap.Fix(top, 0)
		}
	}

	out := make([]Hit, top.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(top).(Hit)
	}
	return out, nil
}

func (r *Reader) accept(d *doc, sizes []sizeRange, phrases, excludedPhrases [][]string) bool {
	for _, s := range sizes {
		if !s.contains(d.Size) {
			return false
		}
	}
	for _, words := range phrases {
		if !hasPhrase(d.Folded, words) {
			return false
		}
	}
	for _, words := range excludedPhrases {
		if hasPhrase(d.Folded, words) {
			return false
		}
	}
	return true
}

// evaluate returns the documents matching c and adds their BM25
// contribution to scores. Excluded clauses are not scored.
func (r *Reader) evaluate(c clause, scores map[uint32]float64) (*roaring.Bitmap, error) {
	view := r.name
	if c.field == fieldExt {
		view = r.ext
	}

	switch c.kind {
	case phraseClause:
		var result *roaring.Bitmap
		for _, w := range c.words {
			bm := r.score(view.lookup(w), nil)
			if result == nil {
				result = bm
			} else {
				result.And(bm)
			}
		}
		if c.occur != mustNot {
			r.addScores(result, c.words, view, scores)
		}
		return result, nil

	case prefixClause:
		return r.scoreExpansions(view.expandPrefix(c.term), c.occur, scores), nil

	case fuzzyClause:
		lists, err := view.expandFuzzy(c.term, c.fuzziness)
		if err != nil {
			return nil, invalid("fuzzy term %q: %v", c.term, err)
		}
		return r.scoreExpansions(lists, c.occur, scores), nil

	default:
		list := view.lookup(c.term)
		if c.occur == mustNot {
			return r.score(list, nil), nil
		}
		return r.score(list, scores), nil
	}
}

// scoreExpansions scores each document by its best expanded term.
func (r *Reader) scoreExpansions(lists [][]posting, occ occur, scores map[uint32]float64) *roaring.Bitmap {
	result := roaring.New()
	if occ == mustNot {
		for _, list := range lists {
			result.Or(r.score(list, nil))
		}
		return result
	}
	best := make(map[uint32]float64)
	for _, list := range lists {
		idf := r.idf(r.docFreq(list))
		for _, p := range list {
			s := r.bm25(idf, p)
			if s > best[p.doc] {
				best[p.doc] = s
			}
			result.Add(p.doc)
		}
	}
	for n, s := range best {
		scores[n] += s
	}
	return result
}

// score collects the documents of a posting list and, when scores is not
// nil, adds their BM25 contribution.
func (r *Reader) score(list []posting, scores map[uint32]float64) *roaring.Bitmap {
	bm := roaring.New()
	idf := r.idf(r.docFreq(list))
	for _, p := range list {
		bm.Add(p.doc)
		if scores != nil {
			scores[p.doc] += r.bm25(idf, p)
		}
	}
	return bm
}

// addScores scores the phrase words for documents in docs only.
func (r *Reader) addScores(docs *roaring.Bitmap, words []string, view termView, scores map[uint32]float64) {
	for _, w := range words {
		list := view.lookup(w)
		idf := r.idf(r.docFreq(list))
		for _, p := range list {
			if docs.Contains(p.doc) {
				scores[p.doc] += r.bm25(idf, p)
			}
		}
	}
}

// docFreq counts the postings of list that belong to live documents.
// Replaced and deleted documents keep their postings until compaction.
func (r *Reader) docFreq(list []posting) int {
	if r.tombs.IsEmpty() {
		return len(list)
	}
	df := 0
	for _, p := range list {
		if !r.tombs.Contains(p.doc) {
			df++
		}
	}
	return df
}

func (r *Reader) idf(df int) float64 {
	n := float64(r.live)
	d := float64(df)
	return math.Log(1 + (n-d+0.5)/(d+0.5))
}

func (r *Reader) bm25(idf float64, p posting) float64 {
	avg := float64(r.totalLen) / float64(r.live)
	if avg == 0 {
		avg = 1
	}
	tf := float64(p.tf)
	dl := float64(r.docs[p.doc].Length)
	return idf * tf * (k1 + 1) / (tf + k1*(1-b+b*dl/avg))
}

// hitLess orders a before b when a ranks lower.
func hitLess(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.RecordID > b.RecordID
}

// hitHeap is a min-heap on rank, holding the best hits seen so far.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return hitLess(h[i], h[j]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// CompareHits orders hits by score descending, then record id ascending.
func CompareHits(a, b Hit) int {
	if a.Score != b.Score {
		if a.Score > b.Score {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.RecordID, b.RecordID)
}
