// Package index provides the ranked full-text index over entry names.
//
// An Index is a single-writer structure: additions and deletions are staged
// and become visible only when Commit publishes a new immutable Reader.
// Readers from earlier commits keep answering queries against their own
// snapshot, so a search generation can hold one for its whole lifetime.
package index

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/lexandro/volindex-mcp/entry"
)

var (
	ErrWriterBusy   = errors.New("index writer busy")
	ErrCommitFailed = errors.New("index commit failed")
	ErrInvalidQuery = errors.New("invalid query")
)

// compactMin is the tombstone count below which commits never compact.
const compactMin = 4096

type stagedOp struct {
	seg     *Segment
	deletes *roaring64.Bitmap
}

// Index is the writer side of the full-text index.
type Index struct {
	busy    atomic.Bool
	current atomic.Pointer[Reader]

	// writer state, touched only while busy is held
	docs     []doc
	byRecord map[uint64]uint32
	tombs    *roaring.Bitmap
	name     termTable
	ext      termTable
	live     uint64
	totalLen uint64
	version  uint64

	staged []stagedOp
}

// New creates an empty index with an empty committed reader.
func New() *Index {
	ix := &Index{
		byRecord: make(map[uint64]uint32),
		tombs:    roaring.New(),
		name:     newTermTable(),
		ext:      newTermTable(),
	}
	ix.current.Store(&Reader{tombs: roaring.New()})
	return ix
}

func (ix *Index) acquire() error {
	if !ix.busy.CompareAndSwap(false, true) {
		return ErrWriterBusy
	}
	return nil
}

func (ix *Index) release() { ix.busy.Store(false) }

// Reader returns the most recently committed reader.
func (ix *Index) Reader() *Reader { return ix.current.Load() }

// AddEntries analyzes and stages entries. Entries whose record id is already
// indexed replace the earlier document at commit.
func (ix *Index) AddEntries(entries []entry.Entry) error {
	return ix.AddSegment(Analyze(entries))
}

// AddSegment stages a segment produced by Analyze.
func (ix *Index) AddSegment(seg *Segment) error {
	if err := ix.acquire(); err != nil {
		return err
	}
	defer ix.release()
	if seg != nil && seg.Len() > 0 {
		ix.staged = append(ix.staged, stagedOp{seg: seg})
	}
	return nil
}

// Delete stages removal of the given record ids. Unknown ids are ignored.
func (ix *Index) Delete(recordIDs ...uint64) error {
	if err := ix.acquire(); err != nil {
		return err
	}
	defer ix.release()
	if len(recordIDs) > 0 {
		ix.staged = append(ix.staged, stagedOp{deletes: roaring64.BitmapOf(recordIDs...)})
	}
	return nil
}

// Pending reports whether uncommitted work is staged.
func (ix *Index) Pending() bool { return len(ix.staged) > 0 }

// Rollback discards all staged work.
func (ix *Index) Rollback() error {
	if err := ix.acquire(); err != nil {
		return err
	}
	defer ix.release()
	ix.staged = nil
	return nil
}

// Commit applies staged work in the order it was staged and publishes a new
// Reader. When the term dictionary cannot be built the staged work is kept
// and ErrCommitFailed is returned; the previous reader stays current.
func (ix *Index) Commit() (*Reader, error) {
	if err := ix.acquire(); err != nil {
		return nil, err
	}
	defer ix.release()

	if len(ix.staged) == 0 {
		return ix.current.Load(), nil
	}

	nameNew := ix.name.pending(ix.staged, func(a *analyzedDoc) []string {
		out := make([]string, len(a.terms))
		for i, t := range a.terms {
			out[i] = t.term
		}
		return out
	})
	extNew := ix.ext.pending(ix.staged, extTerms)

	nameKeys := mergeKeys(ix.name.keys, nameNew.order)
	nameFST, err := buildFST(nameKeys, nameNew.slot(ix.name.slots))
	if err != nil {
		return nil, fmt.Errorf("%w: name terms: %v", ErrCommitFailed, err)
	}
	extKeys := mergeKeys(ix.ext.keys, extNew.order)
	extFST, err := buildFST(extKeys, extNew.slot(ix.ext.slots))
	if err != nil {
		return nil, fmt.Errorf("%w: extension terms: %v", ErrCommitFailed, err)
	}

	// from here on the commit cannot fail
	ix.name.grow(nameNew, nameKeys)
	ix.ext.grow(extNew, extKeys)
	ix.tombs = ix.tombs.Clone()
	for _, op := range ix.staged {
		if op.deletes != nil {
			it := op.deletes.Iterator()
			for it.HasNext() {
				ix.remove(it.Next())
			}
			continue
		}
		for i := range op.seg.docs {
			ix.insert(&op.seg.docs[i])
		}
	}
	ix.staged = nil

	if card := ix.tombs.GetCardinality(); card >= compactMin && card > ix.live {
		if err := ix.compact(); err != nil {
			return nil, err
		}
		nameFST, extFST = ix.name.fst, ix.ext.fst
	}

	ix.version++
	r := &Reader{
		version:  ix.version,
		docs:     ix.docs[:len(ix.docs):len(ix.docs)],
		tombs:    ix.tombs,
		name:     termView{fst: nameFST, postings: slices.Clip(ix.name.postings)},
		ext:      termView{fst: extFST, postings: slices.Clip(ix.ext.postings)},
		live:     ix.live,
		totalLen: ix.totalLen,
	}
	ix.name.fst, ix.ext.fst = nameFST, extFST
	ix.current.Store(r)
	return r, nil
}

func extTerms(a *analyzedDoc) []string {
	if a.doc.Ext == "" {
		return nil
	}
	return []string{a.doc.Ext}
}

func (ix *Index) remove(recordID uint64) {
	n, ok := ix.byRecord[recordID]
	if !ok {
		return
	}
	delete(ix.byRecord, recordID)
	ix.tombs.Add(n)
	ix.live--
	ix.totalLen -= uint64(ix.docs[n].Length)
}

func (ix *Index) insert(a *analyzedDoc) {
	ix.remove(a.doc.RecordID)

	n := uint32(len(ix.docs))
	ix.docs = append(ix.docs, a.doc)
	ix.byRecord[a.doc.RecordID] = n
	ix.live++
	ix.totalLen += uint64(a.doc.Length)

	for _, t := range a.terms {
		ix.name.add(t.term, posting{doc: n, tf: t.tf})
	}
	if a.doc.Ext != "" {
		ix.ext.add(a.doc.Ext, posting{doc: n, tf: 1})
	}
}

// compact rewrites the writer state from live documents only, dropping
// tombstoned postings. Readers published earlier are unaffected.
func (ix *Index) compact() error {
	live := make([]analyzedDoc, 0, ix.live)
	for n, d := range ix.docs {
		if !ix.tombs.Contains(uint32(n)) {
			live = append(live, reanalyze(d))
		}
	}

	ix.docs = nil
	ix.byRecord = make(map[uint64]uint32, len(live))
	ix.tombs = roaring.New()
	ix.name = newTermTable()
	ix.ext = newTermTable()
	ix.live, ix.totalLen = 0, 0

	ix.staged = []stagedOp{{seg: &Segment{docs: live}}}
	nameNew := ix.name.pending(ix.staged, func(a *analyzedDoc) []string {
		out := make([]string, len(a.terms))
		for i, t := range a.terms {
			out[i] = t.term
		}
		return out
	})
	extNew := ix.ext.pending(ix.staged, extTerms)
	ix.staged = nil

	nameKeys := mergeKeys(nil, nameNew.order)
	nameFST, err := buildFST(nameKeys, nameNew.slot(ix.name.slots))
	if err != nil {
		return fmt.Errorf("%w: compacting name terms: %v", ErrCommitFailed, err)
	}
	extKeys := mergeKeys(nil, extNew.order)
	extFST, err := buildFST(extKeys, extNew.slot(ix.ext.slots))
	if err != nil {
		return fmt.Errorf("%w: compacting extension terms: %v", ErrCommitFailed, err)
	}
	ix.name.grow(nameNew, nameKeys)
	ix.ext.grow(extNew, extKeys)
	for i := range live {
		ix.insert(&live[i])
	}
	ix.name.fst, ix.ext.fst = nameFST, extFST
	return nil
}

// newTerms holds the slots assigned to terms first seen in a commit.
type newTerms struct {
	slots map[string]uint32
	order []string
}

func (n newTerms) slot(existing map[string]uint32) func(string) uint32 {
	return func(k string) uint32 {
		if s, ok := existing[k]; ok {
			return s
		}
		return n.slots[k]
	}
}

// pending assigns slots to the terms of staged segments that the table has
// not seen, in order of first appearance.
func (t *termTable) pending(staged []stagedOp, terms func(*analyzedDoc) []string) newTerms {
	n := newTerms{slots: make(map[string]uint32)}
	next := uint32(len(t.postings))
	for _, op := range staged {
		if op.seg == nil {
			continue
		}
		for i := range op.seg.docs {
			for _, term := range terms(&op.seg.docs[i]) {
				if _, ok := t.slots[term]; ok {
					continue
				}
				if _, ok := n.slots[term]; ok {
					continue
				}
				n.slots[term] = next
				n.order = append(n.order, term)
				next++
			}
		}
	}
	return n
}

// grow registers new terms and copies the postings table so that readers
// holding the previous table never observe this commit.
func (t *termTable) grow(n newTerms, keys []string) {
	postings := make([][]posting, len(t.postings)+len(n.order))
	copy(postings, t.postings)
	t.postings = postings
	for term, s := range n.slots {
		t.slots[term] = s
	}
	t.keys = keys
}

func (t *termTable) add(term string, p posting) {
	s := t.slots[term]
	t.postings[s] = append(t.postings[s], p)
}
