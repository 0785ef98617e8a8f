package index

import (
	"slices"
	"strings"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/tokens"
)

// doc is the stored form of one indexed entry.
type doc struct {
	RecordID uint64
	Name     string
	Folded   string
	Ext      string
	Size     uint64
	Length   uint32 // number of name terms, for length normalization
}

type termFreq struct {
	term string
	tf   uint16
}

type analyzedDoc struct {
	doc   doc
	terms []termFreq // name field, sorted by term
}

// Segment is a batch of analyzed entries ready to be added to an index.
// Segments are produced without touching the index, so shards of a large
// feed can be analyzed in parallel and added in order afterwards.
type Segment struct {
	docs []analyzedDoc
}

// Len returns the number of documents in the segment.
func (s *Segment) Len() int { return len(s.docs) }

// Analyze tokenizes entries into a segment.
func Analyze(entries []entry.Entry) *Segment {
	seg := &Segment{docs: make([]analyzedDoc, 0, len(entries))}
	for _, e := range entries {
		seg.docs = append(seg.docs, analyze(e))
	}
	return seg
}

func analyze(e entry.Entry) analyzedDoc {
	words := tokens.Words(e.Name)
	slices.Sort(words)

	var terms []termFreq
	for _, w := range words {
		if n := len(terms); n > 0 && terms[n-1].term == w {
			if terms[n-1].tf < ^uint16(0) {
				terms[n-1].tf++
			}
			continue
		}
		terms = append(terms, termFreq{term: w, tf: 1})
	}

	d := doc{
		RecordID: e.RecordID,
		Name:     e.Name,
		Folded:   tokens.Fold(e.Name),
		Size:     e.Size,
		Length:   uint32(len(words)),
	}
	if !e.IsDirectory {
		d.Ext = tokens.Extension(e.Name)
	}
	return analyzedDoc{doc: d, terms: terms}
}

// reanalyze rebuilds the analyzed form of a stored doc.
func reanalyze(d doc) analyzedDoc {
	a := analyze(entry.Entry{RecordID: d.RecordID, Name: d.Name, Size: d.Size})
	a.doc.Ext = d.Ext
	return a
}

// hasPhrase reports whether the folded name contains the folded phrase,
// ignoring separators between words.
func hasPhrase(folded string, words []string) bool {
	if len(words) == 1 {
		return strings.Contains(folded, words[0])
	}
	runs := tokens.Runs(folded)
	for i := 0; i+len(words) <= len(runs); i++ {
		if slices.Equal(runs[i:i+len(words)], words) {
			return true
		}
	}
	return strings.Contains(folded, strings.Join(words, " "))
}
