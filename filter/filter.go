// Package filter provides the membership filter used to reject queries that
// cannot match any name in a generation.
//
// A Filter never returns a false negative: if MightContain reports false the
// token was never inserted. Its false-positive rate is bounded by the target
// rate it was sized for, and grows (without ever producing false negatives)
// when more items are inserted than planned.
package filter

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"

	"github.com/lexandro/volindex-mcp/tokens"
)

// DefaultFalsePositiveRate is the target rate used when none is configured.
const DefaultFalsePositiveRate = 0.001

const (
	minBits   = 64
	maxHashes = 16
)

var (
	ErrParamsMismatch  = errors.New("filter: parameters differ")
	ErrVersionMismatch = errors.New("filter: unsupported blob version")
	ErrCorrupt         = errors.New("filter: corrupt blob")
)

// Params fixes the shape of a filter. Filters built with equal Params can be
// combined with Union, so shards built in parallel must share one value.
type Params struct {
	Bits   uint64 // bit-array length, a multiple of 64
	Hashes uint32 // number of bit positions per item
}

// NewParams derives optimal parameters for the expected item count and
// target false-positive rate:
//
//	m = -n*ln(p) / (ln 2)^2
//	k = (m/n) * ln 2
func NewParams(expectedItems int, falsePositiveRate float64) Params {
	if expectedItems <= 0 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = DefaultFalsePositiveRate
	}
	n := float64(expectedItems)
	m := -n * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)

	bits := (uint64(math.Ceil(m)) + 63) / 64 * 64
	if bits < minBits {
		bits = minBits
	}
	k := uint32(math.Ceil(float64(bits) / n * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > maxHashes {
		k = maxHashes
	}
	return Params{Bits: bits, Hashes: k}
}

// Filter is a Bloom filter over folded name tokens. Insert and Union must
// not run concurrently with other calls; once sealed into a generation a
// filter is only read.
type Filter struct {
	params Params
	bits   *bitset.BitSet
	count  atomic.Uint64
}

// New creates an empty filter with the given parameters.
func New(p Params) *Filter {
	if p.Bits < minBits {
		p.Bits = minBits
	}
	p.Bits = (p.Bits + 63) / 64 * 64
	if p.Hashes < 1 {
		p.Hashes = 1
	}
	if p.Hashes > maxHashes {
		p.Hashes = maxHashes
	}
	return &Filter{params: p, bits: bitset.New(uint(p.Bits))}
}

// Build creates an empty filter sized for expectedItems at the target rate.
func Build(expectedItems int, falsePositiveRate float64) *Filter {
	return New(NewParams(expectedItems, falsePositiveRate))
}

// Params returns the filter's shape.
func (f *Filter) Params() Params { return f.params }

// Count returns the number of Insert calls recorded, including merged shards.
func (f *Filter) Count() uint64 { return f.count.Load() }

// Insert adds a token verbatim.
func (f *Filter) Insert(token string) {
	h1, h2 := hashes(token)
	for i := uint64(0); i < uint64(f.params.Hashes); i++ {
		f.bits.Set(uint((h1 + i*h2) % f.params.Bits))
	}
	f.count.Add(1)
}

// MightContain reports whether token may have been inserted.
func (f *Filter) MightContain(token string) bool {
	h1, h2 := hashes(token)
	for i := uint64(0); i < uint64(f.params.Hashes); i++ {
		if !f.bits.Test(uint((h1 + i*h2) % f.params.Bits)) {
			return false
		}
	}
	return true
}

// InsertName inserts everything a name query may look up: the folded whole
// name, each letter/digit sub-token of at least three runes, the extension,
// and the trigrams of every sub-token.
func (f *Filter) InsertName(name string) {
	for _, tok := range NameTokens(name) {
		f.Insert(tok)
	}
}

// NameTokens returns the tokens InsertName inserts for name. Callers size
// filters by summing len(NameTokens) over a generation.
func NameTokens(name string) []string {
	folded := tokens.Fold(name)
	out := []string{folded}
	for _, sub := range tokens.SubTokens(folded) {
		out = append(out, sub)
		out = append(out, tokens.Grams(sub, tokens.MinSubTokenLen)...)
	}
	if ext := tokens.Extension(folded); ext != "" {
		out = append(out, ext)
	}
	return out
}

// MightContainSubstring reports whether some inserted name may contain s.
// It returns false only when a letter/digit run of s that is at least three
// runes long has a trigram that was never inserted. Queries without such a
// run cannot be pruned and always pass.
func (f *Filter) MightContainSubstring(s string) bool {
	for _, sub := range tokens.SubTokens(s) {
		for _, g := range tokens.Grams(sub, tokens.MinSubTokenLen) {
			if !f.MightContain(g) {
				return false
			}
		}
	}
	return true
}

// Union ORs other into f. Both filters must share the same Params.
func (f *Filter) Union(other *Filter) error {
	if f.params != other.params {
		return fmt.Errorf("union %+v with %+v: %w", f.params, other.params, ErrParamsMismatch)
	}
	f.bits.InPlaceUnion(other.bits)
	f.count.Add(other.count.Load())
	return nil
}

// Clone returns an independent copy of f.
func (f *Filter) Clone() *Filter {
	c := &Filter{params: f.params, bits: f.bits.Clone()}
	c.count.Store(f.count.Load())
	return c
}

// FillRatio returns the fraction of set bits.
func (f *Filter) FillRatio() float64 {
	return float64(f.bits.Count()) / float64(f.params.Bits)
}

// EstimatedFalsePositiveRate estimates the current rate from the insert count:
// (1 - e^(-k*n/m))^k.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	n := float64(f.count.Load())
	if n == 0 {
		return 0
	}
	k := float64(f.params.Hashes)
	return math.Pow(1-math.Exp(-k*n/float64(f.params.Bits)), k)
}

// SizeBytes returns the size of the bit array in bytes.
func (f *Filter) SizeBytes() int { return int(f.params.Bits / 8) }

// hashes returns the two hashes combined by double hashing. h2 is forced odd.
func hashes(s string) (uint64, uint64) {
	h1 := xxhash.Sum64String(s)
	// splitmix64 finalizer
	h2 := h1 + 0x9e3779b97f4a7c15
	h2 = (h2 ^ (h2 >> 30)) * 0xbf58476d1ce4e5b9
	h2 = (h2 ^ (h2 >> 27)) * 0x94d049bb133111eb
	h2 ^= h2 >> 31
	return h1, h2 | 1
}
