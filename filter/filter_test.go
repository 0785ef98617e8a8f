package filter

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewParams(t *testing.T) {
	p := NewParams(1_000_000, 0.01)
	assert.Zero(t, p.Bits%64)
	// about 9.59 bits per item and 7 hashes at 1%
	assert.InDelta(t, 9_585_059, float64(p.Bits), 128)
	assert.Equal(t, uint32(7), p.Hashes)

	tiny := NewParams(0, 0)
	assert.Equal(t, uint64(minBits), tiny.Bits)
	assert.LessOrEqual(t, tiny.Hashes, uint32(maxHashes))
	assert.GreaterOrEqual(t, tiny.Hashes, uint32(1))
}

func Test_Filter_NoFalseNegatives(t *testing.T) {
	f := Build(10_000, DefaultFalsePositiveRate)
	for i := 0; i < 10_000; i++ {
		f.Insert(fmt.Sprintf("token-%d", i))
	}
	for i := 0; i < 10_000; i++ {
		require.True(t, f.MightContain(fmt.Sprintf("token-%d", i)), "token-%d", i)
	}
	assert.Equal(t, uint64(10_000), f.Count())
}

func Test_Filter_FalsePositiveRate(t *testing.T) {
	const n = 20_000
	const target = 0.01
	f := Build(n, target)
	for i := 0; i < n; i++ {
		f.Insert(fmt.Sprintf("in-%d", i))
	}

	const lookups = 100_000
	hits := 0
	for i := 0; i < lookups; i++ {
		if f.MightContain(fmt.Sprintf("out-%d", i)) {
			hits++
		}
	}
	rate := float64(hits) / lookups
	assert.LessOrEqual(t, rate, 2*target, "observed rate %f", rate)
	assert.InDelta(t, target, f.EstimatedFalsePositiveRate(), target)
}

func Test_Filter_Overfilled(t *testing.T) {
	f := Build(10, 0.01)
	for i := 0; i < 1000; i++ {
		f.Insert(fmt.Sprintf("x%d", i))
	}
	for i := 0; i < 1000; i++ {
		require.True(t, f.MightContain(fmt.Sprintf("x%d", i)))
	}
	assert.Greater(t, f.EstimatedFalsePositiveRate(), 0.5)
}

func Test_Filter_InsertName(t *testing.T) {
	f := Build(100, DefaultFalsePositiveRate)
	f.InsertName("QuarterlyReport_2024.XLSX")

	assert.True(t, f.MightContain("quarterlyreport_2024.xlsx"))
	assert.True(t, f.MightContain("quarterlyreport"))
	assert.True(t, f.MightContain("2024"))
	assert.True(t, f.MightContain("xlsx"))

	assert.True(t, f.MightContainSubstring("report"))
	assert.True(t, f.MightContainSubstring("Quarter"))
	assert.True(t, f.MightContainSubstring("ly"))
	assert.False(t, f.MightContainSubstring("zebra"))
}

func Test_Filter_SubstringNoFalseNegatives(t *testing.T) {
	names := []string{"report.pdf", "notes.txt", "report_final.pdf", "Ünïcödé-Dätä.bin"}
	f := Build(200, DefaultFalsePositiveRate)
	for _, n := range names {
		f.InsertName(n)
	}
	for _, n := range names {
		runes := []rune(n)
		for i := 0; i < len(runes); i++ {
			for j := i + 1; j <= len(runes); j++ {
				sub := string(runes[i:j])
				require.True(t, f.MightContainSubstring(sub), "substring %q of %q", sub, n)
			}
		}
	}
}

func Test_Filter_Union(t *testing.T) {
	p := NewParams(1000, 0.01)
	a, b := New(p), New(p)
	a.Insert("alpha")
	b.Insert("beta")

	require.NoError(t, a.Union(b))
	assert.True(t, a.MightContain("alpha"))
	assert.True(t, a.MightContain("beta"))
	assert.Equal(t, uint64(2), a.Count())

	other := Build(5, 0.2)
	err := a.Union(other)
	assert.True(t, errors.Is(err, ErrParamsMismatch))
}

func Test_Filter_Clone(t *testing.T) {
	f := Build(100, 0.01)
	f.Insert("one")
	c := f.Clone()
	c.Insert("two")

	assert.True(t, c.MightContain("one"))
	assert.Equal(t, uint64(1), f.Count())
	assert.Equal(t, uint64(2), c.Count())
}

func Test_Filter_RoundTrip(t *testing.T) {
	f := Build(500, 0.01)
	for i := 0; i < 500; i++ {
		f.InsertName(fmt.Sprintf("file_%03d.txt", i))
	}
	blob, err := f.MarshalBinary()
	require.NoError(t, err)

	g, err := Unmarshal(blob)
	require.NoError(t, err)
	assert.Equal(t, f.Params(), g.Params())
	assert.Equal(t, f.Count(), g.Count())

	again, err := g.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, blob, again)

	for i := 0; i < 500; i++ {
		assert.True(t, g.MightContain(fmt.Sprintf("file_%03d.txt", i)))
	}
}

func Test_Unmarshal_Errors(t *testing.T) {
	f := Build(10, 0.01)
	blob, err := f.MarshalBinary()
	require.NoError(t, err)

	_, err = Unmarshal(blob[:10])
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = Unmarshal(blob[:len(blob)-8])
	assert.True(t, errors.Is(err, ErrCorrupt))

	bad := append([]byte(nil), blob...)
	bad[0] = 'X'
	_, err = Unmarshal(bad)
	assert.True(t, errors.Is(err, ErrCorrupt))

	future := append([]byte(nil), blob...)
	future[4] = 99
	_, err = Unmarshal(future)
	assert.True(t, errors.Is(err, ErrVersionMismatch))
}
