package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexandro/volindex-mcp/entry"
)

func Test_FindAll(t *testing.T) {
	tests := []struct {
		name     string
		haystack string
		needle   string
		want     []int
	}{
		{"repeated", "abcabcabc", "abc", []int{0, 3, 6}},
		{"non-overlapping", "aaaa", "aa", []int{0, 2}},
		{"absent", "hello", "xyz", nil},
		{"needle longer", "ab", "abc", nil},
		{"single byte", "banana", "a", []int{1, 3, 5}},
		{"whole", "exact", "exact", []int{0}},
		{"multibyte", "Ärger Ärger", "Ärger", []int{0, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindAll([]byte(tt.haystack), []byte(tt.needle))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_FindAll_EmptyNeedle(t *testing.T) {
	_, err := FindAll([]byte("abc"), nil)
	assert.True(t, errors.Is(err, ErrEmptyPattern))

	_, err = NewFinder([]byte{})
	assert.True(t, errors.Is(err, ErrEmptyPattern))
}

func Test_Contains(t *testing.T) {
	assert.True(t, Contains([]byte("report.pdf"), []byte("port")))
	assert.False(t, Contains([]byte("report.pdf"), []byte("Port")))
	assert.False(t, Contains([]byte("report.pdf"), nil))
	assert.False(t, Contains(nil, []byte("a")))
}

func Test_Finder_Reuse(t *testing.T) {
	f, err := NewFinder([]byte("log"))
	require.NoError(t, err)
	assert.Equal(t, 3, f.Len())
	assert.True(t, f.ContainsString("catalog.db"))
	assert.True(t, f.Contains([]byte("log")))
	assert.False(t, f.ContainsString("lo"))
	assert.Equal(t, []int{0, 7}, f.FindAll([]byte("logbooklog")))
}

func Test_SearchEntries(t *testing.T) {
	entries := []entry.Entry{
		{RecordID: 1, Name: "report.pdf"},
		{RecordID: 2, Name: "notes.txt"},
		{RecordID: 3, Name: "report_final.pdf"},
	}

	got, err := SearchEntries(entries, "report", false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "report.pdf", got[0].Name)
	assert.Equal(t, "report_final.pdf", got[1].Name)

	got, err = SearchEntries(entries, "REPORT", false)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = SearchEntries(entries, "REPORT", true)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = SearchEntries(entries, "", false)
	assert.True(t, errors.Is(err, ErrEmptyPattern))
}

func Test_SearchEntries_UnicodeFold(t *testing.T) {
	entries := []entry.Entry{{RecordID: 1, Name: "ÄRGER.txt"}, {RecordID: 2, Name: "other"}}
	got, err := SearchEntries(entries, "ärger", false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].RecordID)
}
