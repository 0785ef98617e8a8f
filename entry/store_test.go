package entry

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dir(id, parent uint64, name string) Entry {
	return Entry{RecordID: id, ParentID: parent, Name: name, IsDirectory: true}
}

func file(id, parent uint64, name string, size uint64) Entry {
	return Entry{RecordID: id, ParentID: parent, Name: name, Size: size}
}

func sampleTree() []Entry {
	return []Entry{
		dir(10, RootID, "docs"),
		dir(11, 10, "reports"),
		file(12, 11, "report.pdf", 2048),
		file(13, 10, "notes.txt", 100),
		file(14, RootID, "readme.md", 10),
	}
}

func Test_Store_BuildAndGet(t *testing.T) {
	entries := sampleTree()
	s, err := Build(entries)
	require.NoError(t, err)

	assert.Equal(t, len(entries), s.Len())
	for _, e := range entries {
		got, ok := s.Get(e.RecordID)
		require.True(t, ok, "record %d", e.RecordID)
		assert.Equal(t, e, got)
	}
	_, ok := s.Get(999)
	assert.False(t, ok)
	assert.Empty(t, s.Warnings())
}

func Test_Store_BuildRandomUniqueIDs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := rng.Perm(5000)
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		parent := uint64(0)
		if id > 0 {
			parent = uint64(rng.Intn(id)) + 1
		}
		entries = append(entries, Entry{RecordID: uint64(id) + 1, ParentID: parent, Name: fmt.Sprintf("n%d", id)})
	}

	s, err := Build(entries)
	require.NoError(t, err)
	for _, e := range entries {
		got, ok := s.Get(e.RecordID)
		require.True(t, ok)
		require.Equal(t, e, got)
	}
}

func Test_Store_DuplicateRecordID(t *testing.T) {
	_, err := Build([]Entry{file(1, RootID, "a", 1), file(1, RootID, "b", 2)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateRecordID))
}

func Test_Store_ChildrenOf(t *testing.T) {
	s, err := Build(sampleTree())
	require.NoError(t, err)

	assert.Equal(t, []uint64{11, 13}, s.ChildrenOf(10))
	assert.Equal(t, []uint64{12}, s.ChildrenOf(11))
	assert.Equal(t, []uint64{10, 14}, s.ChildrenOf(RootID))
	assert.Empty(t, s.ChildrenOf(12))
	assert.Nil(t, s.ChildrenOf(404))
}

func Test_Store_FullPath(t *testing.T) {
	s, err := Build(sampleTree())
	require.NoError(t, err)

	p, err := s.FullPath(12)
	require.NoError(t, err)
	assert.Equal(t, "docs/reports/report.pdf", p)

	// second call goes through the memoized directory prefix
	p, err = s.FullPath(12)
	require.NoError(t, err)
	assert.Equal(t, "docs/reports/report.pdf", p)

	p, err = s.FullPath(14)
	require.NoError(t, err)
	assert.Equal(t, "readme.md", p)

	_, err = s.FullPath(404)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func Test_Store_FullPath_Cycle(t *testing.T) {
	s, err := Build([]Entry{
		dir(1, 2, "a"),
		dir(2, 1, "b"),
		file(3, 1, "leaf.txt", 1),
	})
	require.NoError(t, err)

	kinds := map[uint64]WarningKind{}
	for _, w := range s.Warnings() {
		kinds[w.RecordID] = w.Kind
	}
	assert.Equal(t, WarnCycle, kinds[1])
	assert.Equal(t, WarnCycle, kinds[2])
	assert.NotContains(t, kinds, uint64(3))

	p, err := s.FullPath(3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycleDetected))
	assert.Equal(t, "b/a/leaf.txt", p)

	var pathErr *PathError
	require.True(t, errors.As(err, &pathErr))
	assert.Equal(t, uint64(3), pathErr.RecordID)
	assert.Equal(t, uint64(1), pathErr.At)

	_, err = s.FullPath(1)
	assert.True(t, errors.Is(err, ErrCycleDetected))
}

func Test_Store_FullPath_SelfParent(t *testing.T) {
	s, err := Build([]Entry{dir(5, 5, "root")})
	require.NoError(t, err)

	p, err := s.FullPath(5)
	assert.True(t, errors.Is(err, ErrCycleDetected))
	assert.Equal(t, "root", p)
}

func Test_Store_FullPath_LongChain(t *testing.T) {
	var entries []Entry
	for i := uint64(1); i <= 200; i++ {
		entries = append(entries, dir(i, i-1, "d"))
	}
	// close the chain into a cycle well past the inline visited limit
	entries[0].ParentID = 200

	s, err := Build(entries)
	require.NoError(t, err)

	_, err = s.FullPath(100)
	assert.True(t, errors.Is(err, ErrCycleDetected))
}

func Test_Store_FullPath_DanglingParent(t *testing.T) {
	s, err := Build([]Entry{
		dir(1, 77, "orphaned"),
		file(2, 1, "child.txt", 5),
	})
	require.NoError(t, err)

	require.Len(t, s.Warnings(), 1)
	assert.Equal(t, Warning{Kind: WarnDanglingParent, RecordID: 1}, s.Warnings()[0])

	p, err := s.FullPath(2)
	assert.True(t, errors.Is(err, ErrDanglingParent))
	assert.Equal(t, "orphaned/child.txt", p)

	got, ok := s.Get(2)
	require.True(t, ok)
	assert.Equal(t, "child.txt", got.Name)
}

func Test_Store_Aggregates(t *testing.T) {
	s, err := Build(sampleTree())
	require.NoError(t, err)

	assert.Equal(t, 3, s.FileCount())
	assert.Equal(t, 2, s.DirCount())
	assert.Equal(t, uint64(2158), s.TotalSize())
}

func Test_Store_Largest(t *testing.T) {
	s, err := Build([]Entry{
		file(1, RootID, "a", 10),
		file(2, RootID, "b", 300),
		file(3, RootID, "c", 300),
		file(4, RootID, "d", 50),
		dir(5, RootID, "big-dir"),
	})
	require.NoError(t, err)

	got := s.Largest(3)
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{2, 3, 4}, []uint64{got[0].RecordID, got[1].RecordID, got[2].RecordID})
	assert.Nil(t, s.Largest(0))
}

func Test_Store_ByExtension(t *testing.T) {
	s, err := Build([]Entry{
		file(1, RootID, "a.PDF", 1),
		file(2, RootID, "b.pdf", 1),
		file(3, RootID, "c.txt", 1),
		dir(4, RootID, "folder.pdf"),
	})
	require.NoError(t, err)

	got := s.ByExtension(".pdf")
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].RecordID)
	assert.Equal(t, uint64(2), got[1].RecordID)
}

func Test_Timestamp(t *testing.T) {
	var absent Timestamp
	assert.False(t, absent.Valid())
	_, ok := absent.Time()
	assert.False(t, ok)

	ts := Timestamp(1_700_000_000_000_000_000)
	tm, ok := ts.Time()
	require.True(t, ok)
	assert.Equal(t, ts, TimestampOf(tm))
}
