package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/filter"
)

func sample() *Snapshot {
	var entries []entry.Entry
	f := filter.Build(200, filter.DefaultFalsePositiveRate)
	for i := 1; i <= 200; i++ {
		e := entry.Entry{
			RecordID: uint64(i),
			ParentID: uint64(i / 10),
			Name:     fmt.Sprintf("file_%03d.dat", i),
			Size:     uint64(i * 1000),
			Modified: entry.Timestamp(int64(i) * 1_000_000_000),
		}
		if i%10 == 0 {
			e.IsDirectory = true
			e.Size = 0
			e.Created = -5
		}
		entries = append(entries, e)
		f.InsertName(e.Name)
	}
	return &Snapshot{
		Generation: 7,
		Created:    time.Unix(1_700_000_000, 42),
		Entries:    entries,
		Filter:     f,
	}
}

func Test_Snapshot_RoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			s := sample()
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, s, c))

			got, err := Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, s.Generation, got.Generation)
			assert.True(t, s.Created.Equal(got.Created))
			assert.Equal(t, s.Entries, got.Entries)

			require.NotNil(t, got.Filter)
			want, err := s.Filter.MarshalBinary()
			require.NoError(t, err)
			have, err := got.Filter.MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, want, have)
		})
	}
}

func Test_Snapshot_NoFilter(t *testing.T) {
	s := &Snapshot{Generation: 1, Created: time.Now(), Entries: []entry.Entry{{RecordID: 1, Name: "a"}}}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, s, CompressionZSTD))
	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Nil(t, got.Filter)
	assert.Equal(t, s.Entries, got.Entries)
}

func Test_Snapshot_Corrupt(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sample(), CompressionZSTD))
	data := buf.Bytes()

	_, err := Decode(bytes.NewReader(data[:10]))
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = Decode(bytes.NewReader(data[:len(data)-20]))
	assert.True(t, errors.Is(err, ErrCorrupt))

	bad := bytes.Clone(data)
	bad[0] = 'X'
	_, err = Decode(bytes.NewReader(bad))
	assert.True(t, errors.Is(err, ErrCorrupt))

	future := bytes.Clone(data)
	future[4] = 9
	_, err = Decode(bytes.NewReader(future))
	assert.True(t, errors.Is(err, ErrVersionMismatch))

	huge := bytes.Clone(data)
	for i := 23; i < 31; i++ {
		huge[i] = 0xff
	}
	_, err = Decode(bytes.NewReader(huge))
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func Test_Store_SaveLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	st := NewStore(fs, "/data", CompressionLZ4)

	_, err := st.Load("C:")
	assert.True(t, errors.Is(err, ErrNotFound))

	s := sample()
	require.NoError(t, st.Save("C:", s))
	assert.Equal(t, "/data/C_.snap", st.Path("C:"))

	exists, err := afero.Exists(fs, "/data/C_.snap.tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := st.Load("C:")
	require.NoError(t, err)
	assert.Equal(t, s.Entries, got.Entries)

	require.NoError(t, st.Remove("C:"))
	require.NoError(t, st.Remove("C:"))
	_, err = st.Load("C:")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func Test_ParseCompression(t *testing.T) {
	tests := map[string]Compression{"": CompressionZSTD, "ZSTD": CompressionZSTD, "lz4": CompressionLZ4, "none": CompressionNone}
	for in, want := range tests {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}
