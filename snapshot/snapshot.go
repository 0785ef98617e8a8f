// Package snapshot persists generations so a restart can serve queries
// before the first rescan finishes.
//
// File layout:
//
//	magic "VISN" | version u16 | compression u8 | generation u64 |
//	created unix-nano i64 | payload size u64 | payload (compressed)
//
// The payload holds a uvarint entry count, the entries, and the
// length-prefixed membership filter blob.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lexandro/volindex-mcp/entry"
	"github.com/lexandro/volindex-mcp/filter"
)

// FormatVersion tags snapshot files.
const FormatVersion uint16 = 1

const headerSize = 4 + 2 + 1 + 8 + 8 + 8

var magic = [4]byte{'V', 'I', 'S', 'N'}

// maxPayload bounds the decompressed size accepted from a header.
const maxPayload = 1 << 36

var (
	ErrCorrupt         = errors.New("snapshot: corrupt file")
	ErrVersionMismatch = errors.New("snapshot: unsupported version")
	ErrNotFound        = errors.New("snapshot: not found")
)

// Snapshot is the persisted form of one generation.
type Snapshot struct {
	Generation uint64
	Created    time.Time
	Entries    []entry.Entry
	Filter     *filter.Filter // nil when the generation had none
}

const (
	flagDirectory = 1 << iota
)

// Encode writes s to w with the given compression.
func Encode(w io.Writer, s *Snapshot, c Compression) error {
	var body bytes.Buffer
	buf := make([]byte, binary.MaxVarintLen64)
	putU := func(v uint64) { body.Write(buf[:binary.PutUvarint(buf, v)]) }
	putI := func(v int64) { body.Write(buf[:binary.PutVarint(buf, v)]) }

	putU(uint64(len(s.Entries)))
	for _, e := range s.Entries {
		putU(e.RecordID)
		putU(e.ParentID)
		putU(e.Size)
		var flags byte
		if e.IsDirectory {
			flags |= flagDirectory
		}
		body.WriteByte(flags)
		putI(int64(e.Created))
		putI(int64(e.Modified))
		putI(int64(e.Accessed))
		putU(uint64(len(e.Name)))
		body.WriteString(e.Name)
	}
	if s.Filter != nil {
		blob, err := s.Filter.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encoding filter: %w", err)
		}
		putU(uint64(len(blob)))
		body.Write(blob)
	} else {
		putU(0)
	}

	raw := body.Bytes()
	payload, err := compress(raw, c)
	if errors.Is(err, errIncompressible) {
		payload, c = raw, CompressionNone
	} else if err != nil {
		return fmt.Errorf("compressing snapshot: %w", err)
	}

	var header [headerSize]byte
	copy(header[0:4], magic[:])
	binary.LittleEndian.PutUint16(header[4:6], FormatVersion)
	header[6] = byte(c)
	binary.LittleEndian.PutUint64(header[7:15], s.Generation)
	binary.LittleEndian.PutUint64(header[15:23], uint64(s.Created.UnixNano()))
	binary.LittleEndian.PutUint64(header[23:31], uint64(len(raw)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (*Snapshot, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrCorrupt, err)
	}
	if [4]byte(header[0:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(header[4:6]); v != FormatVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrVersionMismatch, v, FormatVersion)
	}
	c := Compression(header[6])
	s := &Snapshot{
		Generation: binary.LittleEndian.Uint64(header[7:15]),
		Created:    time.Unix(0, int64(binary.LittleEndian.Uint64(header[15:23]))),
	}
	rawSize := binary.LittleEndian.Uint64(header[23:31])
	if rawSize > maxPayload {
		return nil, fmt.Errorf("%w: payload size %d", ErrCorrupt, rawSize)
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	if c == CompressionLZ4 && rawSize > 255*uint64(len(payload))+16 {
		return nil, fmt.Errorf("%w: payload size %d", ErrCorrupt, rawSize)
	}
	raw, err := decompress(payload, c, rawSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if uint64(len(raw)) != rawSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorrupt, len(raw), rawSize)
	}

	if err := decodeBody(bufio.NewReader(bytes.NewReader(raw)), s, uint64(len(raw))); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeBody(br *bufio.Reader, s *Snapshot, size uint64) error {
	fail := func(what string, err error) error {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, what, err)
	}
	count, err := binary.ReadUvarint(br)
	if err != nil {
		return fail("entry count", err)
	}
	// every entry takes at least 8 bytes
	if count > size/8 {
		return fmt.Errorf("%w: entry count %d exceeds payload", ErrCorrupt, count)
	}

	s.Entries = make([]entry.Entry, count)
	for i := range s.Entries {
		e := &s.Entries[i]
		if e.RecordID, err = binary.ReadUvarint(br); err != nil {
			return fail("record id", err)
		}
		if e.ParentID, err = binary.ReadUvarint(br); err != nil {
			return fail("parent id", err)
		}
		if e.Size, err = binary.ReadUvarint(br); err != nil {
			return fail("size", err)
		}
		flags, err := br.ReadByte()
		if err != nil {
			return fail("flags", err)
		}
		e.IsDirectory = flags&flagDirectory != 0
		var ts [3]int64
		for j := range ts {
			if ts[j], err = binary.ReadVarint(br); err != nil {
				return fail("timestamp", err)
			}
		}
		e.Created, e.Modified, e.Accessed = entry.Timestamp(ts[0]), entry.Timestamp(ts[1]), entry.Timestamp(ts[2])
		n, err := binary.ReadUvarint(br)
		if err != nil || n > size {
			return fail("name length", err)
		}
		name := make([]byte, n)
		if _, err := io.ReadFull(br, name); err != nil {
			return fail("name", err)
		}
		e.Name = string(name)
	}

	n, err := binary.ReadUvarint(br)
	if err != nil || n > size {
		return fail("filter length", err)
	}
	if n == 0 {
		return nil
	}
	blob := make([]byte, n)
	if _, err := io.ReadFull(br, blob); err != nil {
		return fail("filter", err)
	}
	f, err := filter.Unmarshal(blob)
	if err != nil {
		return fmt.Errorf("%w: filter: %w", ErrCorrupt, err)
	}
	s.Filter = f
	return nil
}
