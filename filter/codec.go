package filter

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// FormatVersion tags serialized filters. Any change to hashing or to how
// parameters are derived must bump it; older blobs are then rejected rather
// than reinterpreted.
const FormatVersion uint16 = 1

var magic = [4]byte{'V', 'I', 'B', 'F'}

// headerSize: magic(4) + version(2) + bits(8) + hashes(4) + count(8)
const headerSize = 26

// MarshalBinary encodes the filter as
// magic | version | bit length | hash count | insert count | words (LE).
func (f *Filter) MarshalBinary() ([]byte, error) {
	words := f.bits.Bytes()
	buf := make([]byte, headerSize+8*len(words))
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], FormatVersion)
	binary.LittleEndian.PutUint64(buf[6:14], f.params.Bits)
	binary.LittleEndian.PutUint32(buf[14:18], f.params.Hashes)
	binary.LittleEndian.PutUint64(buf[18:26], f.count.Load())
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[headerSize+8*i:], w)
	}
	return buf, nil
}

// Unmarshal decodes a blob produced by MarshalBinary.
func Unmarshal(data []byte) (*Filter, error) {
	if len(data) < headerSize || [4]byte(data[0:4]) != magic {
		return nil, ErrCorrupt
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != FormatVersion {
		return nil, fmt.Errorf("blob version %d, want %d: %w", v, FormatVersion, ErrVersionMismatch)
	}
	p := Params{
		Bits:   binary.LittleEndian.Uint64(data[6:14]),
		Hashes: binary.LittleEndian.Uint32(data[14:18]),
	}
	count := binary.LittleEndian.Uint64(data[18:26])

	if p.Bits < minBits || p.Bits%64 != 0 || p.Hashes < 1 || p.Hashes > maxHashes {
		return nil, ErrCorrupt
	}
	nWords := p.Bits / 64
	if uint64(len(data)-headerSize) != nWords*8 {
		return nil, ErrCorrupt
	}
	words := make([]uint64, nWords)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(data[headerSize+8*i:])
	}

	f := &Filter{params: p, bits: bitset.From(words)}
	f.count.Store(count)
	return f, nil
}
