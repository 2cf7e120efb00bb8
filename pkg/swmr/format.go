package swmr

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Shadow-file wire format. All multi-byte fields are little-endian;
// both magic tags are literal 4-byte constants. Checksums are CRC-32C
// (Castagnoli), computed over all preceding bytes of the same block
// with the checksum field itself (and, for the header, nothing else)
// treated as zero.
const (
	headerMagic = "MDFH"
	indexMagic  = "MDFI"

	// headerSize is the fixed size of the header block in bytes. Padded
	// past the live fields (36 bytes) to leave room for future header
	// fields without breaking wire compatibility.
	headerSize = 64

	// entrySize is the on-disk size of one index entry: P, S, length,
	// chksum, each a little-endian uint32.
	entrySize = 16

	// indexBlockBase is the fixed portion of an index block: magic(4) +
	// tick(8) + num_entries(4), before the entries and the trailing
	// checksum(4).
	indexBlockBase = 16
)

// Header field offsets within the header block.
const (
	hOffMagic        = 0  // [4]byte
	hOffPageSize     = 4  // uint32
	hOffTick         = 8  // uint64
	hOffIndexOffset  = 16 // uint64
	hOffIndexLength  = 24 // uint64
	hOffChecksum     = 32 // uint32
	hOffReservedFrom = 36
)

// Index block field offsets, relative to the start of the block.
const (
	iOffMagic       = 0  // [4]byte
	iOffTick        = 4  // uint64
	iOffNumEntries  = 12 // uint32
	iOffEntriesFrom = indexBlockBase
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// header is the decoded form of the shadow-file header block.
type header struct {
	PageSize    uint32
	Tick        uint64
	IndexOffset uint64
	IndexLength uint64
}

// encode serializes the header to exactly headerSize bytes, computing
// and embedding the checksum.
func (h *header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[hOffMagic:], headerMagic)
	binary.LittleEndian.PutUint32(buf[hOffPageSize:], h.PageSize)
	binary.LittleEndian.PutUint64(buf[hOffTick:], h.Tick)
	binary.LittleEndian.PutUint64(buf[hOffIndexOffset:], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[hOffIndexLength:], h.IndexLength)

	crc := crc32.Checksum(buf[:hOffChecksum], crc32cTable)
	binary.LittleEndian.PutUint32(buf[hOffChecksum:], crc)
	return buf
}

// decodeHeader parses and validates a headerSize-byte header block,
// including its magic tag and checksum. A checksum mismatch or bad magic
// is treated as a torn or corrupt read by the caller, never as a hard
// failure here.
func decodeHeader(buf []byte) (header, bool) {
	if len(buf) < headerSize {
		return header{}, false
	}
	if string(buf[hOffMagic:hOffMagic+4]) != headerMagic {
		return header{}, false
	}

	storedCRC := binary.LittleEndian.Uint32(buf[hOffChecksum:])
	computedCRC := crc32.Checksum(buf[:hOffChecksum], crc32cTable)
	if storedCRC != computedCRC {
		return header{}, false
	}

	h := header{
		PageSize:    binary.LittleEndian.Uint32(buf[hOffPageSize:]),
		Tick:        binary.LittleEndian.Uint64(buf[hOffTick:]),
		IndexOffset: binary.LittleEndian.Uint64(buf[hOffIndexOffset:]),
		IndexLength: binary.LittleEndian.Uint64(buf[hOffIndexLength:]),
	}
	return h, true
}

// wireEntry is the fixed four-field on-disk representation of an Entry:
// P, S, length, chksum, each a little-endian uint32.
type wireEntry struct {
	P      uint32
	S      uint32
	Length uint32
	Chksum uint32
}

// encodeIndexBlock serializes an index block: magic, tick, num_entries,
// the entries themselves (already sorted ascending by P — callers
// enforce this, see index.go), and a trailing checksum.
func encodeIndexBlock(tick uint64, entries []wireEntry) ([]byte, error) {
	if len(entries) > 0xFFFFFFFF {
		return nil, fmt.Errorf("num_entries %d overflows uint32: %w", len(entries), ErrResourceExhausted)
	}

	size := indexBlockBase + len(entries)*entrySize + 4 // +4 trailing checksum
	buf := make([]byte, size)

	copy(buf[iOffMagic:], indexMagic)
	binary.LittleEndian.PutUint64(buf[iOffTick:], tick)
	binary.LittleEndian.PutUint32(buf[iOffNumEntries:], uint32(len(entries)))

	off := iOffEntriesFrom
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[off:], e.P)
		binary.LittleEndian.PutUint32(buf[off+4:], e.S)
		binary.LittleEndian.PutUint32(buf[off+8:], e.Length)
		binary.LittleEndian.PutUint32(buf[off+12:], e.Chksum)
		off += entrySize
	}

	crc := crc32.Checksum(buf[:off], crc32cTable)
	binary.LittleEndian.PutUint32(buf[off:], crc)
	return buf, nil
}

// decodeIndexBlock parses and validates an index block read from the
// shadow file. Returns ok=false on any structural problem (short read,
// bad magic, bad checksum) — the caller treats this as a torn read.
func decodeIndexBlock(buf []byte) (tick uint64, entries []wireEntry, ok bool) {
	if len(buf) < indexBlockBase+4 {
		return 0, nil, false
	}
	if string(buf[iOffMagic:iOffMagic+4]) != indexMagic {
		return 0, nil, false
	}

	numEntries := binary.LittleEndian.Uint32(buf[iOffNumEntries:])
	need := indexBlockBase + int(numEntries)*entrySize + 4
	if len(buf) < need {
		return 0, nil, false
	}

	storedCRC := binary.LittleEndian.Uint32(buf[need-4:])
	computedCRC := crc32.Checksum(buf[:need-4], crc32cTable)
	if storedCRC != computedCRC {
		return 0, nil, false
	}

	tick = binary.LittleEndian.Uint64(buf[iOffTick:])
	entries = make([]wireEntry, numEntries)
	off := iOffEntriesFrom
	for i := range entries {
		entries[i] = wireEntry{
			P:      binary.LittleEndian.Uint32(buf[off:]),
			S:      binary.LittleEndian.Uint32(buf[off+4:]),
			Length: binary.LittleEndian.Uint32(buf[off+8:]),
			Chksum: binary.LittleEndian.Uint32(buf[off+12:]),
		}
		off += entrySize
	}
	return tick, entries, true
}

// indexBlockSize returns the on-disk size of an index block holding n
// entries, matching encodeIndexBlock's layout.
func indexBlockSize(n int) int64 {
	return int64(indexBlockBase + n*entrySize + 4)
}

// imageChecksum computes the CRC-32C of a page image, used to populate
// an entry's Chksum field at write time and to validate it when
// re-reading.
func imageChecksum(image []byte) uint32 {
	return crc32.Checksum(image, crc32cTable)
}
