// Package needle defines the on-disk header layout and in-memory
// descriptor for one stored blob in a haystack volume file.
package needle

import "encoding/binary"

// HeaderSize is the fixed size, in bytes, of one on-disk NeedleFlags
// record: an 8-byte id, an 8-byte size, and a 1-byte deleted flag, packed
// with no padding, little-endian.
const HeaderSize = 17

const (
	offsetID   = 0
	offsetSize = 8

	// IsDeletedOffset is the byte offset of the isDeleted flag within a
	// header, exposed so Volume.Delete can rewrite that single byte
	// in place without re-encoding the whole header.
	IsDeletedOffset = 16
)

// Flags is the fixed-size on-disk header that precedes every needle's
// payload bytes.
type Flags struct {
	ID        uint64
	Size      uint64
	IsDeleted bool
}

// NewFlags builds a live (non-deleted) header for a needle of the given
// id and size.
func NewFlags(id, size uint64) Flags {
	return Flags{ID: id, Size: size}
}

// Encode writes the header into buf, which must be at least HeaderSize
// bytes long.
func (f Flags) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[offsetID:], f.ID)
	binary.LittleEndian.PutUint64(buf[offsetSize:], f.Size)
	if f.IsDeleted {
		buf[IsDeletedOffset] = 1
	} else {
		buf[IsDeletedOffset] = 0
	}
}

// Decode parses a header out of buf, which must be at least HeaderSize
// bytes long.
func Decode(buf []byte) Flags {
	return Flags{
		ID:        binary.LittleEndian.Uint64(buf[offsetID:]),
		Size:      binary.LittleEndian.Uint64(buf[offsetSize:]),
		IsDeleted: buf[IsDeletedOffset] != 0,
	}
}

// Needle is the in-memory address and expected header of one on-disk
// record. It carries no ownership of the payload bytes themselves.
type Needle struct {
	HaystackID uint64
	Offset     uint64
	Flags      Flags
}

// New builds a Needle descriptor for a record about to be (or already)
// written at haystackID/offset.
func New(haystackID, offset, needleID, size uint64) Needle {
	return Needle{
		HaystackID: haystackID,
		Offset:     offset,
		Flags:      NewFlags(needleID, size),
	}
}
