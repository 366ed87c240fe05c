// Package volume implements the haystack append-only container file: a
// dense sequence of (header, payload) records with lazy deletion and
// full-scan recovery.
package volume

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/barnstore/barnstore/internal/needle"
)

// FilePrefix is the filename prefix for a volume's backing file: the
// volume id is appended directly, e.g. "haystack_3".
const FilePrefix = "haystack_"

var (
	// ErrNoFit is returned when a Volume is read-only, or a Write would
	// exceed its configured maximum size.
	ErrNoFit = errors.New("volume: no fit")

	// ErrBadNeedle is returned when a needle descriptor disagrees with
	// the on-disk header it points at, its offset is out of range, or
	// the on-disk record is tombstoned.
	ErrBadNeedle = errors.New("volume: bad needle")
)

// Volume owns one append-only backing file and the mutable state
// (currentSize, isReadOnly) that describes it. File I/O is positional
// (ReadAt/WriteAt), but all operations still acquire mu for their entire
// duration, so reads and writes on one volume are serialized.
type Volume struct {
	mu sync.Mutex

	id          uint64
	file        *os.File
	maxSize     uint64
	currentSize uint64
	isReadOnly  bool
}

// Create makes a new, empty Volume backed by a freshly truncated file
// named FilePrefix+id under dir.
func Create(dir string, id, maxSize uint64) (*Volume, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("volume %d: create data dir: %w", id, err)
	}
	path := filePath(dir, id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("volume %d: create %s: %w", id, path, err)
	}
	return &Volume{id: id, file: f, maxSize: maxSize}, nil
}

// Open recovers a Volume over an existing backing file. currentSize is
// set to the file's length and isReadOnly is derived from it.
func Open(dir string, id, maxSize uint64) (*Volume, error) {
	path := filePath(dir, id)
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("volume %d: open %s: %w", id, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("volume %d: stat %s: %w", id, path, err)
	}
	size := uint64(info.Size())
	return &Volume{
		id:          id,
		file:        f,
		maxSize:     maxSize,
		currentSize: size,
		isReadOnly:  size >= maxSize,
	}, nil
}

// OpenOrCreate opens an existing volume file if one is present, or
// creates a new empty one otherwise. It reports whether the volume was
// recovered from an existing file.
func OpenOrCreate(dir string, id, maxSize uint64) (v *Volume, recovered bool, err error) {
	path := filePath(dir, id)
	if _, statErr := os.Stat(path); statErr == nil {
		v, err = Open(dir, id, maxSize)
		return v, true, err
	}
	v, err = Create(dir, id, maxSize)
	return v, false, err
}

func filePath(dir string, id uint64) string {
	name := fmt.Sprintf("%s%d", FilePrefix, id)
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// ID returns this volume's id.
func (v *Volume) ID() uint64 { return v.id }

// FreeCount returns the number of bytes still available for writing.
func (v *Volume) FreeCount() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.maxSize - v.currentSize
}

// IsReadOnly reports whether the volume has reached its maximum size.
func (v *Volume) IsReadOnly() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.isReadOnly
}

// CurrentSize returns the current length of the backing file in bytes.
func (v *Volume) CurrentSize() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentSize
}

// Write appends a new record for needleID containing payload[:size] and
// returns the Needle descriptor for it. The caller is responsible for
// needleID uniqueness; Write itself never checks.
func (v *Volume) Write(needleID uint64, payload []byte, size uint64) (needle.Needle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.isReadOnly || v.currentSize+needle.HeaderSize+size > v.maxSize {
		return needle.Needle{}, ErrNoFit
	}

	offset := v.currentSize
	n := needle.New(v.id, offset, needleID, size)

	buf := make([]byte, needle.HeaderSize+size)
	n.Flags.Encode(buf)
	copy(buf[needle.HeaderSize:], payload[:size])

	if _, err := v.file.WriteAt(buf, int64(offset)); err != nil {
		return needle.Needle{}, fmt.Errorf("volume %d: write at %d: %w", v.id, offset, err)
	}

	v.currentSize += needle.HeaderSize + size
	if v.currentSize >= v.maxSize {
		v.isReadOnly = true
	}
	return n, nil
}

// Read validates needle against the on-disk header at its offset and,
// on success, reads exactly needle.Flags.Size bytes into outBuf, which
// must have capacity at least that size.
func (v *Volume) Read(n needle.Needle, outBuf []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if n.HaystackID != v.id || n.Offset+needle.HeaderSize > v.currentSize {
		return ErrBadNeedle
	}

	hdr := make([]byte, needle.HeaderSize)
	if _, err := v.file.ReadAt(hdr, int64(n.Offset)); err != nil {
		return fmt.Errorf("volume %d: read header at %d: %w", v.id, n.Offset, err)
	}
	onDisk := needle.Decode(hdr)

	if onDisk.IsDeleted || onDisk.ID != n.Flags.ID || onDisk.Size != n.Flags.Size {
		return ErrBadNeedle
	}

	payloadOff := int64(n.Offset) + needle.HeaderSize
	if _, err := v.file.ReadAt(outBuf[:onDisk.Size], payloadOff); err != nil {
		return fmt.Errorf("volume %d: read payload at %d: %w", v.id, payloadOff, err)
	}
	return nil
}

// Delete tombstones the on-disk record at needle.Offset by flipping its
// isDeleted byte in place, without touching the rest of the header or
// the payload. Delete is idempotent: deleting an already-tombstoned
// record succeeds without writing anything.
func (v *Volume) Delete(n *needle.Needle) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if n.HaystackID != v.id || n.Offset+needle.HeaderSize > v.currentSize {
		return ErrBadNeedle
	}

	hdr := make([]byte, needle.HeaderSize)
	if _, err := v.file.ReadAt(hdr, int64(n.Offset)); err != nil {
		return fmt.Errorf("volume %d: read header at %d: %w", v.id, n.Offset, err)
	}
	onDisk := needle.Decode(hdr)

	if onDisk.ID != n.Flags.ID {
		return ErrBadNeedle
	}

	n.Flags.IsDeleted = true
	if onDisk.IsDeleted {
		return nil
	}

	deletedByteOff := int64(n.Offset) + needle.IsDeletedOffset
	if _, err := v.file.WriteAt([]byte{1}, deletedByteOff); err != nil {
		return fmt.Errorf("volume %d: mark deleted at %d: %w", v.id, deletedByteOff, err)
	}
	return nil
}

// Needles scans the volume from offset 0, returning one descriptor per
// record encountered, tombstoned or not, in file order.
func (v *Volume) Needles() ([]needle.Needle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var needles []needle.Needle
	hdr := make([]byte, needle.HeaderSize)
	for pos := uint64(0); pos < v.currentSize; {
		if _, err := v.file.ReadAt(hdr, int64(pos)); err != nil {
			return nil, fmt.Errorf("volume %d: scan header at %d: %w", v.id, pos, err)
		}
		flags := needle.Decode(hdr)
		needles = append(needles, needle.Needle{
			HaystackID: v.id,
			Offset:     pos,
			Flags:      flags,
		})
		pos += needle.HeaderSize + flags.Size
	}
	return needles, nil
}

// Close flushes and closes the backing file. Calling it a second time
// returns an error, since the file is already closed.
func (v *Volume) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.file.Sync(); err != nil {
		return fmt.Errorf("volume %d: sync: %w", v.id, err)
	}
	return v.file.Close()
}
