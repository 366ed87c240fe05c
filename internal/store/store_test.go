package store

import (
	"bytes"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := Config{
		Dir:           t.TempDir(),
		VolumeCount:   3,
		MaxVolumeSize: 4096,
		MaxFileSize:   1024,
	}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGetRemove(t *testing.T) {
	s := newTestStore(t)
	payload := []byte("hello haystack")

	if err := s.Put(0, 1, payload, uint64(len(payload))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	buf := make([]byte, 256)
	n, err := s.Get(1, buf)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("Get() = %q, want %q", buf[:n], payload)
	}

	if err := s.Remove(1); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Get(1, buf); !errors.Is(err, ErrBadNeedle) {
		t.Fatalf("Get() after Remove() error = %v, want ErrBadNeedle", err)
	}
}

func TestStore_PutDuplicateIDTombstonesOnDiskRecord(t *testing.T) {
	s := newTestStore(t)
	payload := []byte("first")

	if err := s.Put(0, 5, payload, uint64(len(payload))); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}

	before := s.volumes[0].FreeCount()
	if err := s.Put(0, 5, []byte("second"), 6); !errors.Is(err, ErrNoFit) {
		t.Fatalf("duplicate Put() error = %v, want ErrNoFit", err)
	}
	after := s.volumes[0].FreeCount()

	// The colliding write consumed space on disk (and was tombstoned),
	// so free space must have dropped even though the index rejected it.
	if after >= before {
		t.Fatalf("FreeCount after duplicate put = %d, want < %d (tombstoned write still occupies space)", after, before)
	}

	scanned, err := s.volumes[0].Needles()
	if err != nil {
		t.Fatalf("Needles() error = %v", err)
	}
	if len(scanned) != 2 || scanned[1].Flags.ID != 5 || !scanned[1].Flags.IsDeleted {
		t.Fatalf("Needles() = %+v, want second record id 5 tombstoned", scanned)
	}

	// The original record must still be readable.
	buf := make([]byte, 256)
	n, err := s.Get(5, buf)
	if err != nil {
		t.Fatalf("Get() after duplicate Put() error = %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("Get() after duplicate Put() = %q, want %q", buf[:n], payload)
	}
}

func TestStore_BadHaystackID(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put(99, 1, []byte("x"), 1); !errors.Is(err, ErrBadHaystackID) {
		t.Fatalf("Put() with bad volume id error = %v, want ErrBadHaystackID", err)
	}
}

func TestStore_RecoveryRebuildsIndexSkippingTombstones(t *testing.T) {
	cfg := Config{
		Dir:           t.TempDir(),
		VolumeCount:   2,
		MaxVolumeSize: 4096,
		MaxFileSize:   1024,
	}
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := s.Put(0, 1, []byte("keep"), 4); err != nil {
		t.Fatalf("Put(1) error = %v", err)
	}
	if err := s.Put(0, 2, []byte("gone"), 4); err != nil {
		t.Fatalf("Put(2) error = %v", err)
	}
	if err := s.Remove(2); err != nil {
		t.Fatalf("Remove(2) error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer reopened.Close()

	buf := make([]byte, 256)
	if _, err := reopened.Get(1, buf); err != nil {
		t.Fatalf("Get(1) after recovery error = %v", err)
	}
	if _, err := reopened.Get(2, buf); !errors.Is(err, ErrBadNeedle) {
		t.Fatalf("Get(2) after recovery error = %v, want ErrBadNeedle", err)
	}
}

func TestStore_Status(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put(0, 1, []byte("x"), 1); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	st := s.Status()
	if len(st) != 3 {
		t.Fatalf("Status() len = %d, want 3", len(st))
	}
	if st[0].LiveCount != 1 {
		t.Fatalf("Status()[0].LiveCount = %d, want 1", st[0].LiveCount)
	}
	if st[1].LiveCount != 0 {
		t.Fatalf("Status()[1].LiveCount = %d, want 0", st[1].LiveCount)
	}
}
