package volume

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/barnstore/barnstore/internal/needle"
)

func TestVolume_WriteReadReopen(t *testing.T) {
	dir := t.TempDir()

	v, err := Create(dir, 0, 1000)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	payload := make([]byte, 400)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}

	n, err := v.Write(42, payload, uint64(len(payload)))
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	wantFree := uint64(1000 - (needle.HeaderSize + 400))
	if got := v.FreeCount(); got != wantFree {
		t.Fatalf("FreeCount() = %d, want %d", got, wantFree)
	}

	if err := v.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	v2, err := Open(dir, 0, 1000)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer v2.Close()

	if got := v2.FreeCount(); got != wantFree {
		t.Fatalf("FreeCount() after reopen = %d, want %d", got, wantFree)
	}

	buf := make([]byte, 400)
	if err := v2.Read(n, buf); err != nil {
		t.Fatalf("Read() after reopen failed: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Fatalf("data mismatch after reopen")
	}
}

func TestVolume_RandomInterleave(t *testing.T) {
	dir := t.TempDir()
	v, err := Create(dir, 0, 1<<20)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	const count = 20
	payloads := make([][]byte, count)
	needles := make([]needle.Needle, count)

	for i := 0; i < 10; i++ {
		payloads[i] = make([]byte, 768)
		if _, err := rand.Read(payloads[i]); err != nil {
			t.Fatalf("rand.Read failed: %v", err)
		}
		n, err := v.Write(uint64(i), payloads[i], uint64(len(payloads[i])))
		if err != nil {
			t.Fatalf("Write(%d) failed: %v", i, err)
		}
		needles[i] = n
	}

	checkRead := func(idx int) {
		buf := make([]byte, len(payloads[idx]))
		if err := v.Read(needles[idx], buf); err != nil {
			t.Fatalf("Read(%d) failed: %v", idx, err)
		}
		if !bytes.Equal(buf, payloads[idx]) {
			t.Fatalf("Read(%d) data mismatch", idx)
		}
	}

	for _, idx := range []int{6, 3, 8, 5, 0, 2, 1} {
		checkRead(idx)
	}

	if err := v.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	v, err = Open(dir, 0, 1<<20)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer v.Close()

	for _, idx := range []int{6, 3, 8, 5, 0, 2, 1} {
		checkRead(idx)
	}

	for i := 10; i < count; i++ {
		payloads[i] = make([]byte, 768)
		if _, err := rand.Read(payloads[i]); err != nil {
			t.Fatalf("rand.Read failed: %v", err)
		}
		n, err := v.Write(uint64(i), payloads[i], uint64(len(payloads[i])))
		if err != nil {
			t.Fatalf("Write(%d) failed: %v", i, err)
		}
		needles[i] = n
	}

	for _, idx := range []int{6, 12, 19, 15, 1, 17, 9} {
		checkRead(idx)
	}
}

func TestVolume_ScanIncludesDeleted(t *testing.T) {
	dir := t.TempDir()
	v, err := Create(dir, 0, 1<<20)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer v.Close()

	const count = 20
	needles := make([]needle.Needle, count)
	for i := 0; i < count; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, 100)
		n, err := v.Write(uint64(i), payload, uint64(len(payload)))
		if err != nil {
			t.Fatalf("Write(%d) failed: %v", i, err)
		}
		needles[i] = n
	}

	deleted := map[int]bool{0: true, 5: true, 10: true, 15: true}
	for idx := range deleted {
		if err := v.Delete(&needles[idx]); err != nil {
			t.Fatalf("Delete(%d) failed: %v", idx, err)
		}
	}

	scanned, err := v.Needles()
	if err != nil {
		t.Fatalf("Needles() failed: %v", err)
	}
	if len(scanned) != count {
		t.Fatalf("Needles() returned %d descriptors, want %d", len(scanned), count)
	}

	var lastOffset uint64 = 0
	for i, n := range scanned {
		if i > 0 && n.Offset <= lastOffset {
			t.Fatalf("offsets not strictly increasing at index %d", i)
		}
		lastOffset = n.Offset

		if deleted[i] != n.Flags.IsDeleted {
			t.Fatalf("descriptor %d: IsDeleted = %v, want %v", i, n.Flags.IsDeleted, deleted[i])
		}

		buf := make([]byte, n.Flags.Size)
		err := v.Read(needles[i], buf)
		if deleted[i] {
			if err != ErrBadNeedle {
				t.Fatalf("Read(%d) on deleted needle: err = %v, want ErrBadNeedle", i, err)
			}
		} else if err != nil {
			t.Fatalf("Read(%d) failed: %v", i, err)
		}
	}

	last := scanned[len(scanned)-1]
	if last.Offset+needle.HeaderSize+last.Flags.Size != v.CurrentSize() {
		t.Fatalf("last descriptor does not end at currentSize")
	}
}

func TestVolume_NoFitLeavesStateUnchanged(t *testing.T) {
	dir := t.TempDir()
	v, err := Create(dir, 0, needle.HeaderSize+10)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer v.Close()

	payload := bytes.Repeat([]byte{1}, 20)
	before := v.CurrentSize()
	if _, err := v.Write(1, payload, uint64(len(payload))); err != ErrNoFit {
		t.Fatalf("Write() err = %v, want ErrNoFit", err)
	}
	if v.CurrentSize() != before {
		t.Fatalf("CurrentSize() changed after failed write")
	}
}

func TestVolume_ReadOnlyGate(t *testing.T) {
	dir := t.TempDir()
	v, err := Create(dir, 0, needle.HeaderSize+10)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer v.Close()

	payload := bytes.Repeat([]byte{1}, 10)
	if _, err := v.Write(1, payload, uint64(len(payload))); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if !v.IsReadOnly() {
		t.Fatalf("IsReadOnly() = false, want true after filling volume")
	}
	if _, err := v.Write(2, []byte{1}, 1); err != ErrNoFit {
		t.Fatalf("Write() after full err = %v, want ErrNoFit", err)
	}
}
