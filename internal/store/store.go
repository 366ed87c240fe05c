// Package store owns a fixed set of haystack volumes and the in-memory
// needle index consistent with their on-disk state, and serves a
// line-oriented TCP protocol for put/get/delete.
package store

import (
	"errors"
	"fmt"
	"log"

	"github.com/barnstore/barnstore/internal/index"
	"github.com/barnstore/barnstore/internal/volume"
)

// Defaults mirror the reference design: five volumes of 1 GiB each, with
// a 1 MiB cap on any single needle's payload.
const (
	DefaultVolumeCount   = 5
	DefaultMaxFileSize   = 1 << 20                  // 1 MiB
	DefaultMaxVolumeSize = DefaultMaxFileSize << 10 // 1 GiB
)

var (
	// ErrBadHaystackID is returned when a requested volume id is out of range.
	ErrBadHaystackID = errors.New("store: bad haystack id")

	// ErrTooManyBytes is returned when a put's declared size exceeds MaxFileSize.
	ErrTooManyBytes = errors.New("store: too many bytes")

	// ErrBadNeedle is returned when a needle id is absent from the index,
	// or is rejected by the owning volume.
	ErrBadNeedle = errors.New("store: bad needle")

	// ErrNoFit is returned when the owning volume has no room, or a
	// needle id collided with one already present in the index.
	ErrNoFit = errors.New("store: no fit")
)

// Store multiplexes concurrent put/get/delete requests over a fixed set
// of Volumes, keeping a global needle index consistent with their
// on-disk state.
type Store struct {
	volumes     []*volume.Volume
	index       *index.Index
	maxFileSize uint64
}

// Config controls how many volumes a Store owns and how large each may
// grow, plus the per-needle payload cap enforced at Put.
type Config struct {
	Dir           string
	VolumeCount   uint64
	MaxVolumeSize uint64
	MaxFileSize   uint64
}

// DefaultConfig returns the reference sizing: 5 volumes, 1 GiB each,
// 1 MiB per-needle cap.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:           dir,
		VolumeCount:   DefaultVolumeCount,
		MaxVolumeSize: DefaultMaxVolumeSize,
		MaxFileSize:   DefaultMaxFileSize,
	}
}

// Open creates or recovers cfg.VolumeCount volumes under cfg.Dir and
// rebuilds the needle index from a full scan of every recovered volume.
func Open(cfg Config) (*Store, error) {
	s := &Store{
		volumes:     make([]*volume.Volume, cfg.VolumeCount),
		index:       index.New(),
		maxFileSize: cfg.MaxFileSize,
	}

	for id := uint64(0); id < cfg.VolumeCount; id++ {
		v, recovered, err := volume.OpenOrCreate(cfg.Dir, id, cfg.MaxVolumeSize)
		if err != nil {
			return nil, fmt.Errorf("store: open volume %d: %w", id, err)
		}
		s.volumes[id] = v

		if !recovered {
			continue
		}
		if err := s.rebuildIndex(v); err != nil {
			return nil, fmt.Errorf("store: rebuild index for volume %d: %w", id, err)
		}
	}

	return s, nil
}

func (s *Store) rebuildIndex(v *volume.Volume) error {
	needles, err := v.Needles()
	if err != nil {
		return err
	}
	for _, n := range needles {
		if n.Flags.IsDeleted {
			continue
		}
		if !s.index.Put(n.Flags.ID, n) {
			log.Printf("store: recovery: duplicate needle id %d in volume %d ignored", n.Flags.ID, v.ID())
		}
	}
	return nil
}

// VolumeCount returns the number of volumes this Store owns.
func (s *Store) VolumeCount() int { return len(s.volumes) }

// MaxFileSize returns the per-needle payload cap.
func (s *Store) MaxFileSize() uint64 { return s.maxFileSize }

// Put writes buf[:size] as needleId into the volume identified by
// volumeId and inserts the resulting descriptor into the index.
//
// If the index already holds needleId, the just-written on-disk record
// is tombstoned before returning ErrNoFit: the index never contains a
// descriptor whose on-disk record does not exist, and any on-disk
// record whose index insert failed is tombstoned before Put returns.
func (s *Store) Put(volumeID, needleID uint64, buf []byte, size uint64) error {
	if volumeID >= uint64(len(s.volumes)) {
		return ErrBadHaystackID
	}
	if size > s.maxFileSize {
		return ErrTooManyBytes
	}
	v := s.volumes[volumeID]

	n, err := v.Write(needleID, buf, size)
	if err != nil {
		return ErrNoFit
	}

	if !s.index.Put(needleID, n) {
		if delErr := v.Delete(&n); delErr != nil {
			log.Printf("store: failed to tombstone colliding write for needle %d: %v", needleID, delErr)
		}
		return ErrNoFit
	}
	return nil
}

// Get looks up needleID and reads its payload into outBuf, returning the
// payload size on success.
func (s *Store) Get(needleID uint64, outBuf []byte) (uint64, error) {
	n, ok := s.index.Get(needleID)
	if !ok {
		return 0, ErrBadNeedle
	}
	v := s.volumes[n.HaystackID]
	if err := v.Read(n, outBuf); err != nil {
		return 0, ErrBadNeedle
	}
	return n.Flags.Size, nil
}

// Remove tombstones needleID's on-disk record and removes it from the
// index. After a successful Remove, neither the index nor a subsequent
// Get will return the blob.
func (s *Store) Remove(needleID uint64) error {
	n, ok := s.index.Get(needleID)
	if !ok {
		return ErrBadNeedle
	}
	v := s.volumes[n.HaystackID]
	if err := v.Delete(&n); err != nil {
		return ErrBadNeedle
	}
	s.index.Remove(needleID)
	return nil
}

// VolumeStatus is a read-only diagnostic snapshot of one volume, used by
// the ambient status surface.
type VolumeStatus struct {
	ID         uint64 `json:"id"`
	FreeBytes  uint64 `json:"freeBytes"`
	IsReadOnly bool   `json:"isReadOnly"`
	LiveCount  int    `json:"liveCount"`
}

// Status returns a diagnostic snapshot of every volume this Store owns.
func (s *Store) Status() []VolumeStatus {
	counts := s.index.CountByHaystack()
	out := make([]VolumeStatus, len(s.volumes))
	for i, v := range s.volumes {
		out[i] = VolumeStatus{
			ID:         v.ID(),
			FreeBytes:  v.FreeCount(),
			IsReadOnly: v.IsReadOnly(),
			LiveCount:  counts[v.ID()],
		}
	}
	return out
}

// Close flushes and closes every volume.
func (s *Store) Close() error {
	var firstErr error
	for _, v := range s.volumes {
		if err := v.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
