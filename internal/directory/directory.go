// Package directory implements the facade that allocates needle ids,
// picks a volume for each upload, proxies payloads to Store over TCP,
// and records the needleId/haystackId mapping in a ledger.
package directory

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/barnstore/barnstore/internal/wireclient"
)

var (
	// ErrDbErr wraps any ledger failure, surfaced on the wire as DbErr.
	ErrDbErr = errors.New("directory: db error")

	// ErrStoreUnreachable wraps a transport-level failure dialing,
	// writing to, or reading from Store — never a response Store
	// actually sent. Surfaced on the wire as Unknown, matching the
	// original's outer catch(std::exception&) around the TcpStream.
	ErrStoreUnreachable = errors.New("directory: store unreachable")
)

// StoreRejected wraps a genuine "err <reason>" response line from
// Store, carrying its reason so callers can forward it verbatim
// instead of parsing it back out of an error message.
type StoreRejected struct {
	Reason string
}

func (e *StoreRejected) Error() string {
	return fmt.Sprintf("directory: store rejected: %s", e.Reason)
}

// ledgerStore is the subset of *Ledger's behavior Directory depends
// on, narrowed to an interface so tests can substitute a fake in place
// of a real Postgres connection.
type ledgerStore interface {
	Insert(needleID, haystackID uint64) error
	Delete(needleID uint64) (bool, error)
	List() ([]uint64, error)
	MaxNeedleID() (maxID uint64, hasRows bool, err error)
}

// Directory allocates ids/volumes, proxies payloads to Store, and keeps
// a ledger of what it has stored there.
type Directory struct {
	storeAddr string
	ledger    ledgerStore

	volumeCount   uint64
	idCounter     atomic.Uint64
	volumeCounter atomic.Uint64
}

// Open builds a Directory against storeAddr and ledger, seeding its id
// allocator from the ledger's persisted maximum so a restart does not
// reissue ids already on record.
func Open(storeAddr string, ledger ledgerStore, volumeCount uint64) (*Directory, error) {
	d := &Directory{
		storeAddr:   storeAddr,
		ledger:      ledger,
		volumeCount: volumeCount,
	}

	maxID, hasRows, err := ledger.MaxNeedleID()
	if err != nil {
		return nil, fmt.Errorf("directory: seed id counter: %w", err)
	}
	if hasRows {
		d.idCounter.Store(maxID + 1)
	}
	return d, nil
}

// Upload stores payload as a new needle: allocates an id and a volume,
// writes it through to Store, then records the mapping in the ledger.
// If Store rejects the write, no ledger row is created and a
// *StoreRejected carrying Store's own reason is returned.
func (d *Directory) Upload(payload []byte) (needleID uint64, err error) {
	needleID = d.idCounter.Add(1) - 1
	haystackID := (d.volumeCounter.Add(1) - 1) % d.volumeCount

	resp, err := wireclient.Put(d.storeAddr, haystackID, needleID, payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	if !resp.OK {
		return 0, &StoreRejected{Reason: resp.Reason}
	}

	if err := d.ledger.Insert(needleID, haystackID); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDbErr, err)
	}
	return needleID, nil
}

// List returns every needleId currently on record.
func (d *Directory) List() ([]uint64, error) {
	ids, err := d.ledger.List()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDbErr, err)
	}
	return ids, nil
}

// Remove deletes needleId from Store and, if that succeeds, from the
// ledger. Store's own error reason is returned verbatim on rejection.
func (d *Directory) Remove(needleID uint64) error {
	resp, err := wireclient.Delete(d.storeAddr, needleID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	if !resp.OK {
		return &StoreRejected{Reason: resp.Reason}
	}

	ok, err := d.ledger.Delete(needleID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDbErr, err)
	}
	if !ok {
		return fmt.Errorf("%w: no ledger row for needle %d", ErrDbErr, needleID)
	}
	return nil
}
