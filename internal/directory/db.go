package directory

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Ledger realizes the "external document database" collaborator as a
// Postgres table: one row per live needle, mapping needleId to the
// haystackId (volume) it was written into.
type Ledger struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS needles (
	needle_id   BIGINT PRIMARY KEY,
	haystack_id BIGINT NOT NULL
)`

// OpenLedger connects to dsn (a lib/pq connection string) and ensures
// the needles table exists.
func OpenLedger(dsn string) (*Ledger, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("directory: connect db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("directory: create schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// record is one row of the needles table.
type record struct {
	NeedleID   uint64 `db:"needle_id"`
	HaystackID uint64 `db:"haystack_id"`
}

// Insert persists needleId/haystackId, the ledger equivalent of
// insert_one.
func (l *Ledger) Insert(needleID, haystackID uint64) error {
	_, err := l.db.Exec(
		`INSERT INTO needles (needle_id, haystack_id) VALUES ($1, $2)`,
		needleID, haystackID,
	)
	if err != nil {
		return fmt.Errorf("directory: insert needle %d: %w", needleID, err)
	}
	return nil
}

// Delete removes needleId's row, the ledger equivalent of delete_one.
// It reports whether a row was actually removed.
func (l *Ledger) Delete(needleID uint64) (bool, error) {
	res, err := l.db.Exec(`DELETE FROM needles WHERE needle_id = $1`, needleID)
	if err != nil {
		return false, fmt.Errorf("directory: delete needle %d: %w", needleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("directory: delete needle %d: %w", needleID, err)
	}
	return n > 0, nil
}

// List returns every needleId on record, the ledger equivalent of
// find({}).
func (l *Ledger) List() ([]uint64, error) {
	var recs []record
	if err := l.db.Select(&recs, `SELECT needle_id, haystack_id FROM needles`); err != nil {
		return nil, fmt.Errorf("directory: list needles: %w", err)
	}
	ids := make([]uint64, len(recs))
	for i, r := range recs {
		ids[i] = r.NeedleID
	}
	return ids, nil
}

// MaxNeedleID returns the highest needleId on record, used to seed the
// id allocator after a restart so it does not reissue ids that are
// already in use. hasRows is false when the table is empty, in which
// case maxID is meaningless and must not be used to seed anything —
// needleId 0 is a legal id, so a bare maxID of 0 can't distinguish
// "empty table" from "row 0 is the only one present".
func (l *Ledger) MaxNeedleID() (maxID uint64, hasRows bool, err error) {
	var max sql.NullInt64
	if err := l.db.Get(&max, `SELECT MAX(needle_id) FROM needles`); err != nil {
		return 0, false, fmt.Errorf("directory: max needle id: %w", err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return uint64(max.Int64), true, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}
