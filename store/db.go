package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested capsule is not in the database.
var ErrNotFound = errors.New("store: capsule not found")

// DB is the persistent capsule index. Capsules survive worker restarts;
// a pool coordinator can hand a worker a hash instead of the bytes when
// the worker has seen the capsule before.
type DB struct {
	db   *sql.DB
	path string
}

// OpenDB opens (and if needed initializes) the capsule database at path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS capsules (
		hash TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create table: %w", err)
	}
	return &DB{db: db, path: path}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Put stores capsule bytes under a hash. Re-putting the same hash
// overwrites, which is harmless: content addressing makes the bytes
// identical.
func (d *DB) Put(h [32]byte, data []byte) error {
	_, err := d.db.Exec(
		`INSERT INTO capsules (hash, data) VALUES (?, ?)
		 ON CONFLICT(hash) DO UPDATE SET data = excluded.data`,
		hex.EncodeToString(h[:]), data)
	if err != nil {
		return fmt.Errorf("store: put %x: %w", h[:4], err)
	}
	return nil
}

// Get returns the capsule bytes for a hash.
func (d *DB) Get(h [32]byte) ([]byte, error) {
	var data []byte
	err := d.db.QueryRow(`SELECT data FROM capsules WHERE hash = ?`,
		hex.EncodeToString(h[:])).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %x", ErrNotFound, h[:4])
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %x: %w", h[:4], err)
	}
	return data, nil
}

// Has reports whether the database holds a capsule for the hash.
func (d *DB) Has(h [32]byte) (bool, error) {
	var one int
	err := d.db.QueryRow(`SELECT 1 FROM capsules WHERE hash = ?`,
		hex.EncodeToString(h[:])).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: has %x: %w", h[:4], err)
	}
	return true, nil
}
