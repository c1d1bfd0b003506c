// Package store adapts the backend engine to an atomic on-disk
// key/value file with transactions and whole-file locking. The
// underlying engine's own internals are out of scope for this module
// — here it is a concrete, real dependency (go.etcd.io/bbolt) behind a
// narrow contract, so the rest of the backend never imports bbolt
// directly.
package store

import (
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned by Tx.Get when the key is absent.
var ErrNotFound = errors.New("store: key not found")

// ErrExists is returned by Tx.Put with mode Insert when the key is
// already present.
var ErrExists = errors.New("store: key already exists")

// ErrReadOnly is returned by any write attempted against a store
// opened with Options.ReadOnly.
var ErrReadOnly = errors.New("store: database is read-only")

// bucketName is the single key/value table the whole database lives
// in: one file, one bucket.
var bucketName = []byte("tdb")

// Options configures Open, mirroring the tdb:// connection URL's flags.
type Options struct {
	// ReadOnly opens the store without acquiring the write lock.
	ReadOnly bool

	// NoSync disables fsync after each commit. Faster, less durable.
	NoSync bool

	// NoMMap is accepted for tdb:// URL compatibility but has no
	// effect: bbolt always memory-maps its data file, and Open leaves
	// bbolt's mmap flags at their default whether or not it is set.
	NoMMap bool

	// Buckets is retained for source compatibility with tdb://
	// connection URLs that carry a bucket-count hint. bbolt's B+Tree
	// grows on demand and has no such knob, so this field is parsed
	// and ignored.
	Buckets int

	// FileMode is the permission mask used when creating a new file.
	FileMode uint32

	// Timeout bounds how long Open waits for the whole-file lock
	// before reporting busy.
	Timeout time.Duration
}

// DefaultBuckets is the default hash-table size a tdb:// URL assumes
// when it carries no explicit buckets parameter. It has no effect
// against the bbolt-backed store; see Options.Buckets.
const DefaultBuckets = 10000

// DefaultOptions returns the connection defaults used when a bare
// filesystem path is opened without an explicit options struct.
func DefaultOptions() Options {
	return Options{
		FileMode: 0o600,
		Buckets:  DefaultBuckets,
		Timeout:  5 * time.Second,
	}
}

// Store is the backend engine's view of the underlying hashed file.
// All reads and writes go through a Tx opened with Begin; see
// internal/txn for the nesting layer built on top of
// Begin/Commit/Rollback.
type Store struct {
	db       *bolt.DB
	readOnly bool
}

// Open opens (creating if necessary) the store at path with the
// given options.
func Open(path string, opts Options) (*Store, error) {
	boltOpts := &bolt.Options{
		ReadOnly: opts.ReadOnly,
		Timeout:  opts.Timeout,
	}
	if opts.NoMMap {
		boltOpts.MmapFlags = 0
	}

	mode := opts.FileMode
	if mode == 0 {
		mode = 0o600
	}

	db, err := bolt.Open(path, uint32ToFileMode(mode), boltOpts)
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	db.NoSync = opts.NoSync

	s := &Store{db: db, readOnly: opts.ReadOnly}

	if !opts.ReadOnly {
		err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketName)
			return err
		})
		if err != nil {
			db.Close()
			return nil, errors.Wrap(err, "store: create bucket")
		}
	}

	return s, nil
}

// Close releases the underlying file handle and its lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReadOnly reports whether the store rejects writes.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

