package store

import (
	"os"

	bolt "go.etcd.io/bbolt"
)

// PutMode selects INSERT-only or upsert semantics for Tx.Put.
type PutMode int

const (
	// Insert fails with ErrExists if the key is already present.
	Insert PutMode = iota
	// Modify overwrites any existing value unconditionally.
	Modify
)

// Tx is one transaction against the store, begun by Store.Begin.
// It is not safe for concurrent use; the engine serialises access to
// a single Tx through the transaction envelope (internal/txn).
type Tx struct {
	tx       *bolt.Tx
	bucket   *bolt.Bucket
	writable bool
}

// Begin starts a new transaction. Read-only stores may only begin
// read-only transactions.
func (s *Store) Begin(writable bool) (*Tx, error) {
	if writable && s.readOnly {
		return nil, ErrReadOnly
	}
	btx, err := s.db.Begin(writable)
	if err != nil {
		return nil, err
	}
	t := &Tx{tx: btx, writable: writable, bucket: btx.Bucket(bucketName)}
	return t, nil
}

// Commit finalises the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback discards the transaction's writes, if any.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Get reads the value stored under key within this transaction.
func (t *Tx) Get(key string) ([]byte, error) {
	if t.bucket == nil {
		return nil, ErrNotFound
	}
	v := t.bucket.Get([]byte(key))
	if v == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put writes value under key. With mode Insert it fails with
// ErrExists if key is already present.
func (t *Tx) Put(key string, value []byte, mode PutMode) error {
	if !t.writable {
		return ErrReadOnly
	}
	if mode == Insert {
		if existing := t.bucket.Get([]byte(key)); existing != nil {
			return ErrExists
		}
	}
	return t.bucket.Put([]byte(key), value)
}

// Delete removes key. It is not an error to delete an absent key;
// callers that need existence semantics check with Get first, as the
// write path does.
func (t *Tx) Delete(key string) error {
	if !t.writable {
		return ErrReadOnly
	}
	return t.bucket.Delete([]byte(key))
}

// ForEachPrefix iterates every key/value pair whose key starts with
// prefix, in key order, calling fn until it returns false or the
// bucket is exhausted.
func (t *Tx) ForEachPrefix(prefix string, fn func(key string, value []byte) bool) error {
	if t.bucket == nil {
		return nil
	}
	c := t.bucket.Cursor()
	p := []byte(prefix)
	for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
		if !fn(string(k), v) {
			break
		}
	}
	return nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

func uint32ToFileMode(m uint32) os.FileMode {
	return os.FileMode(m)
}
