// Package txn implements the transaction envelope: a thin pass-
// through to the underlying store's begin/commit/cancel, plus a
// non-negative nesting depth counter so that a write-path operation
// composed of several sub-operations — each of which wants its own
// Begin/Commit bracket — still commits or rolls back exactly once.
package txn

import (
	"github.com/pkg/errors"

	"github.com/oba-ldap/tdbdir/internal/store"
)

// ErrNotInTransaction is returned by Commit/Cancel with no matching Begin.
var ErrNotInTransaction = errors.New("txn: not in a transaction")

// ErrUpgrade is returned when a nested Begin asks for a writable
// transaction inside an outer read-only one.
var ErrUpgrade = errors.New("txn: cannot upgrade read-only transaction to writable")

// Envelope wraps one store.Tx with a nesting counter. It is bound to
// a single store.Store and reused across requests on the same
// database handle.
type Envelope struct {
	store    *store.Store
	tx       *store.Tx
	depth    int
	writable bool
}

// New returns an envelope bound to s, initially outside any transaction.
func New(s *store.Store) *Envelope {
	return &Envelope{store: s}
}

// Begin starts a transaction, or — if already inside one — increments
// the nesting depth without touching the underlying store.
func (e *Envelope) Begin(writable bool) error {
	if e.depth == 0 {
		tx, err := e.store.Begin(writable)
		if err != nil {
			return err
		}
		e.tx = tx
		e.writable = writable
		e.depth = 1
		return nil
	}
	if writable && !e.writable {
		return ErrUpgrade
	}
	e.depth++
	return nil
}

// Commit decrements the nesting depth, finalising the underlying
// transaction only when depth reaches zero.
func (e *Envelope) Commit() error {
	if e.depth == 0 {
		return ErrNotInTransaction
	}
	e.depth--
	if e.depth > 0 {
		return nil
	}
	tx := e.tx
	e.tx = nil
	return tx.Commit()
}

// Cancel decrements the nesting depth, rolling back the underlying
// transaction only when depth reaches zero. A failing sub-operation
// must propagate its failure as a Cancel at every enclosing depth —
// an outer Commit after an inner Cancel would finalise edits the
// inner caller meant to discard, since only the outermost call
// actually touches the store.
func (e *Envelope) Cancel() error {
	if e.depth == 0 {
		return ErrNotInTransaction
	}
	e.depth--
	if e.depth > 0 {
		return nil
	}
	tx := e.tx
	e.tx = nil
	return tx.Rollback()
}

// Tx returns the underlying store transaction for use by the write
// path and index engine. It is nil outside of Begin/Commit brackets.
func (e *Envelope) Tx() *store.Tx {
	return e.tx
}

// Depth reports the current nesting depth (zero outside any transaction).
func (e *Envelope) Depth() int {
	return e.depth
}

// InTransaction reports whether a transaction is currently open.
func (e *Envelope) InTransaction() bool {
	return e.depth > 0
}
