package txn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oba-ldap/tdbdir/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path, store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readCommitted(t *testing.T, s *store.Store, key string) ([]byte, error) {
	t.Helper()
	tx, err := s.Begin(false)
	require.NoError(t, err)
	defer tx.Rollback()
	return tx.Get(key)
}

func TestBeginCommitDepthOne(t *testing.T) {
	s := openStore(t)
	e := New(s)

	require.NoError(t, e.Begin(true))
	assert.Equal(t, 1, e.Depth())
	require.NoError(t, e.Tx().Put("k", []byte("v"), store.Insert))
	require.NoError(t, e.Commit())
	assert.Equal(t, 0, e.Depth())

	v, err := readCommitted(t, s, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestNestedBeginOnlyFinalisesAtDepthOne(t *testing.T) {
	s := openStore(t)
	e := New(s)

	require.NoError(t, e.Begin(true))
	require.NoError(t, e.Begin(true))
	assert.Equal(t, 2, e.Depth())

	require.NoError(t, e.Tx().Put("k", []byte("v"), store.Insert))

	require.NoError(t, e.Commit())
	assert.Equal(t, 1, e.Depth())
	assert.True(t, e.InTransaction())

	// Not yet visible outside the still-open outer transaction.
	_, err := readCommitted(t, s, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, e.Commit())
	assert.Equal(t, 0, e.Depth())

	v, err := readCommitted(t, s, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestCancelRollsBackAtDepthZero(t *testing.T) {
	s := openStore(t)
	e := New(s)

	require.NoError(t, e.Begin(true))
	require.NoError(t, e.Tx().Put("k", []byte("v"), store.Insert))
	require.NoError(t, e.Cancel())

	_, err := readCommitted(t, s, "k")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommitCancelWithoutBeginErrors(t *testing.T) {
	s := openStore(t)
	e := New(s)

	assert.ErrorIs(t, e.Commit(), ErrNotInTransaction)
	assert.ErrorIs(t, e.Cancel(), ErrNotInTransaction)
}

func TestNestedReadOnlyCannotUpgrade(t *testing.T) {
	s := openStore(t)
	e := New(s)

	require.NoError(t, e.Begin(false))
	err := e.Begin(true)
	assert.ErrorIs(t, err, ErrUpgrade)
}
