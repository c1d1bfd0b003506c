package seq

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oba-ldap/tdbdir/internal/store"
)

func openTx(t *testing.T) (*store.Store, *store.Tx) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path, store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	tx, err := s.Begin(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	return s, tx
}

func TestHighestZeroWhenUnset(t *testing.T) {
	_, tx := openTx(t)
	h, err := Highest(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), h)
}

func TestBumpIncrements(t *testing.T) {
	_, tx := openTx(t)

	n1, err := Bump(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n1)

	n2, err := Bump(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n2)

	h, err := Highest(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h)
}

func TestNextDoesNotMutate(t *testing.T) {
	_, tx := openTx(t)
	_, err := Bump(tx)
	require.NoError(t, err)

	n, err := Next(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	h, err := Highest(tx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h)
}

func TestHighestTimestampSetByBump(t *testing.T) {
	_, tx := openTx(t)
	before := time.Now().UTC().Truncate(time.Second)

	_, err := Bump(tx)
	require.NoError(t, err)

	ts, err := HighestTimestamp(tx)
	require.NoError(t, err)
	assert.False(t, ts.Before(before))
}
