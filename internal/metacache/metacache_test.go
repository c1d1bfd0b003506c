package metacache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oba-ldap/tdbdir/internal/dn"
	"github.com/oba-ldap/tdbdir/internal/record"
	"github.com/oba-ldap/tdbdir/internal/schema"
	"github.com/oba-ldap/tdbdir/internal/seq"
	"github.com/oba-ldap/tdbdir/internal/store"
)

func openTx(t *testing.T) *store.Tx {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path, store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	tx, err := s.Begin(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })
	return tx
}

func putAttributes(t *testing.T, tx *store.Tx, tuples ...string) {
	t.Helper()
	values := make([][]byte, len(tuples))
	for i, tup := range tuples {
		values[i] = []byte(tup)
	}
	r := &record.Record{DN: AttributesDN, Elements: []record.Element{{Name: "attr", Values: values}}}
	data, err := record.Pack(r)
	require.NoError(t, err)
	key, _ := dn.Key(AttributesDN)
	require.NoError(t, tx.Put(key, data, store.Modify))
}

func putIndexList(t *testing.T, tx *store.Tx, names ...string) {
	t.Helper()
	values := make([][]byte, len(names))
	for i, n := range names {
		values[i] = []byte(n)
	}
	r := &record.Record{DN: IndexListDN, Elements: []record.Element{{Name: IndexedAttrElement, Values: values}}}
	data, err := record.Pack(r)
	require.NoError(t, err)
	key, _ := dn.Key(IndexListDN)
	require.NoError(t, tx.Put(key, data, store.Modify))
}

func TestRefreshLoadsAttributesAndIndexList(t *testing.T) {
	tx := openTx(t)
	putAttributes(t, tx, "uid:1:directoryString")
	putIndexList(t, tx, "cn", "uid")

	c := New(schema.NewDefaultRegistry())
	require.NoError(t, c.Refresh(tx))

	d := c.Registry.Lookup("uid")
	assert.Equal(t, schema.DirectoryStringSyntax, d.Syntax)
	assert.True(t, c.IsIndexed("cn"))
	assert.True(t, c.IsIndexed("UID"))
	assert.False(t, c.IsIndexed("ou"))
}

func TestRefreshReusesCacheWhenSequenceUnchanged(t *testing.T) {
	tx := openTx(t)
	putIndexList(t, tx, "cn")

	c := New(schema.NewDefaultRegistry())
	require.NoError(t, c.Refresh(tx))
	assert.True(t, c.IsIndexed("cn"))

	// Mutate @INDEXLIST directly without bumping sequence; a refresh
	// at the same sequence number must not observe it.
	putIndexList(t, tx, "ou")
	require.NoError(t, c.Refresh(tx))
	assert.True(t, c.IsIndexed("cn"), "stale cache reused because sequence unchanged")
}

func TestRefreshReloadsAfterSequenceBump(t *testing.T) {
	tx := openTx(t)
	putIndexList(t, tx, "cn")

	c := New(schema.NewDefaultRegistry())
	require.NoError(t, c.Refresh(tx))

	putIndexList(t, tx, "ou")
	_, err := seq.Bump(tx)
	require.NoError(t, err)

	require.NoError(t, c.Refresh(tx))
	assert.False(t, c.IsIndexed("cn"))
	assert.True(t, c.IsIndexed("ou"))
}

func TestRefreshWithoutMetadataEntriesIsFine(t *testing.T) {
	tx := openTx(t)
	c := New(schema.NewDefaultRegistry())
	require.NoError(t, c.Refresh(tx))
	assert.False(t, c.IsIndexed("cn"))
}
