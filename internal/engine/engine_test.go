package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oba-ldap/tdbdir/internal/dberr"
	"github.com/oba-ldap/tdbdir/internal/dn"
	"github.com/oba-ldap/tdbdir/internal/index"
	"github.com/oba-ldap/tdbdir/internal/record"
	"github.com/oba-ldap/tdbdir/internal/schema"
	"github.com/oba-ldap/tdbdir/internal/seq"
	"github.com/oba-ldap/tdbdir/internal/store"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path, store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.Registry().Register("cn", 0, schema.OctetStringSyntax)
	return db
}

func seedIndexList(t *testing.T, db *DB, attrs ...string) {
	t.Helper()
	values := make([][]byte, len(attrs))
	for i, a := range attrs {
		values[i] = []byte(a)
	}
	msg := &record.Record{DN: "@INDEXLIST", Elements: []record.Element{{Name: "attr", Values: values}}}
	require.NoError(t, db.Add(msg))
}

func bucketMembers(t *testing.T, db *DB, bdn string) []string {
	t.Helper()
	require.NoError(t, db.env.Begin(false))
	defer db.env.Cancel()
	tx := db.env.Tx()
	key, err := dn.Key(bdn)
	require.NoError(t, err)
	raw, err := tx.Get(key)
	if err != nil {
		return nil
	}
	r, err := record.Unpack(raw)
	require.NoError(t, err)
	el := r.Get(index.IDXElement)
	if el == nil {
		return nil
	}
	out := make([]string, len(el.Values))
	for i, v := range el.Values {
		out[i] = string(v)
	}
	return out
}

func sequenceNow(t *testing.T, db *DB) uint64 {
	t.Helper()
	require.NoError(t, db.env.Begin(false))
	defer db.env.Cancel()
	n, err := seq.Highest(db.env.Tx())
	require.NoError(t, err)
	return n
}

// TestAddModifyDeleteRenameLifecycle walks an entry through add,
// modify-add, modify-delete and rename, checking the entry, index
// buckets and sequence counter after each step.
func TestAddModifyDeleteRenameLifecycle(t *testing.T) {
	db := openDB(t)
	seedIndexList(t, db, "cn")
	baseSeq := sequenceNow(t, db)

	// add
	require.NoError(t, db.Add(&record.Record{
		DN:       "cn=a,dc=x",
		Elements: []record.Element{{Name: "cn", Values: [][]byte{[]byte("a")}}},
	}))
	got, err := db.Get("cn=a,dc=x")
	require.NoError(t, err)
	assert.Equal(t, "cn=a,dc=x", got.DN)
	assert.Equal(t, []string{"cn=a,dc=x"}, bucketMembers(t, db, "@INDEX:cn:a"))
	assert.Equal(t, baseSeq+1, sequenceNow(t, db))

	// modify-add
	require.NoError(t, db.Modify("cn=a,dc=x", []Modification{
		{Op: ModAdd, Name: "cn", Values: [][]byte{[]byte("b")}},
	}))
	got, err = db.Get("cn=a,dc=x")
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]byte{[]byte("a"), []byte("b")}, got.Get("cn").Values)
	assert.Equal(t, []string{"cn=a,dc=x"}, bucketMembers(t, db, "@INDEX:cn:b"))
	assert.Equal(t, baseSeq+2, sequenceNow(t, db))

	// modify-delete
	require.NoError(t, db.Modify("cn=a,dc=x", []Modification{
		{Op: ModDelete, Name: "cn", Values: [][]byte{[]byte("a")}},
	}))
	got, err = db.Get("cn=a,dc=x")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("b")}, got.Get("cn").Values)
	assert.Nil(t, bucketMembers(t, db, "@INDEX:cn:a"))
	assert.Equal(t, baseSeq+3, sequenceNow(t, db))

	// rename
	require.NoError(t, db.Rename("cn=a,dc=x", "cn=c,dc=x"))
	_, err = db.Get("cn=a,dc=x")
	assert.True(t, dberr.Is(err, dberr.NoSuchObject))
	_, err = db.Get("cn=c,dc=x")
	require.NoError(t, err)
	assert.Equal(t, []string{"cn=c,dc=x"}, bucketMembers(t, db, "@IDXONE:dc=x"))
	assert.Equal(t, baseSeq+4, sequenceNow(t, db))
}

// TestAddRejectsDuplicateDN checks that adding a duplicate DN fails
// with EntryExists and leaves the sequence counter untouched.
func TestAddRejectsDuplicateDN(t *testing.T) {
	db := openDB(t)
	msg := &record.Record{DN: "cn=a,dc=x", Elements: []record.Element{{Name: "cn", Values: [][]byte{[]byte("a")}}}}
	require.NoError(t, db.Add(msg))
	before := sequenceNow(t, db)

	err := db.Add(msg)
	assert.True(t, dberr.Is(err, dberr.EntryExists))
	assert.Equal(t, before, sequenceNow(t, db))

	got, err := db.Get("cn=a,dc=x")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a")}, got.Get("cn").Values)
}

// TestModifyReplaceRejectsDuplicateValues checks that a REPLACE batch
// carrying an in-batch duplicate value fails, leaving the entry and
// its index untouched.
func TestModifyReplaceRejectsDuplicateValues(t *testing.T) {
	db := openDB(t)
	seedIndexList(t, db, "cn")
	require.NoError(t, db.Add(&record.Record{
		DN:       "cn=a,dc=x",
		Elements: []record.Element{{Name: "cn", Values: [][]byte{[]byte("a")}}},
	}))

	err := db.Modify("cn=a,dc=x", []Modification{
		{Op: ModReplace, Name: "cn", Values: [][]byte{[]byte("q"), []byte("q")}},
	})
	assert.True(t, dberr.Is(err, dberr.AttributeOrValueExists))

	got, err := db.Get("cn=a,dc=x")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a")}, got.Get("cn").Values)
	assert.Equal(t, []string{"cn=a,dc=x"}, bucketMembers(t, db, "@INDEX:cn:a"))
	assert.Nil(t, bucketMembers(t, db, "@INDEX:cn:q"))
}

// TestAddIdempotenceUnderFailure checks that a failed Add due to
// EntryExists must not have mutated the store, index, or sequence
// counter, no matter how many times it is retried.
func TestAddIdempotenceUnderFailure(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.Add(&record.Record{DN: "cn=a,dc=x"}))
	before := sequenceNow(t, db)

	for i := 0; i < 3; i++ {
		err := db.Add(&record.Record{DN: "cn=a,dc=x"})
		assert.True(t, dberr.Is(err, dberr.EntryExists))
	}
	assert.Equal(t, before, sequenceNow(t, db))
}

// TestRenameEquivalenceCaseOnly checks that a case-only rename (same
// canonical key) still goes through the single-transaction path and
// ends with exactly one live entry under the new-cased DN.
func TestRenameEquivalenceCaseOnly(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.Add(&record.Record{DN: "cn=a,dc=x"}))

	require.NoError(t, db.Rename("cn=a,dc=x", "CN=a,DC=x"))

	got, err := db.Get("CN=a,DC=x")
	require.NoError(t, err)
	assert.True(t, dn.Equal(got.DN, "cn=a,dc=x"))
}

// TestTransactionalAtomicityOnMidModifyFailure checks that a Modify
// batch where a later step fails (deleting a value that isn't
// present) leaves the entry exactly as it was before any step ran.
func TestTransactionalAtomicityOnMidModifyFailure(t *testing.T) {
	db := openDB(t)
	seedIndexList(t, db, "cn")
	require.NoError(t, db.Add(&record.Record{
		DN:       "cn=a,dc=x",
		Elements: []record.Element{{Name: "cn", Values: [][]byte{[]byte("a")}}},
	}))

	err := db.Modify("cn=a,dc=x", []Modification{
		{Op: ModAdd, Name: "cn", Values: [][]byte{[]byte("b")}},
		{Op: ModDelete, Name: "cn", Values: [][]byte{[]byte("zzz")}},
	})
	assert.True(t, dberr.Is(err, dberr.NoSuchAttribute))

	got, err := db.Get("cn=a,dc=x")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a")}, got.Get("cn").Values)
	assert.Nil(t, bucketMembers(t, db, "@INDEX:cn:b"))
}

// TestDeleteNoSuchObject exercises the not-present branch of Delete.
func TestDeleteNoSuchObject(t *testing.T) {
	db := openDB(t)
	err := db.Delete("cn=absent,dc=x")
	assert.True(t, dberr.Is(err, dberr.NoSuchObject))
}

// TestModifyReplaceEmptyValuesRemovesAttribute checks that a REPLACE
// with no values clears the attribute entirely, matching the write
// path's REPLACE rule.
func TestModifyReplaceEmptyValuesRemovesAttribute(t *testing.T) {
	db := openDB(t)
	seedIndexList(t, db, "cn")
	require.NoError(t, db.Add(&record.Record{
		DN:       "cn=a,dc=x",
		Elements: []record.Element{{Name: "cn", Values: [][]byte{[]byte("a")}}},
	}))

	require.NoError(t, db.Modify("cn=a,dc=x", []Modification{
		{Op: ModReplace, Name: "cn", Values: nil},
	}))

	got, err := db.Get("cn=a,dc=x")
	require.NoError(t, err)
	assert.Nil(t, got.Get("cn"))
	assert.Nil(t, bucketMembers(t, db, "@INDEX:cn:a"))
}
