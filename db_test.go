package tdbdir

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oba-ldap/tdbdir/internal/config"
	"github.com/oba-ldap/tdbdir/internal/schema"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenBarePathAndRoundTrip(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Add(&Entry{DN: "cn=a,dc=x", Elements: []Element{{Name: "cn", Values: [][]byte{[]byte("a")}}}}))

	got, err := db.Get("cn=a,dc=x")
	require.NoError(t, err)
	assert.Equal(t, "cn=a,dc=x", got.DN)
}

func TestOpenURLReadOnlyRejectsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	rw, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, rw.Add(&Entry{DN: "cn=a,dc=x"}))
	require.NoError(t, rw.Close())

	ro, err := Open("tdb://" + path + "?readonly")
	require.NoError(t, err)
	defer ro.Close()

	_, err = ro.Get("cn=a,dc=x")
	require.NoError(t, err)

	err = ro.Add(&Entry{DN: "cn=b,dc=x"})
	assert.True(t, IsKind(err, KindInsufficientAccess))
}

func TestDuplicateAddErrorKind(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Add(&Entry{DN: "cn=a,dc=x"}))

	err := db.Add(&Entry{DN: "cn=a,dc=x"})
	assert.True(t, IsKind(err, KindEntryExists))
}

func TestOpenWithConfigAppliesExtraSchema(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Schema = []config.AttributeConfig{{Name: "mail", Syntax: "directoryString"}}

	db, err := OpenWithConfig(cfg)
	require.NoError(t, err)
	defer db.Close()

	d := db.Registry().Lookup("mail")
	assert.Equal(t, schema.DirectoryStringSyntax, d.Syntax)
}
