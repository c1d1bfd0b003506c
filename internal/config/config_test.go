package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oba-ldap/tdbdir/internal/schema"
)

func TestDefaultHasSensibleBuckets(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotZero(t, cfg.Store.Buckets)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tdbdir.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  path: /tmp/x.db
  readonly: true
schema:
  - name: mail
    syntax: directoryString
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.True(t, cfg.Store.ReadOnly)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Schema, 1)
	assert.Equal(t, "mail", cfg.Schema[0].Name)
}

func TestApplyToRegistryRejectsUnknownSyntax(t *testing.T) {
	cfg := &Config{Schema: []AttributeConfig{{Name: "x", Syntax: "bogus"}}}
	reg := schema.NewDefaultRegistry()
	err := cfg.ApplyToRegistry(reg)
	assert.Error(t, err)
}

func TestApplyToRegistryRegistersAttribute(t *testing.T) {
	cfg := &Config{Schema: []AttributeConfig{{Name: "mail", Syntax: "directoryString"}}}
	reg := schema.NewDefaultRegistry()
	require.NoError(t, cfg.ApplyToRegistry(reg))

	d := reg.Lookup("mail")
	assert.Equal(t, schema.DirectoryStringSyntax, d.Syntax)
}
