package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/oba-ldap/tdbdir/internal/schema"
	"github.com/oba-ldap/tdbdir/internal/store"
)

// Config is the complete on-disk configuration for one database
// handle: where the store lives, how it should be opened, which
// extra attributes to register, and how to log.
type Config struct {
	Store   StoreConfig       `yaml:"store"`
	Schema  []AttributeConfig `yaml:"schema"`
	Logging LogConfig         `yaml:"logging"`
}

// StoreConfig mirrors the tdb:// URL's query parameters in a
// structured, YAML-friendly form.
type StoreConfig struct {
	Path     string        `yaml:"path"`
	ReadOnly bool          `yaml:"readonly"`
	NoSync   bool          `yaml:"nosync"`
	NoMMap   bool          `yaml:"nommap"`
	Buckets  int           `yaml:"buckets"`
	FileMode uint32        `yaml:"mode"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AttributeConfig is one extra attribute to register at open time,
// beyond the well-known set the engine always carries.
type AttributeConfig struct {
	Name      string `yaml:"name"`
	Syntax    string `yaml:"syntax"`
	Fixed     bool   `yaml:"fixed"`
	Allocated bool   `yaml:"allocated"`
}

// LogConfig controls the zerolog writer and minimum level.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults: a relative store
// path, no extra schema attributes, and info-level console logging.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:    "tdbdir.db",
			Buckets: store.DefaultBuckets,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads and decodes a YAML config file at path, starting from
// Default() so unset fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse yaml")
	}
	return cfg, nil
}

// StoreOptions converts StoreConfig to the options store.Open expects.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		ReadOnly: c.Store.ReadOnly,
		NoSync:   c.Store.NoSync,
		NoMMap:   c.Store.NoMMap,
		Buckets:  c.Store.Buckets,
		FileMode: c.Store.FileMode,
		Timeout:  c.Store.Timeout,
	}
}

// ApplyToRegistry registers every configured extra attribute into reg,
// in addition to the well-known set NewDefaultRegistry already seeded.
func (c *Config) ApplyToRegistry(reg *schema.Registry) error {
	for _, a := range c.Schema {
		syn := schema.LookupSyntax(a.Syntax)
		if syn == nil {
			if a.Syntax != "" {
				return errors.Errorf("config: unknown syntax %q for attribute %q", a.Syntax, a.Name)
			}
			syn = schema.DefaultSyntax
		}
		var flags schema.Flag
		if a.Fixed {
			flags |= schema.Fixed
		}
		if a.Allocated {
			flags |= schema.Allocated
		}
		reg.Register(a.Name, flags, syn)
	}
	return nil
}
