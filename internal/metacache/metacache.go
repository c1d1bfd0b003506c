// Package metacache implements the cache/metadata loader: the
// in-memory view of @ATTRIBUTES and @INDEXLIST, refreshed on demand
// before every write and before sensitive reads. The loader stamps
// the sequence number it last loaded at; if @BASEINFO's sequence is
// unchanged since then, the cached view is reused rather than
// re-parsed.
package metacache

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/oba-ldap/tdbdir/internal/dn"
	"github.com/oba-ldap/tdbdir/internal/record"
	"github.com/oba-ldap/tdbdir/internal/schema"
	"github.com/oba-ldap/tdbdir/internal/seq"
	"github.com/oba-ldap/tdbdir/internal/store"
)

// AttributesDN and IndexListDN are the special entries this loader reads.
const (
	AttributesDN = "@ATTRIBUTES"
	IndexListDN  = "@INDEXLIST"
)

// IndexedAttrElement names the @INDEXLIST element whose values list
// the attributes to equality-index.
const IndexedAttrElement = "attr"

// Cache holds the materialised metadata view and the sequence number
// it was refreshed at.
type Cache struct {
	Registry *schema.Registry

	indexed map[string]bool
	lastSeq uint64
	loaded  bool
}

// New returns a cache backed by the given registry (typically
// schema.NewDefaultRegistry()). The registry is mutated in place by
// Refresh as @ATTRIBUTES entries are discovered.
func New(registry *schema.Registry) *Cache {
	return &Cache{Registry: registry, indexed: make(map[string]bool)}
}

// Refresh reloads @ATTRIBUTES and @INDEXLIST if @BASEINFO's sequence
// number has advanced since the last load, or if never loaded. It
// must run inside an active transaction (it reads, never writes).
func (c *Cache) Refresh(tx *store.Tx) error {
	current, err := seq.Highest(tx)
	if err != nil {
		return errors.Wrap(err, "metacache: refresh")
	}
	if c.loaded && current == c.lastSeq {
		return nil
	}

	if err := c.loadAttributes(tx); err != nil {
		return errors.Wrap(err, "metacache: load @ATTRIBUTES")
	}
	if err := c.loadIndexList(tx); err != nil {
		return errors.Wrap(err, "metacache: load @INDEXLIST")
	}

	c.lastSeq = current
	c.loaded = true
	return nil
}

func (c *Cache) loadAttributes(tx *store.Tx) error {
	key, _ := dn.Key(AttributesDN)
	raw, err := tx.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	r, err := record.Unpack(raw)
	if err != nil {
		return err
	}

	for _, el := range r.Elements {
		for _, v := range el.Values {
			name, flags, syn, err := schema.ParseAttributesTuple(string(v))
			if err != nil {
				return err
			}
			c.Registry.Register(name, flags, syn)
		}
	}
	return nil
}

func (c *Cache) loadIndexList(tx *store.Tx) error {
	indexed := make(map[string]bool)

	key, _ := dn.Key(IndexListDN)
	raw, err := tx.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		c.indexed = indexed
		return nil
	}
	if err != nil {
		return err
	}

	r, err := record.Unpack(raw)
	if err != nil {
		return err
	}

	for _, el := range r.Elements {
		if !strings.EqualFold(el.Name, IndexedAttrElement) {
			continue
		}
		for _, v := range el.Values {
			indexed[strings.ToLower(string(v))] = true
		}
	}

	c.indexed = indexed
	return nil
}

// IsIndexed reports whether name is named in the current @INDEXLIST.
func (c *Cache) IsIndexed(name string) bool {
	return c.indexed[strings.ToLower(name)]
}

// IndexedAttributes returns every attribute name currently indexed.
func (c *Cache) IndexedAttributes() []string {
	names := make([]string, 0, len(c.indexed))
	for n := range c.indexed {
		names = append(names, n)
	}
	return names
}

// Invalidate forces the next Refresh to reload unconditionally,
// regardless of the observed sequence number. The write path calls
// this after any change to @ATTRIBUTES or @INDEXLIST themselves,
// since those writes may not yet have bumped the sequence relative to
// a concurrent reader's last-seen value.
func (c *Cache) Invalidate() {
	c.loaded = false
}
