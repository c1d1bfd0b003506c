// Package index implements the per-attribute equality indexes and the
// one-level (parent→children) index. Every index entry is itself an
// ordinary store entry: "@INDEX:<attr>:<value>"
// carries the owning DNs in its "@IDX" element, and
// "@IDXONE:<parent-dn>" carries a parent's direct children the same
// way.
package index

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/oba-ldap/tdbdir/internal/dn"
	"github.com/oba-ldap/tdbdir/internal/metacache"
	"github.com/oba-ldap/tdbdir/internal/record"
	"github.com/oba-ldap/tdbdir/internal/store"
)

// IDXElement names the element holding an index bucket's member DNs.
const IDXElement = "@IDX"

// bucketCacheSize bounds the LRU of recently touched index buckets,
// avoiding a store round trip for the common case of several writes
// touching the same bucket in a row (e.g. several entries sharing an
// indexed value). The envelope still owns transactional visibility;
// this cache is invalidated whenever a bucket is written or deleted.
const bucketCacheSize = 256

// Engine performs index maintenance against one transaction at a time.
// Callers construct a fresh Engine (or call Reset) per transaction,
// since the bucket cache is only valid within one store transaction's
// view.
type Engine struct {
	cache   *metacache.Cache
	buckets *lru.Cache[string, *record.Record]
}

// New returns an index engine consulting cache for indexed-attribute
// membership and syntax canonicalisation.
func New(cache *metacache.Cache) *Engine {
	buckets, _ := lru.New[string, *record.Record](bucketCacheSize)
	return &Engine{cache: cache, buckets: buckets}
}

// Reset drops the bucket cache; call this at the start of each new
// transaction so stale buckets from a prior transaction are never read.
func (e *Engine) Reset() {
	e.buckets.Purge()
}

func bucketDN(attr, canonValue string) string {
	return "@INDEX:" + attr + ":" + canonValue
}

func oneDN(parent string) string {
	return "@IDXONE:" + parent
}

func (e *Engine) loadBucket(tx *store.Tx, bdn string) (*record.Record, error) {
	if r, ok := e.buckets.Get(bdn); ok {
		return r, nil
	}
	key, err := dn.Key(bdn)
	if err != nil {
		return nil, err
	}
	raw, err := tx.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return &record.Record{DN: bdn}, nil
	}
	if err != nil {
		return nil, err
	}
	r, err := record.Unpack(raw)
	if err != nil {
		return nil, err
	}
	e.buckets.Add(bdn, r)
	return r, nil
}

func (e *Engine) saveBucket(tx *store.Tx, r *record.Record) error {
	el := r.Get(IDXElement)
	if el == nil || len(el.Values) == 0 {
		key, err := dn.Key(r.DN)
		if err != nil {
			return err
		}
		e.buckets.Remove(r.DN)
		return tx.Delete(key)
	}
	data, err := record.Pack(r)
	if err != nil {
		return err
	}
	key, err := dn.Key(r.DN)
	if err != nil {
		return err
	}
	e.buckets.Add(r.DN, r)
	return tx.Put(key, data, store.Modify)
}

func memberIndex(r *record.Record, target string) (elIdx, valIdx int, found bool) {
	el := r.Get(IDXElement)
	if el == nil {
		return 0, 0, false
	}
	for i, v := range el.Values {
		if string(v) == target {
			return 0, i, true
		}
	}
	return 0, 0, false
}

func (e *Engine) addMember(tx *store.Tx, bdn, target string) error {
	r, err := e.loadBucket(tx, bdn)
	if err != nil {
		return err
	}
	if _, _, found := memberIndex(r, target); found {
		return nil
	}
	el := r.Get(IDXElement)
	if el == nil {
		r.Elements = append(r.Elements, record.Element{Name: IDXElement, Values: [][]byte{[]byte(target)}})
	} else {
		el.Values = append(el.Values, []byte(target))
	}
	return e.saveBucket(tx, r)
}

func (e *Engine) removeMember(tx *store.Tx, bdn, target string) error {
	r, err := e.loadBucket(tx, bdn)
	if err != nil {
		return err
	}
	el := r.Get(IDXElement)
	if el == nil {
		return nil
	}
	_, valIdx, found := memberIndex(r, target)
	if !found {
		return nil
	}
	el.Values = append(el.Values[:valIdx], el.Values[valIdx+1:]...)
	return e.saveBucket(tx, r)
}

// IndexOne maintains only the one-level slot for entry's parent,
// adding entry's DN when add is true and removing it otherwise.
// Special DNs have no one-level slot.
func (e *Engine) IndexOne(tx *store.Tx, entry *record.Record, add bool) error {
	if dn.IsSpecial(entry.DN) {
		return nil
	}
	parent, err := dn.Parent(entry.DN)
	if err != nil {
		return errors.Wrap(err, "index: index_one")
	}
	slot := oneDN(parent)
	if add {
		return e.addMember(tx, slot, entry.DN)
	}
	return e.removeMember(tx, slot, entry.DN)
}

// IndexAdd adds entry's DN to every equality-index bucket its indexed
// attribute values belong to, plus its parent's one-level slot.
func (e *Engine) IndexAdd(tx *store.Tx, entry *record.Record) error {
	if err := e.IndexOne(tx, entry, true); err != nil {
		return err
	}
	for _, el := range entry.Elements {
		if !e.cache.IsIndexed(el.Name) {
			continue
		}
		syn := e.cache.Registry.SyntaxFor(el.Name)
		for _, v := range el.Values {
			canon := syn.Canonicalise(v)
			if err := e.addMember(tx, bucketDN(strings.ToLower(el.Name), string(canon)), entry.DN); err != nil {
				return errors.Wrap(err, "index: index_add")
			}
		}
	}
	return nil
}

// IndexDel is the inverse of IndexAdd: it removes entry's DN from
// every bucket and the one-level slot.
func (e *Engine) IndexDel(tx *store.Tx, entry *record.Record) error {
	if err := e.IndexOne(tx, entry, false); err != nil {
		return err
	}
	for _, el := range entry.Elements {
		if !e.cache.IsIndexed(el.Name) {
			continue
		}
		syn := e.cache.Registry.SyntaxFor(el.Name)
		for _, v := range el.Values {
			canon := syn.Canonicalise(v)
			if err := e.removeMember(tx, bucketDN(strings.ToLower(el.Name), string(canon)), entry.DN); err != nil {
				return errors.Wrap(err, "index: index_del")
			}
		}
	}
	return nil
}

// IndexAddValue adds the single (element.Name, element.Values[i])
// linkage for targetDN, the per-value counterpart to IndexAdd used by
// Modify's ADD and REPLACE steps so index and record stay in
// lock-step value by value.
func (e *Engine) IndexAddValue(tx *store.Tx, targetDN string, el record.Element, i int) error {
	if i < 0 || i >= len(el.Values) {
		return errors.New("index: index_add_value: value index out of range")
	}
	if !e.cache.IsIndexed(el.Name) {
		return nil
	}
	syn := e.cache.Registry.SyntaxFor(el.Name)
	canon := syn.Canonicalise(el.Values[i])
	return e.addMember(tx, bucketDN(strings.ToLower(el.Name), string(canon)), targetDN)
}

// IndexDelValue removes the single (element.Name, element.Values[i])
// linkage for targetDN, used when a Modify DELETE removes one value
// at a time so index and record stay in lock-step.
func (e *Engine) IndexDelValue(tx *store.Tx, targetDN string, el record.Element, i int) error {
	if i < 0 || i >= len(el.Values) {
		return errors.New("index: index_del_value: value index out of range")
	}
	if !e.cache.IsIndexed(el.Name) {
		return nil
	}
	syn := e.cache.Registry.SyntaxFor(el.Name)
	canon := syn.Canonicalise(el.Values[i])
	return e.removeMember(tx, bucketDN(strings.ToLower(el.Name), string(canon)), targetDN)
}

// Reindex drops every existing @INDEX and @IDXONE entry and rebuilds
// them from scratch by scanning every regular entry currently in the
// store.
func (e *Engine) Reindex(tx *store.Tx) error {
	e.Reset()

	var staleKeys []string
	if err := tx.ForEachPrefix("DN=@INDEX:", func(k string, _ []byte) bool {
		staleKeys = append(staleKeys, k)
		return true
	}); err != nil {
		return errors.Wrap(err, "index: reindex: scan @INDEX")
	}
	if err := tx.ForEachPrefix("DN=@IDXONE:", func(k string, _ []byte) bool {
		staleKeys = append(staleKeys, k)
		return true
	}); err != nil {
		return errors.Wrap(err, "index: reindex: scan @IDXONE")
	}
	for _, k := range staleKeys {
		if err := tx.Delete(k); err != nil {
			return errors.Wrap(err, "index: reindex: drop stale bucket")
		}
	}

	var entries []*record.Record
	if err := tx.ForEachPrefix("DN=", func(k string, v []byte) bool {
		if strings.HasPrefix(k, "DN=@") {
			return true
		}
		r, err := record.Unpack(v)
		if err != nil {
			return true
		}
		entries = append(entries, r)
		return true
	}); err != nil {
		return errors.Wrap(err, "index: reindex: scan entries")
	}

	for _, r := range entries {
		if err := e.IndexAdd(tx, r); err != nil {
			return errors.Wrap(err, "index: reindex: rebuild")
		}
	}
	return nil
}
