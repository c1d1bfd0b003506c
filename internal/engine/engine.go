// Package engine implements the write path: Add, Modify, Delete and
// Rename, each carried out inside one transaction with
// index upkeep and sequence bookkeeping. It is the component where
// the codec, key builder, schema registry, cache loader, index
// engine, transaction envelope and sequence counter meet.
package engine

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/oba-ldap/tdbdir/internal/dberr"
	"github.com/oba-ldap/tdbdir/internal/dn"
	"github.com/oba-ldap/tdbdir/internal/index"
	"github.com/oba-ldap/tdbdir/internal/metacache"
	"github.com/oba-ldap/tdbdir/internal/record"
	"github.com/oba-ldap/tdbdir/internal/schema"
	"github.com/oba-ldap/tdbdir/internal/seq"
	"github.com/oba-ldap/tdbdir/internal/store"
	"github.com/oba-ldap/tdbdir/internal/txn"
)

// ModOp names a Modify step's operation.
type ModOp int

const (
	ModAdd ModOp = iota
	ModReplace
	ModDelete
)

// Modification is one element of a Modify request.
type Modification struct {
	Op     ModOp
	Name   string
	Values [][]byte
}

// DB is the backend engine's database handle: the store, the
// transaction envelope, the cached metadata, and the index engine it
// drives. Concurrent Go callers are serialised with a mutex rather
// than assumed to cooperate, since nothing else in the process
// enforces single-threaded access.
type DB struct {
	mu     sync.Mutex
	store  *store.Store
	env    *txn.Envelope
	cache  *metacache.Cache
	idx    *index.Engine
	logger zerolog.Logger
}

// Open opens (creating if necessary) the backend store at path and
// returns a ready database handle with the well-known attribute set
// registered. Log events are discarded until SetLogger is called.
func Open(path string, opts store.Options) (*DB, error) {
	s, err := store.Open(path, opts)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	registry := schema.NewDefaultRegistry()
	cache := metacache.New(registry)
	return &DB{
		store:  s,
		env:    txn.New(s),
		cache:  cache,
		idx:    index.New(cache),
		logger: zerolog.Nop(),
	}, nil
}

// SetLogger attaches a logger that every subsequent write logs
// through, at debug level on success and warn on failure.
func (d *DB) SetLogger(l zerolog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = l
}

func (d *DB) logResult(op, targetDN string, err error) {
	if err != nil {
		d.logger.Warn().Str("op", op).Str("dn", targetDN).Err(err).Msg("write failed")
		return
	}
	d.logger.Debug().Str("op", op).Str("dn", targetDN).Msg("write committed")
}

// Close releases the underlying store handle.
func (d *DB) Close() error {
	return d.store.Close()
}

// Registry exposes the schema registry for read-only inspection.
func (d *DB) Registry() *schema.Registry {
	return d.cache.Registry
}

// HighestSequence reports the store's current change counter, the
// sequence number of the most recently committed write.
func (d *DB) HighestSequence() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.env.Begin(false); err != nil {
		return 0, mapStoreErr(err)
	}
	defer d.env.Cancel()

	n, err := seq.Highest(d.env.Tx())
	if err != nil {
		return 0, dberr.Wrap(dberr.Operations, err, "highest sequence")
	}
	return n, nil
}

func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrReadOnly):
		return dberr.Wrap(dberr.InsufficientAccess, err, "store is read-only")
	case errors.Is(err, store.ErrNotFound):
		return dberr.Wrap(dberr.NoSuchObject, err, "entry not found")
	case errors.Is(err, store.ErrExists):
		return dberr.Wrap(dberr.EntryExists, err, "entry already exists")
	default:
		return dberr.Wrap(dberr.Operations, err, "store error")
	}
}

// validateAttributesValue enforces step (i) of Add: when the target
// DN is @ATTRIBUTES, every supplied value must parse as an
// "<attr>:<flag-mask>[:<syntax-name>]" tuple.
func validateAttributesValue(msg *record.Record) error {
	if !strings.EqualFold(msg.DN, metacache.AttributesDN) {
		return nil
	}
	for _, el := range msg.Elements {
		for _, v := range el.Values {
			if _, _, _, err := schema.ParseAttributesTuple(string(v)); err != nil {
				return dberr.Wrap(dberr.InvalidAttributeSyntax, err, string(v))
			}
		}
	}
	return nil
}

// postModifyHook runs after every successful write: a reindex() if
// the touched DN is schema-affecting, and a sequence bump unless the
// touched DN is @BASEINFO itself.
func (d *DB) postModifyHook(tx *store.Tx, touchedDN string) error {
	if strings.EqualFold(touchedDN, metacache.AttributesDN) || strings.EqualFold(touchedDN, metacache.IndexListDN) {
		d.cache.Invalidate()
		if err := d.cache.Refresh(tx); err != nil {
			return dberr.Wrap(dberr.Operations, err, "refresh metadata")
		}
		if err := d.idx.Reindex(tx); err != nil {
			return dberr.Wrap(dberr.Operations, err, "reindex")
		}
	}
	if !strings.EqualFold(touchedDN, seq.BaseInfoDN) {
		if _, err := seq.Bump(tx); err != nil {
			return dberr.Wrap(dberr.Operations, err, "bump sequence")
		}
	}
	return nil
}

// Add inserts a new entry: the DN must not already exist, values of an
// @ATTRIBUTES entry must parse as attribute tuples (other entries are
// not checked against the schema registry), and the index engine is
// updated for every indexed attribute value before the transaction
// commits.
func (d *DB) Add(msg *record.Record) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.logResult("add", msg.DN, err) }()

	if err := d.env.Begin(true); err != nil {
		return mapStoreErr(err)
	}
	tx := d.env.Tx()
	d.idx.Reset()

	if err := validateAttributesValue(msg); err != nil {
		d.env.Cancel()
		return err
	}

	if err := d.cache.Refresh(tx); err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "refresh metadata")
	}

	key, err := dn.Key(msg.DN)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "key derivation")
	}
	data, err := record.Pack(msg)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "pack entry")
	}

	if err := tx.Put(key, data, store.Insert); err != nil {
		d.env.Cancel()
		if errors.Is(err, store.ErrExists) {
			return dberr.Wrap(dberr.EntryExists, err, msg.DN)
		}
		return mapStoreErr(err)
	}

	if err := d.idx.IndexAdd(tx, msg); err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "index add")
	}

	if err := d.postModifyHook(tx, msg.DN); err != nil {
		d.env.Cancel()
		return err
	}

	if err := d.env.Commit(); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// Delete removes an entry, withdrawing it from every index bucket it
// was a member of before the transaction commits.
func (d *DB) Delete(targetDN string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.logResult("delete", targetDN, err) }()

	if err := d.env.Begin(true); err != nil {
		return mapStoreErr(err)
	}
	tx := d.env.Tx()
	d.idx.Reset()

	if err := d.cache.Refresh(tx); err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "refresh metadata")
	}

	key, err := dn.Key(targetDN)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "key derivation")
	}
	raw, err := tx.Get(key)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.NoSuchObject, err, targetDN)
	}
	old, err := record.Unpack(raw)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Protocol, err, "corrupt record")
	}

	if err := tx.Delete(key); err != nil {
		d.env.Cancel()
		return mapStoreErr(err)
	}
	if err := d.idx.IndexDel(tx, old); err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "index delete")
	}

	if err := d.postModifyHook(tx, targetDN); err != nil {
		d.env.Cancel()
		return err
	}

	if err := d.env.Commit(); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// Get fetches and unpacks an entry without opening a write transaction.
func (d *DB) Get(targetDN string) (*record.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.env.Begin(false); err != nil {
		return nil, mapStoreErr(err)
	}
	tx := d.env.Tx()
	defer d.env.Cancel()

	key, err := dn.Key(targetDN)
	if err != nil {
		return nil, dberr.Wrap(dberr.Operations, err, "key derivation")
	}
	raw, err := tx.Get(key)
	if err != nil {
		return nil, dberr.Wrap(dberr.NoSuchObject, err, targetDN)
	}
	r, err := record.Unpack(raw)
	if err != nil {
		return nil, dberr.Wrap(dberr.Protocol, err, "corrupt record")
	}
	return r, nil
}

// Modify applies a batch of element-level modifications (add, replace,
// or delete values) to an existing entry, one mutation at a time, in
// the order given.
func (d *DB) Modify(targetDN string, mods []Modification) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.logResult("modify", targetDN, err) }()

	if err := d.env.Begin(true); err != nil {
		return mapStoreErr(err)
	}
	tx := d.env.Tx()
	d.idx.Reset()

	if err := d.cache.Refresh(tx); err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "refresh metadata")
	}

	key, err := dn.Key(targetDN)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "key derivation")
	}
	raw, err := tx.Get(key)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.NoSuchObject, err, targetDN)
	}
	cur, err := record.Unpack(raw)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Protocol, err, "corrupt record")
	}

	for _, mod := range mods {
		if err := d.applyModification(tx, targetDN, cur, mod); err != nil {
			d.env.Cancel()
			return err
		}
	}

	data, err := record.Pack(cur)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "pack entry")
	}
	if err := tx.Put(key, data, store.Modify); err != nil {
		d.env.Cancel()
		return mapStoreErr(err)
	}

	if err := d.postModifyHook(tx, targetDN); err != nil {
		d.env.Cancel()
		return err
	}

	if err := d.env.Commit(); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

func (d *DB) applyModification(tx *store.Tx, targetDN string, cur *record.Record, mod Modification) error {
	syn := d.cache.Registry.SyntaxFor(mod.Name)

	switch mod.Op {
	case ModAdd:
		existing := cur.Get(mod.Name)
		if existing == nil {
			cur.Elements = append(cur.Elements, record.Element{Name: mod.Name, Values: append([][]byte(nil), mod.Values...)})
			existing = cur.Get(mod.Name)
			for i := range existing.Values {
				if err := d.idx.IndexAddValue(tx, targetDN, *existing, i); err != nil {
					return dberr.Wrap(dberr.Operations, err, "index add")
				}
			}
			return nil
		}

		if err := rejectDuplicateValues(syn, existing.Values, mod.Values); err != nil {
			return err
		}

		base := len(existing.Values)
		existing.Values = append(existing.Values, mod.Values...)
		for i := base; i < len(existing.Values); i++ {
			if err := d.idx.IndexAddValue(tx, targetDN, *existing, i); err != nil {
				return dberr.Wrap(dberr.Operations, err, "index add")
			}
		}
		return nil

	case ModReplace:
		if err := rejectDuplicateValues(syn, nil, mod.Values); err != nil {
			return err
		}
		if existing := cur.Get(mod.Name); existing != nil {
			for i := range existing.Values {
				if err := d.idx.IndexDelValue(tx, targetDN, *existing, i); err != nil {
					return dberr.Wrap(dberr.Operations, err, "index delete")
				}
			}
		}
		cur.RemoveElement(mod.Name)
		if len(mod.Values) == 0 {
			return nil
		}
		cur.Elements = append(cur.Elements, record.Element{Name: mod.Name, Values: append([][]byte(nil), mod.Values...)})
		newEl := cur.Get(mod.Name)
		for i := range newEl.Values {
			if err := d.idx.IndexAddValue(tx, targetDN, *newEl, i); err != nil {
				return dberr.Wrap(dberr.Operations, err, "index add")
			}
		}
		return nil

	case ModDelete:
		existing := cur.Get(mod.Name)
		if existing == nil {
			return dberr.Wrap(dberr.NoSuchAttribute, nil, mod.Name)
		}
		if len(mod.Values) == 0 {
			for i := range existing.Values {
				if err := d.idx.IndexDelValue(tx, targetDN, *existing, i); err != nil {
					return dberr.Wrap(dberr.Operations, err, "index delete")
				}
			}
			cur.RemoveElement(mod.Name)
			return nil
		}
		for _, v := range mod.Values {
			i := findValue(syn, existing.Values, v)
			if i < 0 {
				return dberr.Wrap(dberr.NoSuchAttribute, nil, mod.Name)
			}
			if err := d.idx.IndexDelValue(tx, targetDN, *existing, i); err != nil {
				return dberr.Wrap(dberr.Operations, err, "index delete")
			}
			existing.Values = append(existing.Values[:i], existing.Values[i+1:]...)
		}
		if len(existing.Values) == 0 {
			cur.RemoveElement(mod.Name)
		}
		return nil

	default:
		return dberr.Wrap(dberr.Protocol, nil, "unknown modification flag")
	}
}

func findValue(syn *schema.Syntax, haystack [][]byte, needle []byte) int {
	for i, v := range haystack {
		if syn.Compare(v, needle) == 0 {
			return i
		}
	}
	return -1
}

// rejectDuplicateValues fails with AttributeOrValueExists if any of
// batch already appears in existing (per the attribute's comparison)
// or is duplicated within batch itself.
func rejectDuplicateValues(syn *schema.Syntax, existing [][]byte, batch [][]byte) error {
	for i, v := range batch {
		for _, ev := range existing {
			if syn.Compare(ev, v) == 0 {
				return dberr.Wrap(dberr.AttributeOrValueExists, nil, string(v))
			}
		}
		for j := i + 1; j < len(batch); j++ {
			if syn.Compare(v, batch[j]) == 0 {
				return dberr.Wrap(dberr.AttributeOrValueExists, nil, string(v))
			}
		}
	}
	return nil
}

// Rename relocates an entry to a new DN. Both the add of the new DN
// and the delete of the old DN happen inside the one transaction
// already open for this call: any failure cancels the whole
// operation rather than attempting best-effort cleanup outside the
// envelope.
func (d *DB) Rename(oldDN, newDN string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() { d.logResult("rename", oldDN+" -> "+newDN, err) }()

	if err := d.env.Begin(true); err != nil {
		return mapStoreErr(err)
	}
	tx := d.env.Tx()
	d.idx.Reset()

	if err := d.cache.Refresh(tx); err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "refresh metadata")
	}

	oldKey, err := dn.Key(oldDN)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "key derivation")
	}
	raw, err := tx.Get(oldKey)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.NoSuchObject, err, oldDN)
	}
	old, err := record.Unpack(raw)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Protocol, err, "corrupt record")
	}

	newMsg := old.Clone()
	newMsg.DN = newDN
	newKey, err := dn.Key(newDN)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "key derivation")
	}
	newData, err := record.Pack(newMsg)
	if err != nil {
		d.env.Cancel()
		return dberr.Wrap(dberr.Operations, err, "pack entry")
	}

	if dn.Equal(oldDN, newDN) {
		// Case-only change: same store key. Delete then re-add so
		// store.Insert still observes an absent key.
		if err := tx.Delete(oldKey); err != nil {
			d.env.Cancel()
			return mapStoreErr(err)
		}
		if err := d.idx.IndexDel(tx, old); err != nil {
			d.env.Cancel()
			return dberr.Wrap(dberr.Operations, err, "index delete")
		}
		if err := tx.Put(newKey, newData, store.Insert); err != nil {
			d.env.Cancel()
			return mapStoreErr(err)
		}
		if err := d.idx.IndexAdd(tx, newMsg); err != nil {
			d.env.Cancel()
			return dberr.Wrap(dberr.Operations, err, "index add")
		}
	} else {
		if err := tx.Put(newKey, newData, store.Insert); err != nil {
			d.env.Cancel()
			if errors.Is(err, store.ErrExists) {
				return dberr.Wrap(dberr.EntryExists, err, newDN)
			}
			return mapStoreErr(err)
		}
		if err := d.idx.IndexAdd(tx, newMsg); err != nil {
			d.env.Cancel()
			return dberr.Wrap(dberr.Operations, err, "index add")
		}
		if err := tx.Delete(oldKey); err != nil {
			d.env.Cancel()
			return dberr.Wrap(dberr.Operations, err, "delete old entry during rename")
		}
		if err := d.idx.IndexDel(tx, old); err != nil {
			d.env.Cancel()
			return dberr.Wrap(dberr.Operations, err, "index delete")
		}
	}

	if err := d.postModifyHook(tx, newDN); err != nil {
		d.env.Cancel()
		return err
	}

	if err := d.env.Commit(); err != nil {
		return mapStoreErr(err)
	}
	return nil
}
