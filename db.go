// Package tdbdir is the public facade over the embedded directory
// database backend: opening a store, dispatching add/modify/delete/
// rename/get requests, and reading the change sequence. Everything
// underneath internal/ is wired through here; callers outside this
// module only ever see this package.
package tdbdir

import (
	"strings"

	"github.com/oba-ldap/tdbdir/internal/config"
	"github.com/oba-ldap/tdbdir/internal/dberr"
	"github.com/oba-ldap/tdbdir/internal/engine"
	"github.com/oba-ldap/tdbdir/internal/logging"
	"github.com/oba-ldap/tdbdir/internal/record"
	"github.com/oba-ldap/tdbdir/internal/request"
	"github.com/oba-ldap/tdbdir/internal/schema"
	"github.com/oba-ldap/tdbdir/internal/store"
)

// Re-exported error kinds and sentinels so callers can classify a
// failed call without importing internal/dberr directly.
const (
	KindOperations                   = dberr.Operations
	KindProtocol                     = dberr.Protocol
	KindBusy                         = dberr.Busy
	KindNoSuchObject                 = dberr.NoSuchObject
	KindEntryExists                  = dberr.EntryExists
	KindNoSuchAttribute              = dberr.NoSuchAttribute
	KindAttributeOrValueExists       = dberr.AttributeOrValueExists
	KindInvalidAttributeSyntax       = dberr.InvalidAttributeSyntax
	KindInsufficientAccess           = dberr.InsufficientAccess
	KindUnsupportedCriticalExtension = dberr.UnsupportedCriticalExtension
)

// IsKind reports whether err carries the given error kind.
func IsKind(err error, kind dberr.Kind) bool { return dberr.Is(err, kind) }

// Entry, Element, Modification and ModOp mirror the backend engine's
// wire-level types so callers never import internal/ packages
// directly.
type (
	Entry        = record.Record
	Element      = record.Element
	Modification = engine.Modification
	ModOp        = engine.ModOp
)

const (
	ModAdd     = engine.ModAdd
	ModReplace = engine.ModReplace
	ModDelete  = engine.ModDelete
)

// Options mirrors the store's open options.
type Options = store.Options

// DB is an open directory database handle.
type DB struct {
	engine *engine.DB
	disp   *request.Dispatcher
}

// Open opens (creating if necessary) the backend store named by a
// bare filesystem path or a tdb://-scheme URL, registers the
// well-known attribute set, and returns a ready handle.
func Open(target string) (*DB, error) {
	if !strings.HasPrefix(target, "tdb://") {
		return OpenWithOptions(target, store.DefaultOptions())
	}
	path, opts, err := store.ParseURL(target)
	if err != nil {
		return nil, err
	}
	return OpenWithOptions(path, opts)
}

// OpenWithOptions opens path with explicit options, bypassing URL parsing.
func OpenWithOptions(path string, opts Options) (*DB, error) {
	e, err := engine.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &DB{engine: e, disp: request.NewDispatcher(e)}, nil
}

// OpenWithConfig opens a database from a fully parsed config.Config
// (see internal/config): the store is opened with cfg's options, its
// extra schema attributes are registered, and its logging settings
// drive the engine's write-path logger.
func OpenWithConfig(cfg *config.Config) (*DB, error) {
	db, err := OpenWithOptions(cfg.Store.Path, cfg.StoreOptions())
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyToRegistry(db.Registry()); err != nil {
		db.Close()
		return nil, err
	}
	db.engine.SetLogger(logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, nil))
	return db, nil
}

// Close releases the underlying store handle.
func (d *DB) Close() error {
	return d.engine.Close()
}

// Registry exposes the schema attribute registry.
func (d *DB) Registry() *schema.Registry {
	return d.engine.Registry()
}

// Add inserts a new entry.
func (d *DB) Add(e *Entry) error {
	h := d.disp.Handle(request.Request{Op: request.OpAdd, Entry: e}, nil)
	return h.Err
}

// Delete removes an entry.
func (d *DB) Delete(dn string) error {
	h := d.disp.Handle(request.Request{Op: request.OpDelete, DN: dn}, nil)
	return h.Err
}

// Modify applies a batch of element-level modifications.
func (d *DB) Modify(dn string, mods []Modification) error {
	h := d.disp.Handle(request.Request{Op: request.OpModify, DN: dn, Mods: mods}, nil)
	return h.Err
}

// Rename relocates an entry to a new DN.
func (d *DB) Rename(oldDN, newDN string) error {
	h := d.disp.Handle(request.Request{Op: request.OpRename, DN: oldDN, NewDN: newDN}, nil)
	return h.Err
}

// Get fetches an entry by DN.
func (d *DB) Get(dn string) (*Entry, error) {
	h := d.disp.Handle(request.Request{Op: request.OpGet, DN: dn}, nil)
	if h.Err != nil {
		return nil, h.Err
	}
	return h.Result, nil
}

// HighestSequence reports the store's current change counter.
func (d *DB) HighestSequence() (uint64, error) {
	h := d.disp.Handle(request.Request{Op: request.OpHighestCommittedSeq}, nil)
	if h.Err != nil {
		return 0, h.Err
	}
	return h.Seq, nil
}
