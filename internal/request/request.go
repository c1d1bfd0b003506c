// Package request implements the request adapter: it allocates a
// handle per inbound request, rejects unrecognised critical controls,
// dispatches to the matching write-path or sequence operation,
// transitions the handle to done regardless of outcome, and invokes
// the caller's continuation exactly once.
package request

import (
	"github.com/google/uuid"

	"github.com/oba-ldap/tdbdir/internal/dberr"
	"github.com/oba-ldap/tdbdir/internal/engine"
	"github.com/oba-ldap/tdbdir/internal/record"
)

// State is a request handle's lifecycle stage.
type State int

const (
	Init State = iota
	Pending
	Done
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Pending:
		return "pending"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Control is an LDAP-style request control. A control flagged
// Critical that the dispatcher does not recognise fails the whole
// request rather than being silently ignored.
type Control struct {
	OID      string
	Critical bool
}

// Op names the operation a request carries out.
type Op int

const (
	OpAdd Op = iota
	OpModify
	OpDelete
	OpRename
	OpGet
	OpHighestCommittedSeq
)

// Request is one inbound call dispatched through a handle.
type Request struct {
	Op       Op
	DN       string
	NewDN    string
	Entry    *record.Record
	Mods     []engine.Modification
	Controls []Control
}

// Continuation is invoked exactly once when a handle reaches Done.
type Continuation func(h *Handle)

// Handle is the per-request state the adapter tracks: its generated
// id, current state, and the result of dispatch once it runs.
type Handle struct {
	ID     string
	state  State
	Err    error
	Seq    uint64
	Result *record.Record
}

func (h *Handle) State() State { return h.state }

// knownControls lists the control OIDs this dispatcher recognises.
// None are defined yet, so any control flagged critical is rejected.
var knownControls = map[string]bool{}

func isSupported(c Control) bool {
	return knownControls[c.OID]
}

// Dispatcher routes a Request to the backend engine. It owns one
// engine.DB; it is not safe for concurrent use from multiple
// goroutines without external synchronisation.
type Dispatcher struct {
	db *engine.DB
}

// NewDispatcher returns a dispatcher driving db.
func NewDispatcher(db *engine.DB) *Dispatcher {
	return &Dispatcher{db: db}
}

// Handle begins a new handle in state Init for req, dispatches it,
// transitions to Done regardless of outcome, and invokes cont exactly
// once if supplied.
func (d *Dispatcher) Handle(req Request, cont Continuation) *Handle {
	h := &Handle{ID: uuid.NewString(), state: Init}

	h.state = Pending
	h.Err = d.dispatch(req, h)
	h.state = Done

	if cont != nil {
		cont(h)
	}
	return h
}

func (d *Dispatcher) dispatch(req Request, h *Handle) error {
	for _, c := range req.Controls {
		if c.Critical && !isSupported(c) {
			return dberr.ErrUnsupportedCriticalExtension
		}
	}

	switch req.Op {
	case OpAdd:
		if req.Entry == nil {
			return dberr.New(dberr.Protocol, "add: missing entry")
		}
		return d.db.Add(req.Entry)
	case OpModify:
		return d.db.Modify(req.DN, req.Mods)
	case OpDelete:
		return d.db.Delete(req.DN)
	case OpRename:
		return d.db.Rename(req.DN, req.NewDN)
	case OpGet:
		r, err := d.db.Get(req.DN)
		if err != nil {
			return err
		}
		h.Result = r
		return nil
	case OpHighestCommittedSeq:
		n, err := d.db.HighestSequence()
		if err != nil {
			return err
		}
		h.Seq = n
		return nil
	default:
		return dberr.New(dberr.Protocol, "unknown request op")
	}
}
