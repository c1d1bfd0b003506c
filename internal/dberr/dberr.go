// Package dberr defines the error kinds the backend engine surfaces
// to callers: what each kind means, not how a particular underlying
// failure spells it. Every lower-layer error — from the
// store, the codec, or the schema registry — is mapped at the call
// site into exactly one of these before it crosses the engine's API.
package dberr

import "github.com/pkg/errors"

// Kind classifies an engine-level error.
type Kind int

const (
	_ Kind = iota
	// Operations marks an internal invariant violation or allocation
	// failure; the caller may retry at its discretion.
	Operations
	// Protocol marks a malformed request: unknown mod flag, corrupt
	// record on fetch.
	Protocol
	// Busy marks lock contention in the underlying file engine; the
	// caller may retry.
	Busy
	// NoSuchObject marks a target DN not present when required.
	NoSuchObject
	// EntryExists marks an add that collides with an existing DN.
	EntryExists
	// NoSuchAttribute marks a delete/modify target attribute missing.
	NoSuchAttribute
	// AttributeOrValueExists marks an add that collides on a per-value basis.
	AttributeOrValueExists
	// InvalidAttributeSyntax marks an @ATTRIBUTES value failing its tuple form.
	InvalidAttributeSyntax
	// InsufficientAccess marks a write against a read-only store.
	InsufficientAccess
	// UnsupportedCriticalExtension marks an unrecognised critical control.
	UnsupportedCriticalExtension
)

func (k Kind) String() string {
	switch k {
	case Operations:
		return "operations error"
	case Protocol:
		return "protocol error"
	case Busy:
		return "busy"
	case NoSuchObject:
		return "no such object"
	case EntryExists:
		return "entry already exists"
	case NoSuchAttribute:
		return "no such attribute"
	case AttributeOrValueExists:
		return "attribute or value exists"
	case InvalidAttributeSyntax:
		return "invalid attribute syntax"
	case InsufficientAccess:
		return "insufficient access"
	case UnsupportedCriticalExtension:
		return "unsupported critical extension"
	default:
		return "unknown error"
	}
}

// Error wraps a Kind with a human-readable message stamped with the
// database context (target DN, attribute, or operation) that produced it.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Kind.String() + ": " + e.Message
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, dberr.ErrEntryExists) compare by Kind rather
// than by pointer identity, since Wrap mints a fresh *Error per call.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind with a message.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind, preserving cause for
// errors.Is/As and %+v stack traces via pkg/errors.
func Wrap(kind Kind, cause error, message string) error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, cause: errors.WithMessage(cause, message)}
}

// Is reports whether err is a dberr *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

var (
	ErrOperations                   = New(Operations, "")
	ErrProtocol                     = New(Protocol, "")
	ErrBusy                         = New(Busy, "")
	ErrNoSuchObject                 = New(NoSuchObject, "")
	ErrEntryExists                  = New(EntryExists, "")
	ErrNoSuchAttribute              = New(NoSuchAttribute, "")
	ErrAttributeOrValueExists       = New(AttributeOrValueExists, "")
	ErrInvalidAttributeSyntax       = New(InvalidAttributeSyntax, "")
	ErrInsufficientAccess           = New(InsufficientAccess, "")
	ErrUnsupportedCriticalExtension = New(UnsupportedCriticalExtension, "")
)
