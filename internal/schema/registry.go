package schema

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidSyntax is returned by a Syntax's Read/Write when a value
// does not conform, and by ParseAttributesTuple when an @ATTRIBUTES
// value fails its tuple form.
var ErrInvalidSyntax = errors.New("schema: invalid attribute syntax")

// Flag marks properties of a registered attribute.
type Flag uint32

const (
	// Fixed attributes may not be overwritten or removed by Register/Remove.
	Fixed Flag = 1 << iota
	// Allocated marks that the registry owns the descriptor's name storage
	// (as opposed to a compile-time well-known descriptor). It is stored
	// with the descriptor; neither Register nor Lookup acts on it.
	Allocated
)

// Descriptor is one registered attribute: its flags and syntax.
type Descriptor struct {
	Name   string
	Flags  Flag
	Syntax *Syntax
}

func (d Descriptor) isFixed() bool { return d.Flags&Fixed != 0 }

// Registry is the sorted-array attribute table: descriptors binary
// searched by case-insensitive name, plus one "*" wildcard entry held
// outside the sorted range as the fallback for any unregistered
// attribute. It is not safe for concurrent use without external
// synchronisation;
// the database handle serialises access to it the same way it
// serialises writes.
type Registry struct {
	entries []Descriptor // sorted by case-insensitive Name
	wildcard *Descriptor  // the "*" entry, held outside the sorted range
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry returns a registry pre-populated with the
// well-known attribute set every entry can rely on: dn,
// distinguishedName, cn, dc, ou, objectClass.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("dn", Fixed, DNSyntax)
	r.Register("distinguishedName", Fixed, DNSyntax)
	r.Register("cn", 0, DirectoryStringSyntax)
	r.Register("dc", 0, DirectoryStringSyntax)
	r.Register("ou", 0, DirectoryStringSyntax)
	r.Register("objectClass", Fixed, ObjectClassSyntax)
	return r
}

func (r *Registry) find(name string) (int, bool) {
	lower := strings.ToLower(name)
	i := sort.Search(len(r.entries), func(i int) bool {
		return strings.ToLower(r.entries[i].Name) >= lower
	})
	if i < len(r.entries) && strings.EqualFold(r.entries[i].Name, name) {
		return i, true
	}
	return i, false
}

// Register inserts or updates name's descriptor:
//   - absent: insert in sort position.
//   - present and existing is Fixed: silently succeed (ignore).
//   - present otherwise: replace flags+syntax in place.
//
// name == "*" is special-cased as the wildcard default and is never
// part of the sorted range or its binary search.
func (r *Registry) Register(name string, flags Flag, syn *Syntax) {
	if syn == nil {
		syn = DefaultSyntax
	}
	if name == "*" {
		if r.wildcard != nil && r.wildcard.isFixed() {
			return
		}
		r.wildcard = &Descriptor{Name: name, Flags: flags, Syntax: syn}
		return
	}

	i, found := r.find(name)
	if found {
		if r.entries[i].isFixed() {
			return
		}
		r.entries[i].Flags = flags
		r.entries[i].Syntax = syn
		return
	}

	r.entries = append(r.entries, Descriptor{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = Descriptor{Name: name, Flags: flags, Syntax: syn}
}

// Remove deletes name's descriptor, refusing Fixed entries. Reports
// whether a descriptor was actually removed.
func (r *Registry) Remove(name string) bool {
	if name == "*" {
		if r.wildcard == nil || r.wildcard.isFixed() {
			return false
		}
		r.wildcard = nil
		return true
	}

	i, found := r.find(name)
	if !found || r.entries[i].isFixed() {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return true
}

// Lookup returns name's descriptor, the wildcard default if no exact
// match exists, or DefaultSyntax wrapped in a synthetic descriptor if
// neither is registered.
func (r *Registry) Lookup(name string) Descriptor {
	if i, found := r.find(name); found {
		return r.entries[i]
	}
	if r.wildcard != nil {
		return *r.wildcard
	}
	return Descriptor{Name: name, Syntax: DefaultSyntax}
}

// SyntaxFor is a convenience accessor returning just the resolved
// syntax for name.
func (r *Registry) SyntaxFor(name string) *Syntax {
	return r.Lookup(name).Syntax
}

// Len reports the number of non-wildcard registered descriptors.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Names returns every registered non-wildcard attribute name, in
// sorted order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, d := range r.entries {
		names[i] = d.Name
	}
	return names
}

// ParseAttributesTuple parses one value of an @ATTRIBUTES entry:
// "<attr>:<flag-mask>[:<syntax-name>]". flag-mask is a decimal
// bitfield; absence of syntax-name implies octet-string.
func ParseAttributesTuple(tuple string) (name string, flags Flag, syn *Syntax, err error) {
	parts := strings.SplitN(tuple, ":", 3)
	if len(parts) < 2 {
		return "", 0, nil, errors.Wrapf(ErrInvalidSyntax, "attribute tuple %q", tuple)
	}

	name = parts[0]
	if name == "" {
		return "", 0, nil, errors.Wrapf(ErrInvalidSyntax, "attribute tuple %q: empty name", tuple)
	}

	mask, convErr := parseDecimalFlags(parts[1])
	if convErr != nil {
		return "", 0, nil, errors.Wrapf(ErrInvalidSyntax, "attribute tuple %q: bad flag mask", tuple)
	}
	flags = mask

	syn = OctetStringSyntax
	if len(parts) == 3 && parts[2] != "" {
		syn = LookupSyntax(parts[2])
		if syn == nil {
			return "", 0, nil, errors.Wrapf(ErrInvalidSyntax, "attribute tuple %q: unknown syntax %q", tuple, parts[2])
		}
	}

	return name, flags, syn, nil
}

func parseDecimalFlags(s string) (Flag, error) {
	var n uint64
	if s == "" {
		return 0, ErrInvalidSyntax
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, ErrInvalidSyntax
		}
		n = n*10 + uint64(c-'0')
	}
	return Flag(n), nil
}
