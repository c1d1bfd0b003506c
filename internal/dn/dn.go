// Package dn parses, casefolds and builds store keys for distinguished
// names. It implements the DN syntax's canonicalisation contract used
// throughout the backend engine: every comparison of two DNs, and
// every store key derived from a DN, goes through this package.
package dn

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Parse errors.
var (
	ErrEmpty         = errors.New("dn: empty distinguished name")
	ErrInvalidRDN    = errors.New("dn: invalid RDN component")
	ErrEmptyRDNValue = errors.New("dn: empty RDN component")
)

// SpecialPrefix marks a reserved, non-user DN ("@BASEINFO", "@ATTRIBUTES", ...).
const SpecialPrefix = '@'

// keyPrefix and keyTerminator implement the store key grammar:
// key(dn) = "DN=" || casefold(dn) || "\0".
const (
	keyPrefix     = "DN="
	keyTerminator = "\x00"
)

var fold = cases.Fold()

// IsSpecial reports whether dn is a reserved "@..." name such as
// "@BASEINFO" or "@INDEX:cn:alice".
func IsSpecial(d string) bool {
	return len(d) > 0 && d[0] == SpecialPrefix
}

// Casefold canonicalises a normal DN to the case used for comparison
// and key derivation. Special DNs are reserved text emitted verbatim,
// so Casefold returns them unchanged.
//
// Folding is Unicode-aware (golang.org/x/text/cases, NFC-normalized
// first) rather than a byte-wise ASCII lowercasing, so that two DNs
// differing only by Unicode case variants compare equal.
func Casefold(d string) (string, error) {
	if d == "" {
		return "", ErrEmpty
	}
	if IsSpecial(d) {
		return d, nil
	}

	comps, err := SplitForward(d)
	if err != nil {
		return "", err
	}

	folded := make([]string, len(comps))
	for i, c := range comps {
		attr, val, err := splitRDN(c)
		if err != nil {
			return "", err
		}
		folded[i] = fold.String(norm.NFC.String(strings.ToLower(attr))) + "=" + fold.String(norm.NFC.String(val))
	}
	return strings.Join(folded, ","), nil
}

// Equal reports whether two DNs denote the same entry once casefolded.
// Two malformed DNs are never equal.
func Equal(a, b string) bool {
	if IsSpecial(a) || IsSpecial(b) {
		return a == b
	}
	fa, err := Casefold(a)
	if err != nil {
		return false
	}
	fb, err := Casefold(b)
	if err != nil {
		return false
	}
	return fa == fb
}

// Key computes the store key for an entry's DN. Special DNs are
// emitted verbatim in the "DN=" form without casefolding.
func Key(d string) (string, error) {
	if IsSpecial(d) {
		return keyPrefix + d + keyTerminator, nil
	}
	folded, err := Casefold(d)
	if err != nil {
		return "", errors.Wrap(err, "dn: key derivation failed")
	}
	return keyPrefix + folded + keyTerminator, nil
}

// Parent returns the DN of dn's parent, or "" if dn has no parent.
func Parent(d string) (string, error) {
	comps, err := SplitForward(d)
	if err != nil {
		return "", err
	}
	if len(comps) <= 1 {
		return "", nil
	}
	return strings.Join(comps[1:], ","), nil
}

// RDN returns dn's leading relative distinguished name component.
func RDN(d string) (string, error) {
	comps, err := SplitForward(d)
	if err != nil {
		return "", err
	}
	return comps[0], nil
}

// SplitForward splits a DN into its RDN components in the same
// leaf-first order they appear in the DN string
// ("uid=alice,ou=users,dc=example,dc=com" ->
// ["uid=alice", "ou=users", "dc=example", "dc=com"]), honoring
// backslash-escaped commas within a component's value.
func SplitForward(d string) ([]string, error) {
	d = strings.TrimSpace(d)
	if d == "" {
		return nil, ErrEmpty
	}

	var comps []string
	var cur strings.Builder
	escaped := false
	for i := 0; i < len(d); i++ {
		c := d[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			cur.WriteByte(c)
			escaped = true
		case c == ',':
			comp := strings.TrimSpace(cur.String())
			if comp == "" {
				return nil, ErrInvalidRDN
			}
			comps = append(comps, comp)
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	last := strings.TrimSpace(cur.String())
	if last == "" {
		return nil, ErrInvalidRDN
	}
	comps = append(comps, last)
	return comps, nil
}

// splitRDN splits one RDN component ("uid=alice") into attribute name
// and value.
func splitRDN(rdn string) (attr, value string, err error) {
	idx := strings.IndexByte(rdn, '=')
	if idx <= 0 {
		return "", "", ErrInvalidRDN
	}
	attr = strings.TrimSpace(rdn[:idx])
	value = strings.TrimSpace(rdn[idx+1:])
	if attr == "" {
		return "", "", ErrEmptyRDNValue
	}
	return attr, value, nil
}

// IsDescendantOf reports whether child is a (possibly indirect)
// descendant of parent, comparing casefolded RDN sequences.
func IsDescendantOf(child, parent string) bool {
	cc, err := SplitForward(child)
	if err != nil {
		return false
	}
	pc, err := SplitForward(parent)
	if err != nil {
		return false
	}
	if len(cc) <= len(pc) {
		return false
	}
	offset := len(cc) - len(pc)
	for i, comp := range pc {
		if !strings.EqualFold(cc[offset+i], comp) {
			return false
		}
	}
	return true
}
