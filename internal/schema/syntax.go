package schema

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Syntax is a record of four operations an attribute's syntax
// contributes to every comparison and every textual I/O path: Read
// decodes the wire bytes to their display string, Write encodes a
// display string back to wire bytes, Canonicalise maps a value to the
// form used as an index bucket key, and Compare gives a total order
// that returns zero for values the syntax treats as equal (for the
// case-folding syntaxes, values differing only in case).
type Syntax struct {
	Name         string
	Read         func([]byte) (string, error)
	Write        func(string) ([]byte, error)
	Canonicalise func([]byte) []byte
	Compare      func(a, b []byte) int
}

func identityRead(v []byte) (string, error)  { return string(v), nil }
func identityWrite(s string) ([]byte, error) { return []byte(s), nil }
func identityCanon(v []byte) []byte          { return v }
func byteCompare(a, b []byte) int            { return bytes.Compare(a, b) }

// DefaultSyntax is returned by the registry when no descriptor
// matches a name and no wildcard default is registered: octet string,
// binary compare, identity canonicalise.
var DefaultSyntax = &Syntax{
	Name:         "octetString",
	Read:         identityRead,
	Write:        identityWrite,
	Canonicalise: identityCanon,
	Compare:      byteCompare,
}

var foldCaser = cases.Fold()

func foldCasefold(v []byte) []byte {
	return []byte(foldCaser.String(norm.NFC.String(string(v))))
}

// DirectoryStringSyntax folds case and normalises Unicode before
// comparing or indexing, matching the DN syntax's own casefolding.
var DirectoryStringSyntax = &Syntax{
	Name:         "directoryString",
	Read:         identityRead,
	Write:        identityWrite,
	Canonicalise: foldCasefold,
	Compare:      func(a, b []byte) int { return bytes.Compare(foldCasefold(a), foldCasefold(b)) },
}

// DNSyntax canonicalises like DirectoryStringSyntax; the dn package
// owns the authoritative casefold, this is the schema-side mirror
// used when a DN-valued attribute is indexed or compared directly.
var DNSyntax = &Syntax{
	Name:         "dn",
	Read:         identityRead,
	Write:        identityWrite,
	Canonicalise: foldCasefold,
	Compare:      func(a, b []byte) int { return bytes.Compare(foldCasefold(a), foldCasefold(b)) },
}

// ObjectClassSyntax behaves like DirectoryStringSyntax: object class
// names are case-insensitive tokens.
var ObjectClassSyntax = &Syntax{
	Name:         "objectClass",
	Read:         identityRead,
	Write:        identityWrite,
	Canonicalise: foldCasefold,
	Compare:      func(a, b []byte) int { return bytes.Compare(foldCasefold(a), foldCasefold(b)) },
}

// OctetStringSyntax never folds or validates; any byte sequence is
// a valid value and two values are equal iff byte-identical.
var OctetStringSyntax = DefaultSyntax

// IntegerSyntax reads/writes decimal text and compares numerically so
// that "9" sorts before "10".
var IntegerSyntax = &Syntax{
	Name: "integer",
	Read: func(v []byte) (string, error) {
		if !isValidInteger(v) {
			return "", ErrInvalidSyntax
		}
		return string(v), nil
	},
	Write: func(s string) ([]byte, error) {
		if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
			return nil, ErrInvalidSyntax
		}
		return []byte(s), nil
	},
	Canonicalise: identityCanon,
	Compare: func(a, b []byte) int {
		na, erra := strconv.ParseInt(string(a), 10, 64)
		nb, errb := strconv.ParseInt(string(b), 10, 64)
		if erra != nil || errb != nil {
			return bytes.Compare(a, b)
		}
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	},
}

// BooleanSyntax accepts only the LDAP literals TRUE/FALSE.
var BooleanSyntax = &Syntax{
	Name: "boolean",
	Read: func(v []byte) (string, error) {
		s := string(v)
		if s != "TRUE" && s != "FALSE" {
			return "", ErrInvalidSyntax
		}
		return s, nil
	},
	Write: func(s string) ([]byte, error) {
		if s != "TRUE" && s != "FALSE" {
			return nil, ErrInvalidSyntax
		}
		return []byte(s), nil
	},
	Canonicalise: identityCanon,
	Compare:      byteCompare,
}

func isValidInteger(value []byte) bool {
	if len(value) == 0 {
		return false
	}
	start := 0
	if value[0] == '-' || value[0] == '+' {
		start = 1
		if len(value) == 1 {
			return false
		}
	}
	for i := start; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}

// builtinSyntaxes maps a syntax name (as written in an @ATTRIBUTES
// tuple) to its record. An empty syntax name falls back to the
// octet-string default.
var builtinSyntaxes = map[string]*Syntax{
	"dn":              DNSyntax,
	"directoryString": DirectoryStringSyntax,
	"objectClass":     ObjectClassSyntax,
	"octetString":     OctetStringSyntax,
	"integer":         IntegerSyntax,
	"boolean":         BooleanSyntax,
}

// LookupSyntax resolves a registered syntax name, or nil if unknown.
func LookupSyntax(name string) *Syntax {
	return builtinSyntaxes[name]
}
