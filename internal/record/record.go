// Package record packs and unpacks directory entries to and from the
// opaque byte form stored under a DN's store key. The wire form is a
// BER SEQUENCE, encoded and decoded with the same TLV library the
// wider LDAP ecosystem uses to speak the protocol
// (github.com/go-asn1-ber/asn1-ber), rather than a bespoke
// length-prefix reader: the schema is
//
//	Record    ::= SEQUENCE { version INTEGER, dn OCTET STRING, elements SEQUENCE OF Element }
//	Element   ::= SEQUENCE { name OCTET STRING, flags INTEGER, values SEQUENCE OF OCTET STRING }
package record

import (
	"bytes"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/pkg/errors"
)

// Version is the current wire-format version stamped into every
// packed record.
const Version int64 = 1

// ErrCorruptRecord is returned by Unpack when the input is short,
// carries a malformed BER structure, or a version this package does
// not understand.
var ErrCorruptRecord = errors.New("record: corrupt record")

// Element is one named, multi-valued attribute within an entry.
// Attribute names are compared case-insensitively by callers; this
// package preserves whatever case it is given.
type Element struct {
	Name   string
	Flags  uint32
	Values [][]byte
}

// Record is the unpacked form of an entry: a DN plus its elements.
type Record struct {
	DN       string
	Elements []Element
}

// Get returns the element named name (case-insensitive), or nil.
func (r *Record) Get(name string) *Element {
	for i := range r.Elements {
		if equalFold(r.Elements[i].Name, name) {
			return &r.Elements[i]
		}
	}
	return nil
}

// RemoveElement drops the element named name (case-insensitive), if present.
func (r *Record) RemoveElement(name string) {
	for i := range r.Elements {
		if equalFold(r.Elements[i].Name, name) {
			r.Elements = append(r.Elements[:i], r.Elements[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	out := &Record{DN: r.DN, Elements: make([]Element, len(r.Elements))}
	for i, el := range r.Elements {
		values := make([][]byte, len(el.Values))
		for j, v := range el.Values {
			values[j] = append([]byte(nil), v...)
		}
		out.Elements[i] = Element{Name: el.Name, Flags: el.Flags, Values: values}
	}
	return out
}

// Pack serialises r to its on-disk byte form. Pack is total over any
// well-formed Record.
func Pack(r *Record) ([]byte, error) {
	seq := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "record")
	seq.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, Version, "version"))
	seq.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, r.DN, "dn"))

	elements := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "elements")
	for _, el := range r.Elements {
		elements.AppendChild(packElement(el))
	}
	seq.AppendChild(elements)

	return seq.Bytes(), nil
}

func packElement(el Element) *ber.Packet {
	p := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "element")
	p.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, el.Name, "name"))
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, int64(el.Flags), "flags"))

	values := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "values")
	for _, v := range el.Values {
		values.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, string(v), "value"))
	}
	p.AppendChild(values)
	return p
}

// Unpack deserialises a packed record. It fails with ErrCorruptRecord
// on short input, bad child counts, or an unrecognised version.
func Unpack(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, ErrCorruptRecord
	}

	packet, err := ber.ReadPacket(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptRecord, "ber decode: %v", err)
	}
	if len(packet.Children) != 3 {
		return nil, ErrCorruptRecord
	}

	version, ok := packet.Children[0].Value.(int64)
	if !ok || version != Version {
		return nil, ErrCorruptRecord
	}

	dn, ok := packet.Children[1].Value.(string)
	if !ok {
		return nil, ErrCorruptRecord
	}

	elementsPacket := packet.Children[2]
	elements := make([]Element, 0, len(elementsPacket.Children))
	for _, ep := range elementsPacket.Children {
		el, err := unpackElement(ep)
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
	}

	return &Record{DN: dn, Elements: elements}, nil
}

func unpackElement(p *ber.Packet) (Element, error) {
	if len(p.Children) != 3 {
		return Element{}, ErrCorruptRecord
	}
	name, ok := p.Children[0].Value.(string)
	if !ok {
		return Element{}, ErrCorruptRecord
	}
	flags, ok := p.Children[1].Value.(int64)
	if !ok || flags < 0 {
		return Element{}, ErrCorruptRecord
	}

	valuesPacket := p.Children[2]
	values := make([][]byte, 0, len(valuesPacket.Children))
	for _, vp := range valuesPacket.Children {
		s, ok := vp.Value.(string)
		if !ok {
			return Element{}, ErrCorruptRecord
		}
		values = append(values, []byte(s))
	}

	return Element{Name: name, Flags: uint32(flags), Values: values}, nil
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
