// Package seq maintains the monotonically non-decreasing change
// counter and last-modified timestamp held in the @BASEINFO special
// entry. Every successful write to a non-@BASEINFO DN bumps the
// counter exactly once, inside the same transaction as the
// triggering write.
package seq

import (
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/oba-ldap/tdbdir/internal/dn"
	"github.com/oba-ldap/tdbdir/internal/record"
	"github.com/oba-ldap/tdbdir/internal/store"
)

// BaseInfoDN is the special DN holding the sequence counter.
const BaseInfoDN = "@BASEINFO"

// AttrSequenceNumber and AttrWhenChanged name @BASEINFO's two elements.
const (
	AttrSequenceNumber = "sequenceNumber"
	AttrWhenChanged    = "whenChanged"
)

// TimestampLayout is the fixed whenChanged form: YYYYmmddHHMMSS.0Z.
const TimestampLayout = "20060102150405.0Z"

// ErrCorruptBaseInfo is returned when @BASEINFO exists but its
// sequenceNumber or whenChanged elements cannot be parsed.
var ErrCorruptBaseInfo = errors.New("seq: corrupt @BASEINFO entry")

func baseInfoKey() string {
	k, _ := dn.Key(BaseInfoDN)
	return k
}

func load(tx *store.Tx) (*record.Record, error) {
	raw, err := tx.Get(baseInfoKey())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &record.Record{DN: BaseInfoDN}, nil
		}
		return nil, err
	}
	return record.Unpack(raw)
}

func save(tx *store.Tx, r *record.Record) error {
	data, err := record.Pack(r)
	if err != nil {
		return err
	}
	return tx.Put(baseInfoKey(), data, store.Modify)
}

// Highest returns the current sequence number, or zero if @BASEINFO
// has never been written.
func Highest(tx *store.Tx) (uint64, error) {
	r, err := load(tx)
	if err != nil {
		return 0, err
	}
	el := r.Get(AttrSequenceNumber)
	if el == nil || len(el.Values) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(el.Values[0]), 10, 64)
	if err != nil {
		return 0, errors.Wrap(ErrCorruptBaseInfo, "sequenceNumber")
	}
	return n, nil
}

// Next returns Highest()+1 without modifying @BASEINFO.
func Next(tx *store.Tx) (uint64, error) {
	h, err := Highest(tx)
	if err != nil {
		return 0, err
	}
	return h + 1, nil
}

// HighestTimestamp decodes the whenChanged value, or the zero time if
// @BASEINFO has never been written.
func HighestTimestamp(tx *store.Tx) (time.Time, error) {
	r, err := load(tx)
	if err != nil {
		return time.Time{}, err
	}
	el := r.Get(AttrWhenChanged)
	if el == nil || len(el.Values) == 0 {
		return time.Time{}, nil
	}
	ts, err := time.Parse(TimestampLayout, string(el.Values[0]))
	if err != nil {
		return time.Time{}, errors.Wrap(ErrCorruptBaseInfo, "whenChanged")
	}
	return ts, nil
}

// Bump reads @BASEINFO, increments sequenceNumber by one, sets
// whenChanged to the current UTC time, and writes it back within tx.
// It returns the new sequence number.
func Bump(tx *store.Tx) (uint64, error) {
	r, err := load(tx)
	if err != nil {
		return 0, err
	}

	next, err := Highest(tx)
	if err != nil {
		return 0, err
	}
	next++

	now := time.Now().UTC().Truncate(time.Second).Format(TimestampLayout)
	setElement(r, AttrSequenceNumber, strconv.FormatUint(next, 10))
	setElement(r, AttrWhenChanged, now)

	if err := save(tx, r); err != nil {
		return 0, err
	}
	return next, nil
}

func setElement(r *record.Record, name, value string) {
	if el := r.Get(name); el != nil {
		el.Values = [][]byte{[]byte(value)}
		return
	}
	r.Elements = append(r.Elements, record.Element{Name: name, Values: [][]byte{[]byte(value)}})
}
