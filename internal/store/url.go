package store

import (
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ErrBadURL is returned by ParseURL when the scheme is not tdb.
var ErrBadURL = errors.New("store: not a tdb:// url")

// ParseURL decodes a connection string of the form:
//
//	tdb:///var/lib/tdbdir/o=example.db?readonly=1&nosync=1&nommap=1&buckets=20000&timeout=5
//
// (timeout is a whole number of seconds, mode an octal permission
// mask) into a filesystem path and an Options value seeded from
// DefaultOptions. Query parameters are all optional; unknown ones are
// rejected rather than silently ignored, since a typo'd flag here
// would otherwise open with the wrong durability settings.
func ParseURL(raw string) (string, Options, error) {
	opts := DefaultOptions()

	u, err := url.Parse(raw)
	if err != nil {
		return "", opts, errors.Wrap(err, "store: parse url")
	}
	if u.Scheme != "tdb" {
		return "", opts, ErrBadURL
	}

	path := u.Path
	if u.Opaque != "" {
		path = u.Opaque
	}
	if path == "" {
		return "", opts, errors.Wrap(ErrBadURL, "missing path")
	}

	q := u.Query()
	for key, vals := range q {
		v := ""
		if len(vals) > 0 {
			v = vals[0]
		}
		switch key {
		case "readonly":
			opts.ReadOnly, err = parseBool(v)
		case "nosync":
			opts.NoSync, err = parseBool(v)
		case "nommap":
			opts.NoMMap, err = parseBool(v)
		case "buckets":
			var n int
			n, err = strconv.Atoi(v)
			opts.Buckets = n
		case "mode":
			var n uint64
			n, err = strconv.ParseUint(v, 8, 32)
			opts.FileMode = uint32(n)
		case "timeout":
			var d int
			d, err = strconv.Atoi(v)
			opts.Timeout = time.Duration(d) * time.Second
		default:
			return "", opts, errors.Errorf("store: unknown url parameter %q", key)
		}
		if err != nil {
			return "", opts, errors.Wrapf(err, "store: parameter %q", key)
		}
	}

	return path, opts, nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return true, nil
	}
	return strconv.ParseBool(v)
}
