// Package logging wires structured logging for the backend engine's
// write operations (add, modify, delete, rename) with
// github.com/rs/zerolog, matching how the wider LDAP-and-storage pack
// (e.g. netresearch-ldap-manager) logs through a zerolog logger
// rather than a hand-rolled encoder.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the level and output form of New's logger.
type Config struct {
	Level  string // debug, info, warn, error; default info
	Format string // "console" for human-readable, anything else for JSON
}

// New builds a zerolog.Logger per cfg, writing to w (os.Stdout if nil).
func New(cfg Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ForOperation returns a logger with op and dn fields attached, the
// context every write-path call site logs with.
func ForOperation(base zerolog.Logger, op, dn string) zerolog.Logger {
	return base.With().Str("op", op).Str("dn", dn).Logger()
}
