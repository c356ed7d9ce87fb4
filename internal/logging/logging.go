// Package logging builds the zerolog logger every other package logs
// through. It replaces the teacher's bare fmt.Println/Printf calls with a
// single structured event sink carrying level, component and timestamp.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options controls the logger's destination, level and rendering.
type Options struct {
	// Level is one of zerolog's level strings: "debug", "info", "warn",
	// "error". Unrecognised or empty values fall back to "info".
	Level string
	// Pretty renders human-readable console output instead of JSON lines;
	// meant for interactive `vdeviced run`/`selftest` use, not production.
	Pretty bool
	// Writer overrides the output destination. Defaults to os.Stderr.
	Writer io.Writer
}

// New builds a logger from opts. It never fails: an unparseable level
// string degrades to info rather than erroring out of startup.
func New(opts Options) zerolog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if opts.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(opts.Level)
	// ParseLevel maps "" to NoLevel without an error.
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
