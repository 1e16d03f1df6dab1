// Package logging builds the root zerolog logger.
package logging

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// New returns a timestamped logger writing human-readable lines to console.
// Each extra writer receives the same records as raw JSON.
func New(level string, console io.Writer, extra ...io.Writer) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: console}}
	for _, w := range extra {
		if w != nil {
			writers = append(writers, w)
		}
	}

	var out io.Writer = writers[0]
	if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// ParseLevel accepts zerolog level names, case-insensitively.
func ParseLevel(level string) (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log level %q", level)
	}
	if lvl == zerolog.NoLevel {
		return zerolog.NoLevel, errors.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}
