// Package gpio provides the input and output line contracts the pipeline is
// built on, with a Linux GPIO character device implementation and fakes for
// testing without hardware.
//
// Input lines are pulled up and armed for falling edges: a button press pulls
// the line low. Output lines are driven low when requested.
package gpio

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PinID identifies a line by its offset on the GPIO chip.
type PinID int

// Level is the electrical level of a line.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// InputLine is a monitored input. It belongs to the edge handler only.
type InputLine interface {
	ID() PinID

	// Pending reports whether an edge arrived since the last ClearInterrupt.
	Pending() bool

	// ClearInterrupt acknowledges any pending edge on the line.
	ClearInterrupt()

	// Level samples the current level. The sample is taken when called,
	// which may be later than the edge that raised the interrupt.
	Level() (Level, error)
}

// OutputLine is a driven output. It belongs to the output task only.
type OutputLine interface {
	ID() PinID

	// Level returns the level the line is currently driven to.
	Level() Level

	// Toggle drives the line to the opposite level.
	Toggle() error
}

// Bank owns every line requested from one chip.
type Bank interface {
	Inputs() []InputLine
	Outputs() []OutputLine
	Close() error
}

// PinLevel is the level sampled on one line.
type PinLevel struct {
	Pin   PinID
	Level Level
}

// Default wiring (line offsets on gpiochip0).
const DefaultChip = "gpiochip0"

var (
	DefaultInputs  = []PinID{8, 9, 10}
	DefaultOutputs = []PinID{1, 6, 7, 11, 20, 21}
)

// ParsePins parses a comma separated list of line offsets, e.g. "8,9,10".
func ParsePins(s string) ([]PinID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var pins []PinID
	seen := make(map[PinID]bool)
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pin %q", f)
		}
		if n < 0 {
			return nil, errors.Errorf("invalid pin %d", n)
		}
		p := PinID(n)
		if seen[p] {
			return nil, errors.Errorf("duplicate pin %d", n)
		}
		seen[p] = true
		pins = append(pins, p)
	}
	return pins, nil
}

// FormatPins is the inverse of ParsePins.
func FormatPins(pins []PinID) string {
	parts := make([]string, len(pins))
	for i, p := range pins {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, ",")
}
