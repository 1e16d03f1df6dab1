// Package pipeline turns edge interrupts into output toggles.
//
// The Handler runs in interrupt context: it samples every input line into a
// Selector, stamps it, and tries to enqueue an Event without blocking. The
// Task is the only code that touches output lines: it receives Events in
// order and toggles the outputs the Selector routes to.
package pipeline

import (
	"strconv"

	"github.com/sweeney/blinkenbox/internal/clock"
)

// MaxInputs is the number of input lines a Selector can describe.
const MaxInputs = 32

// DefaultCapacity is the default number of events the channel buffers.
const DefaultCapacity = 3

// Selector has bit i set when input line i was active (low) at sample time.
type Selector uint32

// Has reports whether bit is set.
func (s Selector) Has(bit uint8) bool {
	return bit < MaxInputs && s&(1<<bit) != 0
}

func (s Selector) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// Event is the message passed from the handler to the task.
// It is plain data and is copied in and out of the channel.
type Event struct {
	Time        clock.Instant
	Timestamped bool
	Selector    Selector
}

// String renders the event as "<timestamp>: <selector>", with "-" in place
// of the timestamp when the event is not stamped.
func (e Event) String() string {
	ts := "-"
	if e.Timestamped {
		ts = e.Time.String()
	}
	return ts + ": " + e.Selector.String()
}
