//go:build linux

package gpio

import (
	"sync/atomic"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const consumer = "blinkenbox"

// RealBank drives lines on a Linux GPIO character device.
type RealBank struct {
	chip    *gpiocdev.Chip
	inputs  []*realInput
	outputs []*realOutput
}

type realInput struct {
	id      PinID
	line    *gpiocdev.Line
	pending atomic.Bool
}

type realOutput struct {
	id    PinID
	line  *gpiocdev.Line
	level Level
}

// OpenBank requests the given lines from chipName.
// Inputs are requested with pull-up and falling edge detection; each detected
// edge marks the line pending and then calls onEdge. Outputs are requested
// driven low. onEdge runs on the gpiocdev event goroutine and must not block.
func OpenBank(chipName string, inputs, outputs []PinID, onEdge func()) (*RealBank, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, errors.Wrapf(err, "open gpio chip %s", chipName)
	}
	b := &RealBank{chip: chip}

	for _, id := range inputs {
		in := &realInput{id: id}
		handler := func(evt gpiocdev.LineEvent) {
			if evt.Type != gpiocdev.LineEventFallingEdge {
				return
			}
			in.pending.Store(true)
			if onEdge != nil {
				onEdge()
			}
		}
		line, err := chip.RequestLine(int(id),
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithEventHandler(handler))
		if err != nil {
			b.Close()
			return nil, errors.Wrapf(err, "request input pin %d", id)
		}
		in.line = line
		b.inputs = append(b.inputs, in)
	}

	for _, id := range outputs {
		line, err := chip.RequestLine(int(id), gpiocdev.AsOutput(0))
		if err != nil {
			b.Close()
			return nil, errors.Wrapf(err, "request output pin %d", id)
		}
		b.outputs = append(b.outputs, &realOutput{id: id, line: line, level: Low})
	}

	return b, nil
}

// ReadLevels samples each pin once without changing its direction, bias or
// driven value, then releases it.
func ReadLevels(chipName string, pins []PinID) ([]PinLevel, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, errors.Wrapf(err, "open gpio chip %s", chipName)
	}
	defer chip.Close()

	levels := make([]PinLevel, 0, len(pins))
	for _, id := range pins {
		line, err := chip.RequestLine(int(id), gpiocdev.AsIs)
		if err != nil {
			return nil, errors.Wrapf(err, "request pin %d", id)
		}
		v, err := line.Value()
		line.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read pin %d", id)
		}
		levels = append(levels, PinLevel{Pin: id, Level: v != 0})
	}
	return levels, nil
}

// Inputs returns the input lines in the order they were requested.
func (b *RealBank) Inputs() []InputLine {
	lines := make([]InputLine, len(b.inputs))
	for i, in := range b.inputs {
		lines[i] = in
	}
	return lines
}

// Outputs returns the output lines in the order they were requested.
func (b *RealBank) Outputs() []OutputLine {
	lines := make([]OutputLine, len(b.outputs))
	for i, out := range b.outputs {
		lines[i] = out
	}
	return lines
}

// Close releases all lines. Outputs are reverted to inputs first so nothing
// stays driven after exit.
func (b *RealBank) Close() error {
	var ae aerr.AggregateError

	for _, out := range b.outputs {
		if err := out.line.Reconfigure(gpiocdev.AsInput); err != nil {
			ae.Add(errors.Wrapf(err, "reconfigure output pin %d", out.id))
		}
		if err := out.line.Close(); err != nil {
			ae.Add(errors.Wrapf(err, "close output pin %d", out.id))
		}
	}
	for _, in := range b.inputs {
		if err := in.line.Close(); err != nil {
			ae.Add(errors.Wrapf(err, "close input pin %d", in.id))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			ae.Add(errors.Wrap(err, "close chip"))
		}
	}
	b.inputs = nil
	b.outputs = nil

	return ae.AsError()
}

func (in *realInput) ID() PinID { return in.id }

func (in *realInput) ClearInterrupt() { in.pending.Store(false) }

func (in *realInput) Pending() bool { return in.pending.Load() }

func (in *realInput) Level() (Level, error) {
	v, err := in.line.Value()
	if err != nil {
		return High, errors.Wrapf(err, "read pin %d", in.id)
	}
	return v != 0, nil
}

func (out *realOutput) ID() PinID { return out.id }

func (out *realOutput) Level() Level { return out.level }

func (out *realOutput) Toggle() error {
	next := !out.level
	v := 0
	if next {
		v = 1
	}
	if err := out.line.SetValue(v); err != nil {
		return errors.Wrapf(err, "toggle pin %d", out.id)
	}
	out.level = next
	return nil
}
