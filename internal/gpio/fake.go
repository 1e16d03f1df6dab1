package gpio

import (
	"sync"
	"sync/atomic"
)

// FakeInput is a test double for a pulled-up input line.
// Fall and Rise play the part of the hardware; everything else is what the
// edge handler sees.
type FakeInput struct {
	id PinID

	mu        sync.Mutex
	level     Level
	pending   bool
	clears    int
	reads     int
	readError error

	active   atomic.Int32
	overlaps atomic.Int32
}

// NewFakeInput creates an idle (high) input line.
func NewFakeInput(id PinID) *FakeInput {
	return &FakeInput{id: id, level: High}
}

func (f *FakeInput) ID() PinID { return f.id }

// Fall pulls the line low and marks a falling edge pending.
func (f *FakeInput) Fall() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level = Low
	f.pending = true
}

// Rise releases the line. Rising edges are not armed, so nothing is pended.
func (f *FakeInput) Rise() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level = High
}

// SetReadError makes subsequent Level calls fail with err (nil clears it).
func (f *FakeInput) SetReadError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readError = err
}

func (f *FakeInput) ClearInterrupt() {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = false
	f.clears++
}

func (f *FakeInput) Level() (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readError != nil {
		return High, f.readError
	}
	return f.level, nil
}

// Pending reports whether an edge is waiting to be cleared.
func (f *FakeInput) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// Clears returns the number of ClearInterrupt calls.
func (f *FakeInput) Clears() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

// Reads returns the number of Level calls.
func (f *FakeInput) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Overlaps returns how many times ClearInterrupt was entered while another
// call was still in progress. Anything above zero means two writers.
func (f *FakeInput) Overlaps() int { return int(f.overlaps.Load()) }

func (f *FakeInput) enter() func() {
	if f.active.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	return func() { f.active.Add(-1) }
}

// FakeOutput is a test double for a driven output line. It starts low.
type FakeOutput struct {
	id PinID

	mu          sync.Mutex
	level       Level
	toggles     int
	toggleError error

	active   atomic.Int32
	overlaps atomic.Int32
}

// NewFakeOutput creates an output line driven low.
func NewFakeOutput(id PinID) *FakeOutput {
	return &FakeOutput{id: id, level: Low}
}

func (f *FakeOutput) ID() PinID { return f.id }

func (f *FakeOutput) Level() Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

func (f *FakeOutput) Toggle() error {
	if f.active.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	defer f.active.Add(-1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.toggleError != nil {
		return f.toggleError
	}
	f.level = !f.level
	f.toggles++
	return nil
}

// SetToggleError makes subsequent Toggle calls fail with err (nil clears it).
func (f *FakeOutput) SetToggleError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggleError = err
}

// Toggles returns the number of successful toggles.
func (f *FakeOutput) Toggles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toggles
}

// Overlaps returns how many times Toggle was entered while another call was
// still in progress.
func (f *FakeOutput) Overlaps() int { return int(f.overlaps.Load()) }

// FakeBank groups fake lines the way RealBank groups real ones.
type FakeBank struct {
	inputs  []*FakeInput
	outputs []*FakeOutput

	// OnEdge, if set, is called after Fall, like the edge callback of OpenBank.
	OnEdge func()

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeBank creates idle inputs and low outputs for the given pins.
func NewFakeBank(inputs, outputs []PinID) *FakeBank {
	b := &FakeBank{}
	for _, id := range inputs {
		b.inputs = append(b.inputs, NewFakeInput(id))
	}
	for _, id := range outputs {
		b.outputs = append(b.outputs, NewFakeOutput(id))
	}
	return b
}

func (b *FakeBank) Inputs() []InputLine {
	lines := make([]InputLine, len(b.inputs))
	for i, in := range b.inputs {
		lines[i] = in
	}
	return lines
}

func (b *FakeBank) Outputs() []OutputLine {
	lines := make([]OutputLine, len(b.outputs))
	for i, out := range b.outputs {
		lines[i] = out
	}
	return lines
}

// Input returns the i-th fake input.
func (b *FakeBank) Input(i int) *FakeInput { return b.inputs[i] }

// Output returns the fake output with the given id, or nil.
func (b *FakeBank) Output(id PinID) *FakeOutput {
	for _, out := range b.outputs {
		if out.id == id {
			return out
		}
	}
	return nil
}

// Fall drives a falling edge on the i-th input and fires OnEdge.
func (b *FakeBank) Fall(i int) {
	b.inputs[i].Fall()
	if b.OnEdge != nil {
		b.OnEdge()
	}
}

// Close marks the bank as closed.
func (b *FakeBank) Close() error {
	b.Closed = true
	return nil
}
