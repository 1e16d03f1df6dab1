// Package status provides a thread-safe status tracker for the blinkenbox daemon.
// It is read by the HTTP handlers and the heartbeat.
//
// Counters written from the edge handler are atomics so that recording them
// never blocks; everything else sits behind an RWMutex.
package status

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/blinkenbox/internal/gpio"
)

// Config contains daemon configuration for display.
type Config struct {
	Chip        string
	Inputs      string
	Outputs     string
	Routes      string
	Capacity    int
	Timestamps  bool
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Counts are pipeline counters since startup.
type Counts struct {
	Interrupts    uint64
	Enqueued      uint64
	Dropped       uint64
	Received      uint64
	Toggles       uint64
	Unresolved    uint64
	ReceiveErrors uint64
}

// OutputState is the last known state of one output line.
type OutputState struct {
	Pin     gpio.PinID
	Level   gpio.Level
	Toggles uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Counts        Counts
	LastEvent     string
	Outputs       []OutputState
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state.
type Tracker struct {
	interrupts    atomic.Uint64
	enqueued      atomic.Uint64
	dropped       atomic.Uint64
	received      atomic.Uint64
	toggles       atomic.Uint64
	unresolved    atomic.Uint64
	receiveErrors atomic.Uint64

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// IncInterrupts counts one edge handler invocation. Safe from interrupt context.
func (t *Tracker) IncInterrupts() { t.interrupts.Add(1) }

// IncEnqueued counts one event accepted by the channel. Safe from interrupt context.
func (t *Tracker) IncEnqueued() { t.enqueued.Add(1) }

// IncDropped counts one event dropped on a full channel. Safe from interrupt context.
func (t *Tracker) IncDropped() { t.dropped.Add(1) }

// IncUnresolved counts one selector bit that mapped to no output.
func (t *Tracker) IncUnresolved() { t.unresolved.Add(1) }

// IncReceiveErrors counts one failed receive.
func (t *Tracker) IncReceiveErrors() { t.receiveErrors.Add(1) }

// SetOutputs registers the output lines in display order, all at the given level.
func (t *Tracker) SetOutputs(pins []gpio.PinID, level gpio.Level) {
	outputs := make([]OutputState, len(pins))
	for i, p := range pins {
		outputs[i] = OutputState{Pin: p, Level: level}
	}
	t.mu.Lock()
	t.snap.Outputs = outputs
	t.mu.Unlock()
}

// RecordReceived stores the description of the last received event.
func (t *Tracker) RecordReceived(desc string) {
	t.received.Add(1)
	t.mu.Lock()
	t.snap.LastEvent = desc
	t.mu.Unlock()
}

// RecordToggle stores the new level of pin.
func (t *Tracker) RecordToggle(pin gpio.PinID, level gpio.Level) {
	t.toggles.Add(1)
	t.mu.Lock()
	for i := range t.snap.Outputs {
		if t.snap.Outputs[i].Pin == pin {
			t.snap.Outputs[i].Level = level
			t.snap.Outputs[i].Toggles++
			break
		}
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Counts returns the current counters.
func (t *Tracker) Counts() Counts {
	return Counts{
		Interrupts:    t.interrupts.Load(),
		Enqueued:      t.enqueued.Load(),
		Dropped:       t.dropped.Load(),
		Received:      t.received.Load(),
		Toggles:       t.toggles.Load(),
		Unresolved:    t.unresolved.Load(),
		ReceiveErrors: t.receiveErrors.Load(),
	}
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Outputs = append([]OutputState(nil), t.snap.Outputs...)
	t.mu.RUnlock()
	s.Counts = t.Counts()
	s.Now = time.Now()
	return s
}
