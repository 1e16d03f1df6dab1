package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/blinkenbox/internal/channel"
	"github.com/sweeney/blinkenbox/internal/gpio"
	"github.com/sweeney/blinkenbox/internal/pinmap"
	"github.com/sweeney/blinkenbox/internal/status"
)

// DefaultRetryDelay is how long the task waits after a failed receive
// before trying again.
const DefaultRetryDelay = time.Second

// TaskResources is everything the output task owns.
type TaskResources struct {
	Rx *channel.Receiver[Event]
	// Routes maps a selector bit to the output it toggles.
	Routes pinmap.Map[uint8, gpio.PinID]
	// Outputs maps an output pin to its line.
	Outputs pinmap.Map[gpio.PinID, gpio.OutputLine]
}

// Task is the output-toggling task. It is the sole writer of every output line.
type Task struct {
	rx         *channel.Receiver[Event]
	routes     pinmap.Map[uint8, gpio.PinID]
	outputs    pinmap.Map[gpio.PinID, gpio.OutputLine]
	log        zerolog.Logger
	tracker    *status.Tracker
	retryDelay time.Duration
}

// NewTask takes ownership of res.
func NewTask(res TaskResources, log zerolog.Logger, tracker *status.Tracker) *Task {
	if tracker == nil {
		tracker = status.NewTracker(time.Now(), status.Config{})
	}
	return &Task{
		rx:         res.Rx,
		routes:     res.Routes,
		outputs:    res.Outputs,
		log:        log.With().Str("component", "pin_setter").Logger(),
		tracker:    tracker,
		retryDelay: DefaultRetryDelay,
	}
}

// SetRetryDelay changes the wait after a failed receive.
func (t *Task) SetRetryDelay(d time.Duration) {
	t.retryDelay = d
}

// Run receives and handles events until ctx is done.
// A disconnected channel is logged and retried; Run does not return for it.
func (t *Task) Run(ctx context.Context) error {
	for {
		ev, err := t.rx.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			receiveErrorsTotal.Inc()
			t.tracker.IncReceiveErrors()
			t.log.Error().Err(err).Msg("receiving message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.retryDelay):
			}
			continue
		}
		t.Handle(ev)
	}
}

// Handle logs ev and toggles every output its selector routes to.
// Bits without a route, and routes to unknown outputs, are skipped.
// It returns the number of outputs toggled.
func (t *Task) Handle(ev Event) int {
	desc := ev.String()
	t.log.Info().Msg(desc)
	eventsReceivedTotal.Inc()
	t.tracker.RecordReceived(desc)

	toggled := 0
	for bit := uint8(0); bit < MaxInputs; bit++ {
		if !ev.Selector.Has(bit) {
			continue
		}
		line, ok := t.resolve(bit)
		if !ok {
			unresolvedBitsTotal.Inc()
			t.tracker.IncUnresolved()
			continue
		}
		pin := strconv.Itoa(int(line.ID()))
		if err := line.Toggle(); err != nil {
			toggleErrorsTotal.WithLabelValues(pin).Inc()
			t.log.Error().Err(err).Int("pin", int(line.ID())).Msg("toggling output")
			continue
		}
		togglesTotal.WithLabelValues(pin).Inc()
		t.tracker.RecordToggle(line.ID(), line.Level())
		toggled++
	}
	return toggled
}

func (t *Task) resolve(bit uint8) (gpio.OutputLine, bool) {
	pin, ok := t.routes.Get(bit)
	if !ok {
		return nil, false
	}
	return t.outputs.Get(pin)
}
