package pipeline

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/blinkenbox/internal/channel"
	"github.com/sweeney/blinkenbox/internal/clock"
	"github.com/sweeney/blinkenbox/internal/gpio"
	"github.com/sweeney/blinkenbox/internal/status"
)

// HandlerResources is everything the edge handler owns.
// Nothing in it is reachable from TaskResources.
type HandlerResources struct {
	Inputs []gpio.InputLine
	Tx     *channel.Sender[Event]
	// Clock stamps events; nil produces unstamped events.
	Clock clock.Monotonic
}

// Handler is the edge interrupt handler.
type Handler struct {
	inputs  []gpio.InputLine
	tx      *channel.Sender[Event]
	clock   clock.Monotonic
	log     zerolog.Logger
	tracker *status.Tracker
}

// NewHandler takes ownership of res.
func NewHandler(res HandlerResources, log zerolog.Logger, tracker *status.Tracker) *Handler {
	if tracker == nil {
		tracker = status.NewTracker(time.Now(), status.Config{})
	}
	return &Handler{
		inputs:  res.Inputs,
		tx:      res.Tx,
		clock:   res.Clock,
		log:     log.With().Str("component", "gpio_handler").Logger(),
		tracker: tracker,
	}
}

// OnInterrupt services one GPIO interrupt. It never blocks.
//
// Every input's pending flag is cleared, whichever line fired, so the vector
// does not immediately fire again for an edge that is already sampled here.
// Levels are read now, not at edge time. A full channel drops this event.
func (h *Handler) OnInterrupt() {
	interruptsTotal.Inc()
	h.tracker.IncInterrupts()

	ev := Event{}
	if h.clock != nil {
		ev.Time = h.clock.Now()
		ev.Timestamped = true
	}

	for i, in := range h.inputs {
		if in.Pending() {
			edgesTotal.WithLabelValues(strconv.Itoa(int(in.ID()))).Inc()
		}
		in.ClearInterrupt()
		if i >= MaxInputs {
			continue
		}
		level, err := in.Level()
		if err != nil {
			inputReadErrorsTotal.Inc()
			h.log.Error().Err(err).Int("pin", int(in.ID())).Msg("reading input in GPIO handler")
			continue
		}
		if level == gpio.Low {
			ev.Selector |= 1 << uint(i)
		}
	}

	if err := h.tx.TrySend(ev); err != nil {
		eventsDroppedTotal.Inc()
		h.tracker.IncDropped()
		h.log.Error().Err(err).
			Uint32("selector", uint32(ev.Selector)).
			Uint64("ticks", uint64(ev.Time)).
			Msg("sending from GPIO handler")
		return
	}
	eventsEnqueuedTotal.Inc()
	h.tracker.IncEnqueued()
}

