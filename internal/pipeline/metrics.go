package pipeline

import (
	"github.com/sweeney/blinkenbox/internal/channel"
	"github.com/sweeney/blinkenbox/internal/metrics"
)

const subSystem = "pipeline"

var (
	// Total number of edge handler invocations
	interruptsTotal = metrics.MustRegisterCounter(subSystem,
		"interrupts_total",
		"Total number of edge handler invocations")
	// Total number of edges latched per input pin
	edgesTotal = metrics.MustRegisterCounterVec(subSystem,
		"edges_total",
		"Total number of edges latched per input pin",
		"pin")
	// Total number of events accepted by the channel
	eventsEnqueuedTotal = metrics.MustRegisterCounter(subSystem,
		"events_enqueued_total",
		"Total number of events accepted by the channel")
	// Total number of events dropped because the channel was full
	eventsDroppedTotal = metrics.MustRegisterCounter(subSystem,
		"events_dropped_total",
		"Total number of events dropped because the channel was full")
	// Total number of input reads that failed in the edge handler
	inputReadErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"input_read_errors_total",
		"Total number of input reads that failed in the edge handler")
	// Total number of events received by the output task
	eventsReceivedTotal = metrics.MustRegisterCounter(subSystem,
		"events_received_total",
		"Total number of events received by the output task")
	// Total number of failed receives
	receiveErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"receive_errors_total",
		"Total number of failed receives")
	// Total number of selector bits that did not resolve to an output
	unresolvedBitsTotal = metrics.MustRegisterCounter(subSystem,
		"unresolved_selector_bits_total",
		"Total number of selector bits that did not resolve to an output")
	// Total number of output toggles per pin
	togglesTotal = metrics.MustRegisterCounterVec(subSystem,
		"toggles_total",
		"Total number of output toggles per pin",
		"pin")
	// Total number of failed output toggles per pin
	toggleErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"toggle_errors_total",
		"Total number of failed output toggles per pin",
		"pin")
)

// registerOccupancy reports the fill level of rx as the channel_occupancy gauge.
func registerOccupancy(rx *channel.Receiver[Event]) {
	metrics.SetGaugeFunc(subSystem,
		"channel_occupancy",
		"Number of events waiting in the channel",
		func() float64 { return float64(rx.Len()) })
}
