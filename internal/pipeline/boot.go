package pipeline

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sweeney/blinkenbox/internal/channel"
	"github.com/sweeney/blinkenbox/internal/clock"
	"github.com/sweeney/blinkenbox/internal/gpio"
	"github.com/sweeney/blinkenbox/internal/rt"
)

// Route sends selector bit Bit to output Pin.
type Route struct {
	Bit uint8
	Pin gpio.PinID
}

// DefaultRoutes maps the three buttons onto pins 11, 20 and 21.
var DefaultRoutes = []Route{{0, 11}, {1, 20}, {2, 21}}

// ParseRoutes parses "bit:pin" pairs separated by commas, e.g. "0:11,1:20".
func ParseRoutes(s string) ([]Route, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var routes []Route
	for _, f := range strings.Split(s, ",") {
		bitStr, pinStr, ok := strings.Cut(strings.TrimSpace(f), ":")
		if !ok {
			return nil, errors.Errorf("invalid route %q: want bit:pin", f)
		}
		bit, err := strconv.ParseUint(strings.TrimSpace(bitStr), 10, 8)
		if err != nil || bit >= MaxInputs {
			return nil, errors.Errorf("invalid route bit %q", bitStr)
		}
		pin, err := strconv.Atoi(strings.TrimSpace(pinStr))
		if err != nil || pin < 0 {
			return nil, errors.Errorf("invalid route pin %q", pinStr)
		}
		routes = append(routes, Route{Bit: uint8(bit), Pin: gpio.PinID(pin)})
	}
	return routes, nil
}

// FormatRoutes is the inverse of ParseRoutes.
func FormatRoutes(routes []Route) string {
	parts := make([]string, len(routes))
	for i, r := range routes {
		parts[i] = strconv.Itoa(int(r.Bit)) + ":" + strconv.Itoa(int(r.Pin))
	}
	return strings.Join(parts, ",")
}

// Split builds the event channel and divides everything into the two
// resource sets: inputs, the sending half and the clock for the handler;
// outputs, routes and the receiving half for the task.
func Split(capacity int, inputs []gpio.InputLine, outputs []gpio.OutputLine, routes []Route, clk clock.Monotonic) (HandlerResources, TaskResources, error) {
	var hr HandlerResources
	var tr TaskResources

	if len(inputs) == 0 {
		return hr, tr, errors.New("no input lines")
	}
	if len(inputs) > MaxInputs {
		return hr, tr, errors.Errorf("%d input lines, at most %d supported", len(inputs), MaxInputs)
	}
	if len(outputs) == 0 {
		return hr, tr, errors.New("no output lines")
	}

	inputPins := make(map[gpio.PinID]bool, len(inputs))
	for _, in := range inputs {
		inputPins[in.ID()] = true
	}
	for _, out := range outputs {
		if inputPins[out.ID()] {
			return hr, tr, errors.Errorf("pin %d is both input and output", out.ID())
		}
		if tr.Outputs.Contains(out.ID()) {
			return hr, tr, errors.Errorf("duplicate output pin %d", out.ID())
		}
		if err := tr.Outputs.Insert(out.ID(), out); err != nil {
			return hr, tr, errors.Wrapf(err, "output pin %d", out.ID())
		}
	}

	for _, r := range routes {
		if int(r.Bit) >= len(inputs) {
			return hr, tr, errors.Errorf("route %d:%d: only %d inputs", r.Bit, r.Pin, len(inputs))
		}
		if !tr.Outputs.Contains(r.Pin) {
			return hr, tr, errors.Errorf("route %d:%d: pin %d is not an output", r.Bit, r.Pin, r.Pin)
		}
		if tr.Routes.Contains(r.Bit) {
			return hr, tr, errors.Errorf("route %d:%d: bit %d already routed", r.Bit, r.Pin, r.Bit)
		}
		if err := tr.Routes.Insert(r.Bit, r.Pin); err != nil {
			return hr, tr, errors.Wrapf(err, "route %d:%d", r.Bit, r.Pin)
		}
	}

	tx, rx, err := channel.New[Event](capacity)
	if err != nil {
		return hr, tr, err
	}

	hr = HandlerResources{Inputs: inputs, Tx: tx, Clock: clk}
	tr.Rx = rx
	return hr, tr, nil
}

// Boot spawns the task at task priority and binds the handler to the GPIO
// vector at interrupt priority. The executor still has to be started.
// The channel_occupancy gauge follows the booted channel from here on.
func Boot(ex *rt.Executor, h *Handler, t *Task) error {
	if err := ex.Spawn("pin_setter", rt.PriorityTask, t.Run); err != nil {
		return errors.Wrap(err, "spawn output task")
	}
	if err := ex.Bind(rt.VectorGPIO, rt.PriorityInterrupt, h.OnInterrupt); err != nil {
		return errors.Wrap(err, "bind GPIO handler")
	}
	registerOccupancy(t.rx)
	return nil
}
