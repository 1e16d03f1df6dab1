package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/blinkenbox/internal/clock"
	"github.com/sweeney/blinkenbox/internal/gpio"
	"github.com/sweeney/blinkenbox/internal/metrics"
	"github.com/sweeney/blinkenbox/internal/rt"
)

func TestHandlerSamplesActiveLines(t *testing.T) {
	f := newFixture(t, 3, clock.NewFake(1000, 16))

	f.bank.Input(0).Fall()
	f.bank.Input(2).Fall()
	f.handler.OnInterrupt()

	ev, ok, err := f.task.rx.TryRecv()
	if err != nil || !ok {
		t.Fatalf("expected an event, got ok=%v err=%v", ok, err)
	}
	if ev.Selector != 0b101 {
		t.Errorf("Selector: got %b, want 101", ev.Selector)
	}
	if !ev.Timestamped || ev.Time != 1000 {
		t.Errorf("timestamp: got (%v, %d), want (true, 1000)", ev.Timestamped, ev.Time)
	}
}

func TestHandlerClearsEveryLine(t *testing.T) {
	f := newFixture(t, 3, nil)

	f.bank.Input(1).Fall()
	f.bank.Input(2).Fall()
	f.handler.OnInterrupt()

	for i := range testInputs {
		in := f.bank.Input(i)
		if in.Pending() {
			t.Errorf("input %d still pending", i)
		}
		if in.Clears() != 1 {
			t.Errorf("input %d: Clears got %d, want 1", i, in.Clears())
		}
	}
}

func TestHandlerCountsLatchedEdgesPerPin(t *testing.T) {
	f := newFixture(t, 3, nil)
	before := map[string]float64{}
	for _, pin := range []string{"8", "9", "10"} {
		before[pin] = testutil.ToFloat64(edgesTotal.WithLabelValues(pin))
	}

	f.bank.Input(0).Fall()
	f.bank.Input(2).Fall()
	f.handler.OnInterrupt()
	// Nothing new is latched, so a second run counts no edges.
	f.handler.OnInterrupt()

	want := map[string]float64{"8": 1, "9": 0, "10": 1}
	for pin, w := range want {
		if got := testutil.ToFloat64(edgesTotal.WithLabelValues(pin)) - before[pin]; got != w {
			t.Errorf("pin %s edges: got %v, want %v", pin, got, w)
		}
	}
}

func TestHandlerWithoutClock(t *testing.T) {
	f := newFixture(t, 3, nil)

	f.bank.Input(1).Fall()
	f.handler.OnInterrupt()

	ev, _, _ := f.task.rx.TryRecv()
	if ev.Timestamped {
		t.Error("expected unstamped event")
	}
	if ev.Selector != 0b010 {
		t.Errorf("Selector: got %b, want 010", ev.Selector)
	}
}

// TestHandlerSamplesAtRunTime checks the accepted race: a line released
// before the handler runs is sampled as idle.
func TestHandlerSamplesAtRunTime(t *testing.T) {
	f := newFixture(t, 3, nil)

	f.bank.Input(0).Fall()
	f.bank.Input(0).Rise()
	f.handler.OnInterrupt()

	ev, ok, _ := f.task.rx.TryRecv()
	if !ok {
		t.Fatal("expected an event")
	}
	if ev.Selector != 0 {
		t.Errorf("Selector: got %b, want 0", ev.Selector)
	}
}

func TestHandlerReadErrorSkipsLine(t *testing.T) {
	f := newFixture(t, 3, nil)
	before := testutil.ToFloat64(inputReadErrorsTotal)

	f.bank.Input(0).Fall()
	f.bank.Input(1).Fall()
	f.bank.Input(0).SetReadError(errors.New("simulated error"))
	f.handler.OnInterrupt()

	ev, _, _ := f.task.rx.TryRecv()
	if ev.Selector != 0b010 {
		t.Errorf("Selector: got %b, want 010", ev.Selector)
	}
	if got := testutil.ToFloat64(inputReadErrorsTotal) - before; got != 1 {
		t.Errorf("input read errors: got %v, want 1", got)
	}
	if n := f.logs.count(t, "error", "gpio_handler"); n != 1 {
		t.Errorf("handler error lines: got %d, want 1", n)
	}
}

func TestHandlerDropsWhenFull(t *testing.T) {
	f := newFixture(t, 3, clock.NewFake(0, 1))
	droppedBefore := testutil.ToFloat64(eventsDroppedTotal)
	enqueuedBefore := testutil.ToFloat64(eventsEnqueuedTotal)

	f.bank.Input(1).Fall()
	for i := 0; i < 5; i++ {
		f.handler.OnInterrupt()
	}

	if got := testutil.ToFloat64(eventsDroppedTotal) - droppedBefore; got != 2 {
		t.Errorf("dropped: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(eventsEnqueuedTotal) - enqueuedBefore; got != 3 {
		t.Errorf("enqueued: got %v, want 3", got)
	}
	c := f.tracker.Counts()
	if c.Interrupts != 5 || c.Enqueued != 3 || c.Dropped != 2 {
		t.Errorf("tracker counts: got %+v", c)
	}

	var errs []logLine
	for _, l := range f.logs.lines(t) {
		if l.Level == "error" {
			errs = append(errs, l)
		}
	}
	if len(errs) != 2 {
		t.Fatalf("error lines: got %d, want 2", len(errs))
	}
	for _, l := range errs {
		if l.Message != "sending from GPIO handler" || l.Error != "channel full" || l.Selector != 0b010 {
			t.Errorf("unexpected error line: %+v", l)
		}
	}
}

func TestHandlerNeverBlocks(t *testing.T) {
	f := newFixture(t, 1, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			f.handler.OnInterrupt()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler blocked on a full channel")
	}
	if f.task.rx.Len() != 1 {
		t.Errorf("occupancy: got %d, want 1", f.task.rx.Len())
	}
}

func TestOccupancyGaugeFollowsBootedChannel(t *testing.T) {
	f := newFixture(t, 3, nil)
	if err := Boot(rt.NewExecutor(context.Background()), f.handler, f.task); err != nil {
		t.Fatal(err)
	}

	// A task built later but never booted does not take over the gauge.
	other := newFixture(t, 3, nil)
	other.handler.OnInterrupt()

	f.handler.OnInterrupt()
	f.handler.OnInterrupt()
	if got := gaugeValue(t, "blinkenbox_pipeline_channel_occupancy"); got != 2 {
		t.Errorf("occupancy gauge: got %v, want 2", got)
	}
	f.drain(t)
	if got := gaugeValue(t, "blinkenbox_pipeline_channel_occupancy"); got != 0 {
		t.Errorf("occupancy gauge after drain: got %v, want 0", got)
	}

	// Booting again replaces the gauge instead of failing registration.
	if err := Boot(rt.NewExecutor(context.Background()), other.handler, other.task); err != nil {
		t.Fatal(err)
	}
	if got := gaugeValue(t, "blinkenbox_pipeline_channel_occupancy"); got != 1 {
		t.Errorf("occupancy gauge after second boot: got %v, want 1", got)
	}
}

func gaugeValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) == 1 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestHandlerDoesNotTouchOutputs(t *testing.T) {
	f := newFixture(t, 3, nil)
	f.bank.Input(0).Fall()
	for i := 0; i < 3; i++ {
		f.handler.OnInterrupt()
	}
	for _, id := range testOutputs {
		if f.bank.Output(id).Toggles() != 0 || f.bank.Output(id).Level() != gpio.Low {
			t.Errorf("output %d changed by the handler", id)
		}
	}
}
