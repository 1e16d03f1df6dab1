package internal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sweeney/blinkenbox/internal/clock"
	"github.com/sweeney/blinkenbox/internal/gpio"
	"github.com/sweeney/blinkenbox/internal/logging"
	"github.com/sweeney/blinkenbox/internal/metrics"
	"github.com/sweeney/blinkenbox/internal/mqtt"
	"github.com/sweeney/blinkenbox/internal/pipeline"
	"github.com/sweeney/blinkenbox/internal/rt"
	"github.com/sweeney/blinkenbox/internal/status"
	"github.com/sweeney/blinkenbox/internal/web"
)

var (
	inputs  = gpio.DefaultInputs
	outputs = gpio.DefaultOutputs
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func fetchStatus(t *testing.T, url string) status.StatusInner {
	t.Helper()
	resp, err := http.Get(url + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return sj.Status
}

// TestIntegrationFullFlow drives button presses through the executor and
// checks outputs, the status endpoint and the mirrored log lines.
func TestIntegrationFullFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := mqtt.NewFakePublisher()
	sink := mqtt.NewLogWriter(pub)
	go sink.Run(ctx)
	log, err := logging.New("info", io.Discard, sink)
	if err != nil {
		t.Fatal(err)
	}

	bank := gpio.NewFakeBank(inputs, outputs)
	tracker := status.NewTracker(time.Now(), status.Config{Capacity: pipeline.DefaultCapacity})
	tracker.SetOutputs(outputs, gpio.Low)

	hr, tr, err := pipeline.Split(pipeline.DefaultCapacity, bank.Inputs(), bank.Outputs(), pipeline.DefaultRoutes, clock.NewFake(1000, 1000))
	if err != nil {
		t.Fatal(err)
	}
	ex := rt.NewExecutor(ctx)
	if err := pipeline.Boot(ex, pipeline.NewHandler(hr, log, tracker), pipeline.NewTask(tr, log, tracker)); err != nil {
		t.Fatal(err)
	}
	bank.OnEdge = func() { ex.Pend(rt.VectorGPIO) }
	if err := ex.Start(); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(web.New(":0", tracker, metrics.Registry).Handler())
	defer srv.Close()

	// Press and release each button in turn.
	wantPins := []gpio.PinID{11, 20, 21}
	for i, pin := range wantPins {
		bank.Fall(i)
		waitFor(t, "toggle", func() bool { return bank.Output(pin).Toggles() == 1 })
		bank.Input(i).Rise()
	}

	st := fetchStatus(t, srv.URL)
	if st.Counts.Interrupts != 3 || st.Counts.Received != 3 || st.Counts.Toggles != 3 || st.Counts.Dropped != 0 {
		t.Errorf("counts: got %+v", st.Counts)
	}
	if st.LastEvent != "3000 ticks @ (1/16000000): 4" {
		t.Errorf("last event: got %q", st.LastEvent)
	}
	high := map[int]bool{}
	for _, o := range st.Outputs {
		if o.Level == "HIGH" {
			high[o.Pin] = true
		}
	}
	if len(high) != 3 || !high[11] || !high[20] || !high[21] {
		t.Errorf("high outputs: got %v, want 11, 20 and 21", high)
	}

	// Receipt lines reach the broker as JSON records.
	waitFor(t, "mirrored receipts", func() bool { return len(receipts(t, pub)) == 3 })
	want := []string{
		"1000 ticks @ (1/16000000): 1",
		"2000 ticks @ (1/16000000): 2",
		"3000 ticks @ (1/16000000): 4",
	}
	for i, got := range receipts(t, pub) {
		if got != want[i] {
			t.Errorf("receipt %d: got %q, want %q", i, got, want[i])
		}
	}

	cancel()
	if err := ex.Wait(); err != nil {
		t.Errorf("executor: %v", err)
	}
}

// receipts returns the messages of the output task's info lines published so far.
func receipts(t *testing.T, pub *mqtt.FakePublisher) []string {
	t.Helper()
	var out []string
	for _, line := range pub.Lines() {
		var rec struct {
			Level     string `json:"level"`
			Component string `json:"component"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			t.Fatalf("mirrored line %q is not JSON: %v", line, err)
		}
		if rec.Component == "pin_setter" && rec.Level == "info" {
			out = append(out, rec.Message)
		}
	}
	return out
}

// TestIntegrationOverflowVisibleInStatus fills the channel while the task
// is not running and checks that drops and later receipts are reported.
func TestIntegrationOverflowVisibleInStatus(t *testing.T) {
	bank := gpio.NewFakeBank(inputs, outputs)
	tracker := status.NewTracker(time.Now(), status.Config{})
	tracker.SetOutputs(outputs, gpio.Low)

	hr, tr, err := pipeline.Split(3, bank.Inputs(), bank.Outputs(), pipeline.DefaultRoutes, nil)
	if err != nil {
		t.Fatal(err)
	}
	log, err := logging.New("error", io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	handler := pipeline.NewHandler(hr, log, tracker)
	task := pipeline.NewTask(tr, log, tracker)

	srv := httptest.NewServer(web.New(":0", tracker, nil).Handler())
	defer srv.Close()

	bank.Input(1).Fall()
	for i := 0; i < 5; i++ {
		handler.OnInterrupt()
	}
	st := fetchStatus(t, srv.URL)
	if st.Counts.Interrupts != 5 || st.Counts.Enqueued != 3 || st.Counts.Dropped != 2 || st.Counts.Received != 0 {
		t.Errorf("before task runs: got %+v", st.Counts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()
	waitFor(t, "three receipts", func() bool { return tracker.Counts().Received == 3 })
	cancel()
	<-done

	st = fetchStatus(t, srv.URL)
	if st.Counts.Toggles != 3 || st.LastEvent != "-: 2" {
		t.Errorf("after task runs: counts %+v, last event %q", st.Counts, st.LastEvent)
	}
	if bank.Output(20).Level() != gpio.High {
		t.Error("three toggles from low should leave pin 20 high")
	}
}

// TestIntegrationShutdownPayload checks the retained status snapshot sent
// with a lifecycle event.
func TestIntegrationShutdownPayload(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{Broker: "tcp://localhost:1883"})
	tracker.SetOutputs([]gpio.PinID{11}, gpio.Low)
	tracker.RecordReceived("-: 1")
	tracker.RecordToggle(11, gpio.High)
	tracker.SetMQTTConnected(true)

	pub := mqtt.NewFakePublisher()
	snap := tracker.Snapshot()
	err := pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "SHUTDOWN",
		Reason:     "SIGTERM",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"),
	})
	if err != nil {
		t.Fatal(err)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads[0], &sj); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	st := sj.Status
	if st.Event != "SHUTDOWN" || st.Reason != "SIGTERM" || !st.MQTT.Connected || st.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("payload header: got %+v", st)
	}
	if len(st.Outputs) != 1 || st.Outputs[0].Level != "HIGH" || st.Outputs[0].Toggles != 1 {
		t.Errorf("payload outputs: got %+v", st.Outputs)
	}
}
