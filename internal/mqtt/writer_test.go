package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLogWriterCopiesInput(t *testing.T) {
	w := NewLogWriter(NewFakePublisher())
	buf := []byte("first")
	if n, err := w.Write(buf); n != len(buf) || err != nil {
		t.Fatalf("Write: got (%d, %v)", n, err)
	}
	copy(buf, "XXXXX")

	line := <-w.queue
	if string(line) != "first" {
		t.Errorf("queued line: got %q, want %q", line, "first")
	}
}

func TestLogWriterDropsOldestWhenFull(t *testing.T) {
	w := NewLogWriter(NewFakePublisher())
	before := testutil.ToFloat64(logLinesDroppedTotal)

	for i := 0; i < logQueueSize+2; i++ {
		w.Write([]byte{byte(i % 256)})
	}

	if got := testutil.ToFloat64(logLinesDroppedTotal) - before; got != 2 {
		t.Errorf("dropped: got %v, want 2", got)
	}
	if len(w.queue) != logQueueSize {
		t.Errorf("queue length: got %d, want %d", len(w.queue), logQueueSize)
	}
	// Lines 0 and 1 were dropped.
	if first := <-w.queue; first[0] != 2 {
		t.Errorf("oldest remaining line: got %d, want 2", first[0])
	}
}

func TestLogWriterIgnoresEmptyWrites(t *testing.T) {
	w := NewLogWriter(NewFakePublisher())
	if n, err := w.Write(nil); n != 0 || err != nil {
		t.Errorf("Write(nil): got (%d, %v)", n, err)
	}
	if len(w.queue) != 0 {
		t.Error("empty write should not be queued")
	}
}

func TestLogWriterRunPublishes(t *testing.T) {
	pub := NewFakePublisher()
	w := NewLogWriter(pub)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	w.Write([]byte("one\n"))
	w.Write([]byte("two\n"))

	deadline := time.Now().Add(5 * time.Second)
	for pub.LogCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("lines not published")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if string(pub.Logs[0]) != "one\n" || string(pub.Logs[1]) != "two\n" {
		t.Errorf("published out of order: %q", pub.Logs)
	}
}

func TestLogWriterCountsPublishErrors(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishLogError = errors.New("simulated error")
	w := NewLogWriter(pub)
	before := testutil.ToFloat64(publishErrorsTotal)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	w.Write([]byte("lost\n"))
	deadline := time.Now().Add(5 * time.Second)
	for testutil.ToFloat64(publishErrorsTotal)-before < 1 {
		if time.Now().After(deadline) {
			t.Fatal("publish error not counted")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
}
