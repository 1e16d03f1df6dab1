package mqtt

import "sync"

// FakePublisher records published messages for test assertions.
// It is safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	// Logs contains all log lines that were published.
	Logs [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishLogError, if set, will be returned by PublishLog.
	PublishLogError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishLog records the log line.
func (f *FakePublisher) PublishLog(line []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishLogError != nil {
		return f.PublishLogError
	}
	f.Logs = append(f.Logs, line)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// LogCount returns the number of recorded log lines.
func (f *FakePublisher) LogCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Logs)
}

// Lines returns a copy of the recorded log lines.
func (f *FakePublisher) Lines() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.Logs...)
}

// Events returns a copy of the recorded system events.
func (f *FakePublisher) Events() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Logs = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishLogError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
