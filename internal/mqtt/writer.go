package mqtt

import (
	"context"
)

const logQueueSize = 512

// LogWriter is an io.Writer that forwards each write as one log line to a
// Publisher. Write never blocks: when the queue is full the oldest queued
// line is discarded to make room.
type LogWriter struct {
	queue     chan []byte
	publisher Publisher
}

// NewLogWriter creates a LogWriter. Nothing is published until Run is called.
func NewLogWriter(publisher Publisher) *LogWriter {
	return &LogWriter{
		queue:     make(chan []byte, logQueueSize),
		publisher: publisher,
	}
}

// Write queues a copy of p.
func (w *LogWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	line := make([]byte, len(p))
	copy(line, p)
	for attempt := 0; attempt < 10; attempt++ {
		select {
		case w.queue <- line:
			return len(p), nil
		default:
			// Queue full; take the oldest out and try again
			select {
			case <-w.queue:
				logLinesDroppedTotal.Inc()
			default:
			}
		}
	}
	logLinesDroppedTotal.Inc()
	return len(p), nil
}

// Run publishes queued lines until ctx is done.
// Publish errors are counted, not logged, since logging would feed back here.
func (w *LogWriter) Run(ctx context.Context) error {
	for {
		select {
		case line := <-w.queue:
			if err := w.publisher.PublishLog(line); err != nil {
				publishErrorsTotal.Inc()
			}
		case <-ctx.Done():
			return nil
		}
	}
}
