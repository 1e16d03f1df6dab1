package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const offlineBufferSize = 256

// RealPublisher publishes to an actual MQTT broker.
// Messages published while the connection is down are kept in a ring buffer
// (newest win) and replayed once the client reconnects.
type RealPublisher struct {
	client paho.Client
	log    zerolog.Logger

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. Connecting
// happens in the background and is retried until it succeeds.
func NewRealPublisher(broker string, log zerolog.Logger) *RealPublisher {
	p := &RealPublisher{
		log:    log.With().Str("component", "mqtt").Logger(),
		buffer: newRingBuffer(offlineBufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("blinkenbox").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.flush() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn().Err(err).Msg("connection lost")
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// PublishLog sends a log line at QoS 0 without waiting for the broker.
func (p *RealPublisher) PublishLog(line []byte) error {
	return p.publish(bufferedMsg{topic: TopicLog, payload: line}, 0)
}

// PublishSystem sends a system lifecycle event at QoS 1 and waits for it.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return errors.Wrap(err, "format system payload")
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}, 5*time.Second)
}

func (p *RealPublisher) publish(msg bufferedMsg, wait time.Duration) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.push(msg)
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if wait == 0 {
		return nil
	}
	if !token.WaitTimeout(wait) {
		return errors.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publish to %s", msg.topic)
	}
	return nil
}

// flush replays messages buffered while disconnected.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, dropped := p.buffer.drainAll()
	p.mu.Unlock()

	if dropped > 0 {
		bufferDroppedTotal.Add(float64(dropped))
		p.log.Warn().Int("dropped", dropped).Msg("offline buffer overflowed")
	}
	for _, msg := range msgs {
		p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	}
	if len(msgs) > 0 {
		p.log.Info().Int("count", len(msgs)).Msg("replayed buffered messages")
	}
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
