package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/sk-sensor/internal/telemetry"
)

// DefaultBacklog is the number of messages held while disconnected.
const DefaultBacklog = 256

// writeTimeout bounds how long a publish waits on a connection that is open
// but not draining.
const writeTimeout = 2 * time.Second

// Options configure a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Prefix   string
	Backlog  int
}

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Telemetry is published
// without waiting on delivery; while the connection is down messages are
// queued in a bounded backlog and replayed on reconnect. A connected client
// can still stall for up to writeTimeout, so callers on the loop go through
// Async.
type RealPublisher struct {
	client client
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	backlog *backlog
}

// NewRealPublisher creates a publisher connected to the given broker.
// A last-will OFFLINE message is registered on the system topic.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Prefix == "" {
		o.Prefix = DefaultTopicPrefix
	}
	if o.ClientID == "" {
		o.ClientID = o.Prefix
	}
	if o.Backlog <= 0 {
		o.Backlog = DefaultBacklog
	}

	p := &RealPublisher{
		prefix:  o.Prefix,
		now:     time.Now,
		backlog: newBacklog(o.Backlog),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWriteTimeout(writeTimeout).
		SetBinaryWill(SystemTopic(o.Prefix), WillPayload(), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.replay() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(opts)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// ConnectRetry keeps trying in the background.
		log.Printf("mqtt: broker %s not reachable yet, buffering", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func newPublisherWithClient(c client, prefix string, backlog int) *RealPublisher {
	return &RealPublisher{client: c, prefix: prefix, now: time.Now, backlog: newBacklog(backlog)}
}

// Publish sends a telemetry value to <prefix>/<path with dots as slashes>.
func (p *RealPublisher) Publish(path string, v telemetry.Value) error {
	payload, err := FormatPayload(path, v, p.now())
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	p.send(pending{topic: Topic(p.prefix, path), payload: payload})
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	msg := pending{topic: SystemTopic(p.prefix), payload: payload, qos: 1, retained: event.Retained}
	if !p.client.IsConnectionOpen() {
		p.queue(msg)
		return nil
	}

	// QoS 1 for lifecycle events.
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !event.Wait {
		return nil
	}
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

func (p *RealPublisher) send(msg pending) {
	if !p.client.IsConnectionOpen() {
		p.queue(msg)
		return
	}
	p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
}

func (p *RealPublisher) queue(msg pending) {
	p.mu.Lock()
	p.backlog.push(msg)
	p.mu.Unlock()
}

// replay publishes everything queued while disconnected.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.backlog.drain()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	log.Printf("mqtt: connected, replaying %d buffered messages", len(msgs))
	for _, m := range msgs {
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backlog.len()
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
