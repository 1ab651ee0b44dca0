package signalk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	cws "github.com/coder/websocket"
	"github.com/sweeney/sk-sensor/internal/telemetry"
)

// DefaultQueue is the number of deltas held while the server is unreachable.
const DefaultQueue = 128

// Options configure a Client.
type Options struct {
	URL   string // e.g. ws://localhost:3000/signalk/v1/stream?subscribe=none
	Token string // bearer token, optional
	Label string // source label
	Queue int
	// Retry is the delay between reconnect attempts.
	Retry time.Duration
}

// Client publishes telemetry as Signal K deltas. Publish never blocks; a
// single writer goroutine owns the connection and reconnects on failure.
type Client struct {
	opts  Options
	queue chan []byte
	now   func() time.Time

	mu   sync.Mutex
	meta []byte

	connected atomic.Bool
	drops     atomic.Uint64
	warned    atomic.Bool
	sent      atomic.Uint64
}

// New creates a Client. Call Run to start delivering.
func New(o Options) *Client {
	if o.Queue <= 0 {
		o.Queue = DefaultQueue
	}
	if o.Retry <= 0 {
		o.Retry = 5 * time.Second
	}
	if o.Label == "" {
		o.Label = "sk-sensor"
	}
	return &Client{opts: o, queue: make(chan []byte, o.Queue), now: time.Now}
}

// SetMeta sets the metadata sent each time a connection is established.
func (c *Client) SetMeta(metas []telemetry.Meta) error {
	data, err := FormatMeta(metas)
	if err != nil {
		return fmt.Errorf("format meta: %w", err)
	}
	c.mu.Lock()
	c.meta = data
	c.mu.Unlock()
	return nil
}

// Publish queues a delta carrying one value. When the queue is full the
// oldest queued delta is discarded to make room.
func (c *Client) Publish(path string, v telemetry.Value) error {
	data, err := FormatDelta(c.opts.Label, c.now(), PathValue{Path: path, Value: v})
	if err != nil {
		return fmt.Errorf("format delta: %w", err)
	}
	select {
	case c.queue <- data:
		return nil
	default:
	}

	select {
	case <-c.queue:
		c.dropped()
	default:
	}
	select {
	case c.queue <- data:
		return nil
	default:
		c.dropped()
		return telemetry.ErrQueueFull
	}
}

// dropped counts a discarded delta and logs the first one of each outage.
func (c *Client) dropped() {
	c.drops.Add(1)
	if c.warned.CompareAndSwap(false, true) {
		log.Printf("signalk: queue full (%d deltas), dropping oldest", cap(c.queue))
	}
}

// IsConnected reports whether a server connection is open.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Drops returns the number of deltas discarded because the queue was full.
func (c *Client) Drops() uint64 {
	return c.drops.Load()
}

// Sent returns the number of deltas written to the server.
func (c *Client) Sent() uint64 {
	return c.sent.Load()
}

// Run connects and writes queued deltas until ctx is done, reconnecting
// after failures.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		c.connected.Store(false)
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("signalk: %v; retrying in %s", err, c.opts.Retry)

		t := time.NewTimer(c.opts.Retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	var dopts *cws.DialOptions
	if c.opts.Token != "" {
		dopts = &cws.DialOptions{HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + c.opts.Token},
		}}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := cws.Dial(dialCtx, c.opts.URL, dopts)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	defer conn.CloseNow()

	// Server-to-client traffic (hello, acks) is not needed.
	readCtx := conn.CloseRead(ctx)

	c.connected.Store(true)
	c.warned.Store(false)
	log.Printf("signalk: connected to %s", c.opts.URL)

	c.mu.Lock()
	meta := c.meta
	c.mu.Unlock()
	if meta != nil {
		if err := conn.Write(ctx, cws.MessageText, meta); err != nil {
			return fmt.Errorf("write meta: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(cws.StatusNormalClosure, "")
			return ctx.Err()
		case <-readCtx.Done():
			return errors.New("connection closed by server")
		case data := <-c.queue:
			if err := conn.Write(ctx, cws.MessageText, data); err != nil {
				return fmt.Errorf("write delta: %w", err)
			}
			c.sent.Add(1)
		}
	}
}
