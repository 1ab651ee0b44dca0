package mqtt

import "log"

// pending is a serialized message held for replay after reconnection.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog is a fixed-capacity FIFO of messages queued while the broker
// is unreachable. Oldest messages are overwritten once full.
// Not safe for concurrent use; RealPublisher guards it with its mutex.
type backlog struct {
	slots   []pending
	head    int // next write position
	count   int
	dropped uint64
	warned  bool
}

func newBacklog(capacity int) *backlog {
	if capacity < 1 {
		capacity = 1
	}
	return &backlog{slots: make([]pending, capacity)}
}

func (b *backlog) push(msg pending) {
	size := len(b.slots)
	b.slots[b.head] = msg
	b.head = (b.head + 1) % size
	if b.count < size {
		b.count++
		return
	}
	b.dropped++
	if !b.warned {
		log.Printf("mqtt: backlog full (%d messages), dropping oldest", size)
		b.warned = true
	}
}

// drain returns queued messages oldest first and empties the backlog.
func (b *backlog) drain() []pending {
	if b.count == 0 {
		return nil
	}

	size := len(b.slots)
	out := make([]pending, b.count)
	start := (b.head - b.count + size) % size
	for i := range out {
		out[i] = b.slots[(start+i)%size]
		b.slots[(start+i)%size] = pending{}
	}

	b.count = 0
	b.head = 0
	b.warned = false
	return out
}

func (b *backlog) len() int {
	return b.count
}
