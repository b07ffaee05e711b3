package mqtt

import (
	"log"
	"sync"
)

// pending is a formatted message waiting for the broker.
type pending struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable, oldest
// first, up to a fixed capacity. When full the oldest entry is dropped.
// A retained message replaces any retained message already queued for the
// same topic, since the broker would only keep the last one.
type outbox struct {
	mu      sync.Mutex
	slots   []pending
	start   int // oldest entry
	n       int
	dropped int // total since creation
	warned  bool
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{slots: make([]pending, capacity)}
}

func (o *outbox) at(i int) *pending {
	return &o.slots[(o.start+i)%len(o.slots)]
}

func (o *outbox) add(msg pending) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if msg.retained {
		for i := 0; i < o.n; i++ {
			if p := o.at(i); p.retained && p.topic == msg.topic {
				o.removeLocked(i)
				break
			}
		}
	}

	if o.n == len(o.slots) {
		if !o.warned {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", len(o.slots))
			o.warned = true
		}
		o.start = (o.start + 1) % len(o.slots)
		o.n--
		o.dropped++
	}
	*o.at(o.n) = msg
	o.n++
}

// removeLocked deletes entry i, keeping the remaining order.
func (o *outbox) removeLocked(i int) {
	for j := i; j < o.n-1; j++ {
		*o.at(j) = *o.at(j + 1)
	}
	*o.at(o.n - 1) = pending{}
	o.n--
}

// take empties the outbox and returns its contents oldest first.
func (o *outbox) take() []pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.n == 0 {
		return nil
	}
	out := make([]pending, o.n)
	for i := range out {
		out[i] = *o.at(i)
		*o.at(i) = pending{}
	}
	o.start, o.n = 0, 0
	o.warned = false
	return out
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}

// droppedTotal reports how many messages were discarded for lack of space.
func (o *outbox) droppedTotal() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
