package session

import "sync"

// eventQueue is an unbounded FIFO feeding a channel. push never blocks, so
// the session can emit while its consumer is busy calling back into it.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	closed bool
	done   chan struct{}
	out    chan Event
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		done: make(chan struct{}),
		out:  make(chan Event),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// push appends an event. Events pushed after close are dropped.
func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if !q.closed {
		q.items = append(q.items, ev)
		q.cond.Signal()
	}
	q.mu.Unlock()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *eventQueue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		ev := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			return
		}
	}
}
