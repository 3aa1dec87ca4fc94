package process

import "sync"

// eventQueue buffers events without bound and forwards them, in order, to out.
// publish never blocks.
type eventQueue struct {
	mu      sync.Mutex
	pending []Event
	wake    chan struct{}
	out     chan Event
	quit    chan struct{}
	once    sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
		quit: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *eventQueue) publish(e Event) {
	q.mu.Lock()
	q.pending = append(q.pending, e)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, e := range batch {
			select {
			case q.out <- e:
			case <-q.quit:
				return
			}
		}
		if len(batch) == 0 {
			select {
			case <-q.wake:
			case <-q.quit:
				return
			}
		}
	}
}

// close stops forwarding and closes out. Undelivered events are dropped.
func (q *eventQueue) close() {
	q.once.Do(func() { close(q.quit) })
}
