package runtime

import (
	"encoding/json"
	"sync"

	"github.com/drblury/codeshot/internal/runtime/envelope"
)

type queuedMessage struct {
	uuid string
	typ  envelope.MessageType
	data json.RawMessage
}

// dispatchQueue hands inbound messages to listeners on one worker goroutine,
// in arrival order. push never blocks, so the inbound pump keeps matching
// responses while a listener runs, including a listener that waits on a
// Request of its own.
type dispatchQueue struct {
	run func(queuedMessage)

	mu    sync.Mutex
	items []queuedMessage

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newDispatchQueue(run func(queuedMessage)) *dispatchQueue {
	q := &dispatchQueue{
		run:  run,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.drain()
	return q
}

func (q *dispatchQueue) push(m queuedMessage) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *dispatchQueue) pop() (queuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return queuedMessage{}, false
	}
	m := q.items[0]
	q.items[0] = queuedMessage{}
	q.items = q.items[1:]
	return m, true
}

func (q *dispatchQueue) drain() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}
		for {
			m, ok := q.pop()
			if !ok {
				break
			}
			select {
			case <-q.done:
				return
			default:
			}
			q.run(m)
		}
	}
}

// close stops the worker. Queued messages are dropped; a listener that is
// running finishes first.
func (q *dispatchQueue) close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.mu.Lock()
		q.items = nil
		q.mu.Unlock()
	})
}
