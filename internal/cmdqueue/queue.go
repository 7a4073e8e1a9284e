// Package cmdqueue is the thread-safe FIFO of work items shared by every
// dispatch worker (spec §4.6). It is a mutex-plus-condition-variable
// queue, not a channel, so that Shutdown can be modeled as an ordinary
// enqueued item rather than a channel-close signal (spec §5: "SHUTDOWN
// items are ordinary elements").
package cmdqueue

import (
	"container/list"
	"net"
	"sync"

	"github.com/srx-go/rpki-validator/internal/clientid"
)

// Kind identifies the work-item variant (spec §4.6).
type Kind int

const (
	ProxyMessage Kind = iota
	Shutdown
)

// Item is one unit of dispatch work: a raw protocol message from a client,
// or a shutdown sentinel for one worker.
type Item struct {
	Kind    Kind
	Payload []byte
	Client  clientid.ID
	Conn    net.Conn
}

// Queue is the FIFO of Items. One mutex guards the list; a condition
// variable blocks consumers until Push signals (spec §5).
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

// New creates an empty command queue.
func New() *Queue {
	q := &Queue{items: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item to the tail of the queue and signals one blocked
// consumer.
func (q *Queue) Push(item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items.PushBack(item)
	q.cond.Signal()
}

// Pop blocks until an item is available and returns it, FIFO order. The
// second return is false only if the queue was closed and drained.
func (q *Queue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return Item{}, false
	}
	front := q.items.Front()
	q.items.Remove(front)
	return front.Value.(Item), true
}

// Len returns the current queue depth (for metrics).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close drains nothing itself; it marks the queue closed and wakes every
// blocked consumer so they observe (Item{}, false) once the backlog is
// exhausted. Callers that want a clean worker-pool shutdown should instead
// push one Shutdown Item per worker (spec §4.6) and only Close after every
// worker has consumed its sentinel, to guarantee the queue fully drains
// first.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
