// Package observer fans out events to any number of channel subscribers.
package observer

import (
	"sync"

	"bjoernblessin.de/groupstack/util/logger"
)

// Observable manages a set of subscribers (channels) that receive notifications.
type Observable[T any] struct {
	observers  map[chan T]*queue[T] // nil for subscribers of a buffered Observable
	mu         sync.RWMutex
	closed     bool
	bufferSize int
	queued     bool
}

// NewObservable creates a new Observable whose subscriber channels buffer up to bufferSize events.
// Notifications for a subscriber with a full buffer are dropped.
// Example: packets := NewObservable[*Packet](500)
func NewObservable[T any](bufferSize int) *Observable[T] {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Observable[T]{
		observers:  make(map[chan T]*queue[T]),
		bufferSize: bufferSize,
	}
}

// NewQueuedObservable creates an Observable that never drops notifications.
// Each subscriber gets an unbounded queue, so a slow subscriber only delays itself.
func NewQueuedObservable[T any]() *Observable[T] {
	return &Observable[T]{
		observers: make(map[chan T]*queue[T]),
		queued:    true,
	}
}

// Subscribe adds a new subscriber and returns a channel for receiving notifications.
// The channel will be closed when Unsubscribe is called or when the Observable is closed.
// A subscription on a closed Observable returns an already closed channel.
func (o *Observable[T]) Subscribe() chan T {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		ch := make(chan T)
		close(ch)
		return ch
	}

	if o.queued {
		ch := make(chan T)
		q := newQueue(ch)
		o.observers[ch] = q
		go q.run()
		return ch
	}

	ch := make(chan T, o.bufferSize)
	o.observers[ch] = nil
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
// Queued notifications not yet received are discarded.
func (o *Observable[T]) Unsubscribe(ch chan T) {
	o.mu.Lock()
	defer o.mu.Unlock()

	q, ok := o.observers[ch]
	if !ok {
		return
	}
	delete(o.observers, ch)
	if q != nil {
		q.abort()
	} else {
		close(ch)
	}
}

// NotifyObservers sends data to all currently subscribed channels. It never blocks.
func (o *Observable[T]) NotifyObservers(data T) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return
	}

	for ch, q := range o.observers {
		if q != nil {
			q.push(data)
			continue
		}
		select {
		case ch <- data:
		default:
			logger.Warnf("Subscriber channel is full, dropping %T notification", data)
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (o *Observable[T]) SubscriberCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.observers)
}

// Close unsubscribes all current subscribers and prevents new subscriptions.
// Queued subscribers still receive everything notified before Close, then their channel is closed.
func (o *Observable[T]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	o.closed = true
	for ch, q := range o.observers {
		delete(o.observers, ch)
		if q != nil {
			q.finish()
		} else {
			close(ch)
		}
	}
}

// queue feeds one subscriber channel from an unbounded FIFO.
type queue[T any] struct {
	out     chan T
	mu      sync.Mutex
	items   []T
	closing bool
	wake    chan struct{}
	stop    chan struct{}
}

func newQueue[T any](out chan T) *queue[T] {
	return &queue[T]{
		out:  out,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

func (q *queue[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal()
}

func (q *queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// finish closes the channel once every queued item was received.
func (q *queue[T]) finish() {
	q.mu.Lock()
	q.closing = true
	q.mu.Unlock()
	q.signal()
}

// abort closes the channel without handing out the rest of the queue.
func (q *queue[T]) abort() {
	close(q.stop)
}

func (q *queue[T]) run() {
	defer close(q.out)

	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closing := q.closing
			q.mu.Unlock()
			if closing {
				return
			}
			select {
			case <-q.wake:
				continue
			case <-q.stop:
				return
			}
		}

		next := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- next:
		case <-q.stop:
			return
		}
	}
}
