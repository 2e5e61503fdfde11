// Package eventbus fans committed state changes out to in-process listeners.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the channel capacity of each subscriber.
const DefaultBuffer = 8

// DefaultQueueLimit bounds the backlog of a Listen subscriber.
const DefaultQueueLimit = 4096

// Option configures a TypedBus.
type Option func(*options)

type options struct {
	buffer     int
	queueLimit int
}

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithQueueLimit sets the backlog a Listen subscriber may accumulate while
// its handler is busy.
func WithQueueLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueLimit = n
		}
	}
}

// TypedBus is a type-safe publish/subscribe bus for events of type T.
// Delivery never blocks the publisher. A full channel subscriber misses the
// event; Listen subscribers queue it up to the queue limit.
type TypedBus[T any] struct {
	mu         sync.RWMutex
	subs       []chan T
	queues     []*queue[T]
	closed     bool
	buffer     int
	queueLimit int
	dropped    atomic.Uint64
}

// NewTyped creates a new TypedBus.
func NewTyped[T any](opts ...Option) *TypedBus[T] {
	o := options{buffer: DefaultBuffer, queueLimit: DefaultQueueLimit}
	for _, fn := range opts {
		fn(&o)
	}
	return &TypedBus[T]{buffer: o.buffer, queueLimit: o.queueLimit}
}

// Publish sends the event to all subscribers. Delivery is non-blocking.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
	for _, q := range b.queues {
		if !q.push(e) {
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber and returns its channel.
func (b *TypedBus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

func (b *TypedBus[T]) subscribeQueue() *queue[T] {
	q := &queue[T]{limit: b.queueLimit, notify: make(chan struct{}, 1)}
	b.mu.Lock()
	if b.closed {
		q.close()
	} else {
		b.queues = append(b.queues, q)
	}
	b.mu.Unlock()
	return q
}

func (b *TypedBus[T]) unsubscribeQueue(q *queue[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cur := range b.queues {
		if cur == q {
			b.queues = append(b.queues[:i], b.queues[i+1:]...)
			return
		}
	}
}

// Len returns the number of live subscribers.
func (b *TypedBus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs) + len(b.queues)
}

// Dropped counts deliveries skipped because a subscriber was full.
func (b *TypedBus[T]) Dropped() uint64 { return b.dropped.Load() }

// Close closes the bus and all subscribers. Listen subscribers still
// receive what they had queued.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	for _, q := range b.queues {
		q.close()
	}
	b.subs = nil
	b.queues = nil
	b.mu.Unlock()
}

// Listen subscribes fn to b and calls it for every event, in publish order,
// until ctx is done or the bus is closed and drained. Events published
// while fn is busy are queued, so a slow handler does not lose a burst. The
// subscription is registered before Listen returns; the returned channel is
// closed once fn will no longer be called.
func Listen[T any](ctx context.Context, b *TypedBus[T], fn func(T)) <-chan struct{} {
	q := b.subscribeQueue()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer b.unsubscribeQueue(q)
		for {
			items, closed := q.drain()
			for _, e := range items {
				if ctx.Err() != nil {
					return
				}
				fn(e)
			}
			if len(items) > 0 {
				continue
			}
			if closed {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
			}
		}
	}()
	return done
}

// queue is the unbounded-until-limit backlog of one Listen subscriber.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	limit  int
	notify chan struct{}
}

func (q *queue[T]) push(e T) bool {
	q.mu.Lock()
	if q.closed || len(q.items) >= q.limit {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.wake()
	return true
}

func (q *queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *queue[T]) drain() ([]T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items, q.closed
}

func (q *queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
