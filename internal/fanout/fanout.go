// Package fanout broadcasts aggregator.Summary snapshots to many concurrent
// streaming subscribers with lossy backpressure (spec.md §4.6). The
// subscriber registry follows the teacher's inprocbus idiom; the broadcast
// logic itself (bounded per-subscriber buffer, drop-oldest, lag counting) is
// new, since no library in the corpus implements lossy fan-out.
package fanout

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/BullionBear/sequex/internal/aggregator"
)

// Envelope wraps a delivered Summary with the number of summaries the
// receiver missed immediately before it, per spec.md §4.6's lag semantics.
type Envelope struct {
	Summary aggregator.Summary
	Lagged  int
}

// Broadcaster is the summary sink the aggregator publishes to. It never
// blocks: a subscriber that cannot keep up loses its oldest buffered
// summary rather than stalling the publisher.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[uint64]*Subscription
	nextID      uint64
	bufferSize  int
	closed      bool
}

var _ aggregator.Sink = (*Broadcaster)(nil)

// New constructs a Broadcaster whose subscriber channels are each bounded
// at bufferSize entries.
func New(bufferSize int) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]*Subscription),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new receiver. It observes only summaries published
// after this call returns (spec.md §4.6, "subscribe-after" semantics).
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id: b.nextID,
		ch: make(chan Envelope, b.bufferSize),
		b:  b,
	}
	b.nextID++

	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes a receiver; its channel is closed so in-flight reads
// observe stream end rather than blocking forever.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub.id]; !ok {
		return
	}
	delete(b.subscribers, sub.id)
	close(sub.ch)
}

// Publish delivers summary to every current subscriber, never blocking.
func (b *Broadcaster) Publish(summary aggregator.Summary) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(summary)
	}
}

// Close ends the broadcast: every current and future subscriber observes
// stream end (spec.md §4.6, "on server shutdown").
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}

// Subscription is one receiver's view of the broadcast.
type Subscription struct {
	id      uint64
	ch      chan Envelope
	dropped int64 // atomic; accumulated drops not yet reported to the receiver
	b       *Broadcaster
}

// Recv blocks for the next Envelope, or returns ok=false if the broadcast
// closed or ctx was cancelled first.
func (s *Subscription) Recv(ctx context.Context) (Envelope, bool) {
	select {
	case env, ok := <-s.ch:
		return env, ok
	case <-ctx.Done():
		return Envelope{}, false
	}
}

// deliver is the non-blocking single-producer path: try a direct send;
// on a full buffer, drop the oldest buffered envelope and retry once.
func (s *Subscription) deliver(summary aggregator.Summary) {
	env := Envelope{Summary: summary}

	select {
	case s.ch <- env:
		return
	default:
	}

	select {
	case <-s.ch:
		atomic.AddInt64(&s.dropped, 1)
	default:
	}
	env.Lagged = int(atomic.SwapInt64(&s.dropped, 0))

	select {
	case s.ch <- env:
	default:
		// A concurrent Publish filled the slot we just freed; count this
		// summary, and the lag it carried, as drops rather than block the
		// publisher.
		atomic.AddInt64(&s.dropped, int64(env.Lagged)+1)
	}
}
