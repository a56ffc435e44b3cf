// Package transport holds the pieces the chat transports share.
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"

	"github.com/soyeahso/dankbot/internal/domain"
)

// ErrSessionClosed is returned by Next once the session's done channel is
// closed.
var ErrSessionClosed = errors.New("session closed")

// Inbox is an unbounded FIFO of inbound events. Push never blocks, so the
// goroutine reading the connection keeps delivering send acknowledgements
// while the consumer is busy dispatching.
type Inbox struct {
	mu    sync.Mutex
	queue *deque.Deque[domain.DispatchEvent]
	ready chan struct{}
}

// NewInbox returns an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{
		queue: deque.New[domain.DispatchEvent](),
		ready: make(chan struct{}, 1),
	}
}

// Push appends ev.
func (b *Inbox) Push(ev domain.DispatchEvent) {
	b.mu.Lock()
	b.queue.PushBack(ev)
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Pop removes the oldest event.
func (b *Inbox) Pop() (domain.DispatchEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queue.Len() == 0 {
		return domain.DispatchEvent{}, false
	}
	return b.queue.PopFront(), true
}

// Len returns the number of queued events.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// Next blocks until an event is queued, errs yields a connection error, done
// is closed or ctx ends. Queued events are always returned before an error
// that arrived after them.
func (b *Inbox) Next(ctx context.Context, errs chan error, done <-chan struct{}) (domain.DispatchEvent, error) {
	for {
		if ev, ok := b.Pop(); ok {
			return ev, nil
		}
		select {
		case <-b.ready:
		case err := <-errs:
			if ev, ok := b.Pop(); ok {
				// hand the error back for the next call
				select {
				case errs <- err:
				default:
				}
				return ev, nil
			}
			return domain.DispatchEvent{}, err
		case <-done:
			if ev, ok := b.Pop(); ok {
				return ev, nil
			}
			return domain.DispatchEvent{}, ErrSessionClosed
		case <-ctx.Done():
			return domain.DispatchEvent{}, ctx.Err()
		}
	}
}
