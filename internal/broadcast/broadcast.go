package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"gorow/internal/stroke"
)

// QueueSize is the number of points a subscriber may fall behind before it
// is dropped.
const QueueSize = 100

type Subscription struct {
	ID uuid.UUID
	C  <-chan stroke.Point

	ch chan stroke.Point
}

// Broadcaster fans points out to subscribers without ever blocking the
// publisher.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscription
}

func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uuid.UUID]*Subscription),
	}
}

func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan stroke.Point, QueueSize)
	sub := &Subscription{ID: uuid.New(), C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Removing a subscription
// twice is harmless.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub.ID)
}

func (b *Broadcaster) remove(id uuid.UUID) {
	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

// Publish hands p to every subscriber. Subscribers whose queue is full are
// removed and their channel closed.
func (b *Broadcaster) Publish(p stroke.Point) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		select {
		case sub.ch <- p:
		default:
			b.remove(id)
		}
	}
}

func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close removes all subscribers.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.subscribers {
		b.remove(id)
	}
}
