package realtime

import (
	"context"
	"sync"
)

// DefaultSubscriptionBuffer is the per-subscription event buffer used when
// no other size is configured.
const DefaultSubscriptionBuffer = 64

// MemoryBroker routes events between publishers and subscribers of the same
// process. Per-recipient order follows publish order; events for users with
// a full or absent subscription are dropped.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[int64][]*Subscription
	buffer int
}

// NewMemoryBroker creates an in-process broker. A buffer of 0 falls back to
// DefaultSubscriptionBuffer.
func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}

	return &MemoryBroker{
		subs:   make(map[int64][]*Subscription),
		buffer: buffer,
	}
}

// Publish delivers the event to every live subscription of its user. It
// never blocks.
func (b *MemoryBroker) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[event.UserID] {
		sub.deliver(event)
	}

	return nil
}

// Subscribe opens a feed of events addressed to userID.
func (b *MemoryBroker) Subscribe(_ context.Context, userID int64) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sub *Subscription
	sub = newSubscription(b.buffer, func() {
		b.unsubscribe(userID, sub)
	})
	b.subs[userID] = append(b.subs[userID], sub)

	return sub, nil
}

func (b *MemoryBroker) unsubscribe(userID int64, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.subs[userID][:0]
	for _, candidate := range b.subs[userID] {
		if candidate != sub {
			remaining = append(remaining, candidate)
		}
	}

	if len(remaining) == 0 {
		delete(b.subs, userID)
		return
	}

	b.subs[userID] = remaining
}
