package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/ziplend/loancoord-go/domain"
)

// EventType discriminates the push events a user can receive.
type EventType string

const (
	EventNewChatMessage     EventType = "new_chat_message"
	EventUpdatedChatMessage EventType = "updated_chat_message"
)

// Event is one push notification addressed to a single user.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Type        EventType `json:"type"`
	UserID      int64     `json:"user_id"`
	ChatKey     string    `json:"chat_key"`
	MessageID   int64     `json:"message_id"`
	PublishedAt time.Time `json:"published_at"`
}

// NewEvent builds an event for a chat message addressed to userID.
func NewEvent(eventType EventType, userID int64, message domain.ChatMessage) Event {
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		UserID:      userID,
		ChatKey:     message.ChatKey.String(),
		MessageID:   message.ID,
		PublishedAt: time.Now().UTC(),
	}
}

var eventJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode serializes the event to its wire form.
func (e Event) Encode() ([]byte, error) {
	return eventJSON.Marshal(e)
}

// DecodeEvent parses the wire form produced by Encode.
func DecodeEvent(payload []byte) (Event, error) {
	var event Event
	if err := eventJSON.Unmarshal(payload, &event); err != nil {
		return Event{}, errors.Join(errors.New("decoding event failed"), err)
	}

	return event, nil
}

// Broker routes events to per-user subscriptions. Publish must never block
// on slow consumers.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, userID int64) (*Subscription, error)
}

// Subscription is one consumer's feed of events for a single user. Events
// that arrive while the feed's buffer is full are dropped.
type Subscription struct {
	events    chan Event
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	onClose   func()
}

func newSubscription(buffer int, onClose func()) *Subscription {
	return &Subscription{
		events:  make(chan Event, buffer),
		onClose: onClose,
	}
}

// Events returns the feed channel. It is closed when the subscription is
// closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close detaches the subscription from its broker and closes the feed.
// Close is idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}

		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
}

// deliver attempts a non-blocking send, reporting whether the event fit
// into the buffer. Delivery to a closed subscription is a silent drop.
func (s *Subscription) deliver(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}
