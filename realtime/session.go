package realtime

import "context"

// Session is one user's connection-lifetime view of the bus. It carries the
// subscription opened when the connection was established and is closed
// with it.
type Session struct {
	userID int64
	sub    *Subscription
}

// NewSession subscribes userID on the broker for the lifetime of one
// connection.
func NewSession(ctx context.Context, broker Broker, userID int64) (*Session, error) {
	sub, err := broker.Subscribe(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Session{userID: userID, sub: sub}, nil
}

// UserID returns the subscribed user.
func (s *Session) UserID() int64 {
	return s.userID
}

// Events returns the session's feed, closed when the session closes.
func (s *Session) Events() <-chan Event {
	return s.sub.Events()
}

// Close ends the session and its subscription.
func (s *Session) Close() {
	s.sub.Close()
}
