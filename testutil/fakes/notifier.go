package fakes

import (
	"context"
	"sync"

	"github.com/ziplend/loancoord-go/domain"
)

// Delivery records one notification handed to the recorder.
type Delivery struct {
	UserID  int64
	Message domain.ChatMessage
}

// NotifierRecorder captures the notifications a coordinator emits.
type NotifierRecorder struct {
	mu      sync.Mutex
	created []Delivery
	updated []Delivery
}

// NewNotifierRecorder creates an empty recorder.
func NewNotifierRecorder() *NotifierRecorder {
	return &NotifierRecorder{}
}

// NewChatMessage records a new-message notification.
func (n *NotifierRecorder) NewChatMessage(_ context.Context, userID int64, message domain.ChatMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.created = append(n.created, Delivery{UserID: userID, Message: message})
}

// UpdatedChatMessage records an updated-message notification.
func (n *NotifierRecorder) UpdatedChatMessage(_ context.Context, userID int64, message domain.ChatMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.updated = append(n.updated, Delivery{UserID: userID, Message: message})
}

// Created returns the recorded new-message notifications in order.
func (n *NotifierRecorder) Created() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]Delivery(nil), n.created...)
}

// Updated returns the recorded updated-message notifications in order.
func (n *NotifierRecorder) Updated() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]Delivery(nil), n.updated...)
}
