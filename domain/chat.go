package domain

import (
	"time"

	"github.com/samber/lo"
)

// MessageType discriminates text messages from the system messages emitted
// by loan lifecycle transitions.
type MessageType string

const (
	MessageTypeText                 MessageType = "text"
	MessageTypeLoanRequestCreated   MessageType = "loan_request_created"
	MessageTypeLoanRequestCancelled MessageType = "loan_request_cancelled"
	MessageTypeLoanRequestAccepted  MessageType = "loan_request_accepted"
	MessageTypeLoanRequestRejected  MessageType = "loan_request_rejected"
	MessageTypeLoanStarted          MessageType = "loan_started"
	MessageTypeLoanEnded            MessageType = "loan_ended"
	MessageTypeItemNotAvailable     MessageType = "item_not_available"
	MessageTypeItemAvailable        MessageType = "item_available"
)

// messageTypes maps every valid type name to its type.
var messageTypes = map[string]MessageType{
	"text":                   MessageTypeText,
	"loan_request_created":   MessageTypeLoanRequestCreated,
	"loan_request_cancelled": MessageTypeLoanRequestCancelled,
	"loan_request_accepted":  MessageTypeLoanRequestAccepted,
	"loan_request_rejected":  MessageTypeLoanRequestRejected,
	"loan_started":           MessageTypeLoanStarted,
	"loan_ended":             MessageTypeLoanEnded,
	"item_not_available":     MessageTypeItemNotAvailable,
	"item_available":         MessageTypeItemAvailable,
}

// ParseMessageType parses a type name into a MessageType.
func ParseMessageType(name string) (MessageType, error) {
	messageType, ok := messageTypes[name]
	if !ok {
		return "", ValidationError{Field: "message_type", Reason: "unknown message type: " + name}
	}

	return messageType, nil
}

func (t MessageType) String() string {
	return string(t)
}

// SentByOwner reports whether the system message of this type is sent in the
// name of the item's owner. All other types are sent by the borrower.
func (t MessageType) SentByOwner() bool {
	switch t {
	case MessageTypeLoanRequestAccepted,
		MessageTypeLoanRequestRejected,
		MessageTypeLoanEnded,
		MessageTypeItemNotAvailable,
		MessageTypeItemAvailable:
		return true
	default:
		return false
	}
}

// Chat is the message thread keyed by (item, borrower).
//
// LastMessageID is a denormalized pointer to the newest message, used to
// order chat listings by recent activity.
type Chat struct {
	Key           ChatKey
	LastMessageID int64
}

// ChatMessage is one entry of the append-only chat log. Only Seen may
// change after creation.
type ChatMessage struct {
	ID            int64
	ChatKey       ChatKey
	Type          MessageType
	SenderID      *int64
	Text          *string
	LoanRequestID *int64
	LoanID        *int64
	Seen          bool
	CreatedAt     time.Time
}

// NewTextMessage builds an unsaved text message sent by senderID.
func NewTextMessage(key ChatKey, senderID int64, text string) ChatMessage {
	return ChatMessage{
		ChatKey:  key,
		Type:     MessageTypeText,
		SenderID: lo.ToPtr(senderID),
		Text:     lo.ToPtr(text),
	}
}

// NewLoanRequestMessage builds an unsaved system message for a loan request
// transition. The sender is derived from the message type.
func NewLoanRequestMessage(messageType MessageType, key ChatKey, loanRequestID int64, ownerID int64) ChatMessage {
	senderID := key.BorrowerID
	if messageType.SentByOwner() {
		senderID = ownerID
	}

	return ChatMessage{
		ChatKey:       key,
		Type:          messageType,
		SenderID:      lo.ToPtr(senderID),
		LoanRequestID: lo.ToPtr(loanRequestID),
	}
}

// NewLoanMessage builds an unsaved system message for a loan start or end.
// The sender is derived from the message type.
func NewLoanMessage(messageType MessageType, key ChatKey, loanID int64, ownerID int64) ChatMessage {
	senderID := key.BorrowerID
	if messageType.SentByOwner() {
		senderID = ownerID
	}

	return ChatMessage{
		ChatKey:  key,
		Type:     messageType,
		SenderID: lo.ToPtr(senderID),
		LoanID:   lo.ToPtr(loanID),
	}
}

// NewItemAvailabilityMessage builds an unsaved system message announcing
// that the item became available or unavailable. The sender is the owner.
func NewItemAvailabilityMessage(key ChatKey, ownerID int64, available bool) ChatMessage {
	messageType := MessageTypeItemNotAvailable
	if available {
		messageType = MessageTypeItemAvailable
	}

	return ChatMessage{
		ChatKey:  key,
		Type:     messageType,
		SenderID: lo.ToPtr(ownerID),
	}
}
