package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ziplend/loancoord-go/domain"
)

const textMessageRules = "required,max=1000"

// SendTextMessage appends a text message from senderID to the chat and
// pushes it to both participants. The sender must be the borrower or the
// item's owner.
func (c *Coordinator) SendTextMessage(
	ctx context.Context,
	key domain.ChatKey,
	senderID int64,
	text string,
) (domain.ChatMessage, error) {

	trimmed := strings.TrimSpace(text)
	if err := c.validate.Var(trimmed, textMessageRules); err != nil {
		return domain.ChatMessage{}, domain.ValidationError{
			Field: "text", Reason: "must be 1 to 1000 characters"}
	}

	ownerID, err := c.items.OwnerOf(ctx, key.ItemID)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	if senderID != key.BorrowerID && senderID != ownerID {
		return domain.ChatMessage{}, fmt.Errorf(
			"user %d is not a participant of chat %s: %w", senderID, key.String(), domain.ErrForbidden)
	}

	var message domain.ChatMessage

	err = c.retryOnTransientConflict(ctx, "send_text_message", func() error {
		var err error
		message, err = c.store.AppendMessage(ctx, domain.NewTextMessage(key, senderID, trimmed))

		return err
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}

	c.notifyNew(ctx, message, ownerID)

	return message, nil
}

// MarkMessageSeen flags a message as seen by viewerID and pushes the update
// to both participants. Only the participant who did not send the message
// may mark it; repeated calls are idempotent.
func (c *Coordinator) MarkMessageSeen(
	ctx context.Context,
	messageID int64,
	viewerID int64,
) (domain.ChatMessage, error) {

	message, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	ownerID, err := c.items.OwnerOf(ctx, message.ChatKey.ItemID)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	if viewerID != message.ChatKey.BorrowerID && viewerID != ownerID {
		return domain.ChatMessage{}, domain.NotFoundError{
			Entity: "chat message", Key: fmt.Sprintf("%d", messageID)}
	}

	alreadySeen := message.Seen

	err = c.retryOnTransientConflict(ctx, "mark_message_seen", func() error {
		var err error
		message, err = c.store.MarkMessageSeen(ctx, messageID, viewerID)

		return err
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}

	if !alreadySeen {
		c.notifyUpdated(ctx, message, ownerID)
	}

	return message, nil
}

// SendItemAvailabilityMessage records the owner's availability decision for
// the item and announces it in the chat, in one transaction. The caller
// must be scoped to the item's owner.
func (c *Coordinator) SendItemAvailabilityMessage(
	ctx context.Context,
	key domain.ChatKey,
	available bool,
	scope Scope,
) (domain.ChatMessage, error) {

	ownerID, err := c.items.OwnerOf(ctx, key.ItemID)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	if !scope.allows(key.BorrowerID, ownerID) || (scope.OwnerID == nil && scope.MemberID == nil) {
		return domain.ChatMessage{}, domain.NotFoundError{Entity: "chat", Key: key.String()}
	}

	var message domain.ChatMessage

	err = c.retryOnTransientConflict(ctx, "send_item_availability_message", func() error {
		var err error
		message, err = c.store.SetItemAvailableWithMessage(ctx, key, available)

		return err
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}

	c.notifyNew(ctx, message, ownerID)

	return message, nil
}

// EnsureChat creates the chat for the key if it does not exist and returns
// it. The borrower must be an existing user and the caller must be scoped
// to one of the participants.
func (c *Coordinator) EnsureChat(ctx context.Context, key domain.ChatKey, scope Scope) (domain.Chat, error) {
	ownerID, err := c.items.OwnerOf(ctx, key.ItemID)
	if err != nil {
		return domain.Chat{}, err
	}

	exists, err := c.store.UserExists(ctx, key.BorrowerID)
	if err != nil {
		return domain.Chat{}, err
	}
	if !exists {
		return domain.Chat{}, domain.NotFoundError{
			Entity: "user", Key: fmt.Sprintf("%d", key.BorrowerID)}
	}

	if !scope.allows(key.BorrowerID, ownerID) {
		return domain.Chat{}, domain.NotFoundError{Entity: "chat", Key: key.String()}
	}

	var chat domain.Chat

	err = c.retryOnTransientConflict(ctx, "ensure_chat", func() error {
		var err error
		chat, err = c.store.EnsureChat(ctx, key)

		return err
	})
	if err != nil {
		return domain.Chat{}, err
	}

	return chat, nil
}

// GetChat loads a chat visible within the scope.
func (c *Coordinator) GetChat(ctx context.Context, key domain.ChatKey, scope Scope) (domain.Chat, error) {
	ownerID, err := c.items.OwnerOf(ctx, key.ItemID)
	if err != nil {
		return domain.Chat{}, err
	}

	if !scope.allows(key.BorrowerID, ownerID) {
		return domain.Chat{}, domain.NotFoundError{Entity: "chat", Key: key.String()}
	}

	return c.store.GetChat(ctx, key)
}

// GetMessage loads a chat message visible within the scope.
func (c *Coordinator) GetMessage(ctx context.Context, messageID int64, scope Scope) (domain.ChatMessage, error) {
	message, err := c.store.GetMessage(ctx, messageID)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	ownerID, err := c.items.OwnerOf(ctx, message.ChatKey.ItemID)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	if !scope.allows(message.ChatKey.BorrowerID, ownerID) {
		return domain.ChatMessage{}, domain.NotFoundError{
			Entity: "chat message", Key: fmt.Sprintf("%d", messageID)}
	}

	return message, nil
}
