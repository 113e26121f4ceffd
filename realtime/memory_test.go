package realtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziplend/loancoord-go/domain"
	"github.com/ziplend/loancoord-go/realtime"
)

func newTextEvent(userID int64, text string) realtime.Event {
	return newTextEventWithID(userID, 100, text)
}

func newTextEventWithID(userID int64, messageID int64, text string) realtime.Event {
	message := domain.NewTextMessage(domain.NewChatKey(1, 2), 2, text)
	message.ID = messageID

	return realtime.NewEvent(realtime.EventNewChatMessage, userID, message)
}

func Test_MemoryBroker_DeliversOnlyToTheRecipient(t *testing.T) {
	broker := realtime.NewMemoryBroker(realtime.DefaultSubscriptionBuffer)
	ctx := context.Background()

	recipient, err := broker.Subscribe(ctx, 2)
	require.NoError(t, err)
	defer recipient.Close()

	bystander, err := broker.Subscribe(ctx, 3)
	require.NoError(t, err)
	defer bystander.Close()

	event := newTextEvent(2, "hello")
	require.NoError(t, broker.Publish(ctx, event))

	select {
	case received := <-recipient.Events():
		assert.Equal(t, event.ID, received.ID)
		assert.Equal(t, int64(2), received.UserID)
	default:
		t.Fatal("recipient should have received the event")
	}

	select {
	case received := <-bystander.Events():
		t.Fatalf("bystander should not receive events, got: %v", received)
	default:
	}
}

func Test_MemoryBroker_PreservesPerRecipientOrder(t *testing.T) {
	broker := realtime.NewMemoryBroker(realtime.DefaultSubscriptionBuffer)
	ctx := context.Background()

	sub, err := broker.Subscribe(ctx, 2)
	require.NoError(t, err)
	defer sub.Close()

	texts := []string{"first", "second", "third"}
	for i, text := range texts {
		require.NoError(t, broker.Publish(ctx, newTextEventWithID(2, int64(i+1), text)))
	}

	for i := range texts {
		received := <-sub.Events()
		assert.Equal(t, int64(i+1), received.MessageID,
			"events must arrive in publish order")
	}
}

func Test_MemoryBroker_DropsWhenSubscriberIsFull(t *testing.T) {
	broker := realtime.NewMemoryBroker(1)
	ctx := context.Background()

	sub, err := broker.Subscribe(ctx, 2)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, broker.Publish(ctx, newTextEvent(2, "kept")))
	require.NoError(t, broker.Publish(ctx, newTextEvent(2, "dropped")))

	<-sub.Events()

	select {
	case event := <-sub.Events():
		t.Fatalf("overflow event should have been dropped, got: %v", event)
	default:
	}
}

func Test_MemoryBroker_ClosedSubscriptionStopsReceiving(t *testing.T) {
	broker := realtime.NewMemoryBroker(realtime.DefaultSubscriptionBuffer)
	ctx := context.Background()

	sub, err := broker.Subscribe(ctx, 2)
	require.NoError(t, err)

	sub.Close()
	sub.Close() // closing twice must be safe

	require.NoError(t, broker.Publish(ctx, newTextEvent(2, "late")),
		"publishing after unsubscribe should not fail")

	_, open := <-sub.Events()
	assert.False(t, open, "the event channel should be closed")
}
