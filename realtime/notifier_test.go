package realtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziplend/loancoord-go/domain"
	"github.com/ziplend/loancoord-go/realtime"
	"github.com/ziplend/loancoord-go/testutil/testdoubles"
)

type failingBroker struct {
	err error
}

func (b failingBroker) Publish(context.Context, realtime.Event) error {
	return b.err
}

func (b failingBroker) Subscribe(context.Context, int64) (*realtime.Subscription, error) {
	return nil, b.err
}

func Test_LoggingNotifier_DeliversThroughBroker(t *testing.T) {
	broker := realtime.NewMemoryBroker(realtime.DefaultSubscriptionBuffer)
	notifier := realtime.NewLoggingNotifier(broker)
	ctx := context.Background()

	sub, err := broker.Subscribe(ctx, 20)
	require.NoError(t, err)
	defer sub.Close()

	message := domain.NewTextMessage(domain.NewChatKey(10, 20), 20, "hello")
	message.ID = 7

	notifier.NewChatMessage(ctx, 20, message)
	notifier.UpdatedChatMessage(ctx, 20, message)

	first := <-sub.Events()
	assert.Equal(t, realtime.EventNewChatMessage, first.Type)

	second := <-sub.Events()
	assert.Equal(t, realtime.EventUpdatedChatMessage, second.Type)
}

func Test_LoggingNotifier_SwallowsPublishFailures(t *testing.T) {
	loggerSpy := testdoubles.NewContextualLoggerSpy()
	notifier := realtime.NewLoggingNotifier(
		failingBroker{err: errors.New("broker down")},
		realtime.WithNotifierContextualLogger(loggerSpy),
	)

	message := domain.NewTextMessage(domain.NewChatKey(10, 20), 20, "hello")

	notifier.NewChatMessage(context.Background(), 20, message)

	assert.Equal(t, 1, loggerSpy.CountContaining("warn", "dropping undeliverable event"),
		"the failure should be logged, not surfaced")
}
