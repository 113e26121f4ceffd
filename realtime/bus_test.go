package realtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziplend/loancoord-go/domain"
	"github.com/ziplend/loancoord-go/realtime"
)

func Test_Event_EncodeDecode_RoundTrip(t *testing.T) {
	message := domain.NewTextMessage(domain.NewChatKey(10, 20), 20, "hello")
	message.ID = 7

	event := realtime.NewEvent(realtime.EventNewChatMessage, 30, message)

	payload, err := event.Encode()
	require.NoError(t, err)

	decoded, err := realtime.DecodeEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, realtime.EventNewChatMessage, decoded.Type)
	assert.Equal(t, int64(30), decoded.UserID)
	assert.Equal(t, "10-20", decoded.ChatKey)
	assert.Equal(t, int64(7), decoded.MessageID)
	assert.True(t, event.PublishedAt.Equal(decoded.PublishedAt))
}

func Test_DecodeEvent_RejectsMalformedPayload(t *testing.T) {
	_, err := realtime.DecodeEvent([]byte("{not json"))
	assert.Error(t, err)
}
