package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziplend/loancoord-go/domain"
)

func Test_ParseLoanRequestState(t *testing.T) {
	for _, name := range []string{"pending", "cancelled", "accepted", "rejected", "executed"} {
		state, err := domain.ParseLoanRequestState(name)

		require.NoError(t, err, "known state name should parse")
		assert.Equal(t, name, state.String(), "parsed state should keep its name")
	}

	_, err := domain.ParseLoanRequestState("returned")
	require.Error(t, err, "unknown state name should be rejected")
	assert.ErrorIs(t, err, domain.ErrValidation, "parse failure should be a validation error")
}

func Test_LoanRequestState_Active(t *testing.T) {
	assert.True(t, domain.LoanRequestStatePending.Active(), "pending blocks a duplicate request")
	assert.True(t, domain.LoanRequestStateAccepted.Active(), "accepted blocks a duplicate request")
	assert.False(t, domain.LoanRequestStateCancelled.Active(), "cancelled frees the pair")
	assert.False(t, domain.LoanRequestStateRejected.Active(), "rejected frees the pair")
	assert.False(t, domain.LoanRequestStateExecuted.Active(), "executed frees the pair")
}

func Test_MessageType_SentByOwner(t *testing.T) {
	byOwner := []domain.MessageType{
		domain.MessageTypeLoanRequestAccepted,
		domain.MessageTypeLoanRequestRejected,
		domain.MessageTypeLoanEnded,
		domain.MessageTypeItemNotAvailable,
		domain.MessageTypeItemAvailable,
	}
	byBorrower := []domain.MessageType{
		domain.MessageTypeText,
		domain.MessageTypeLoanRequestCreated,
		domain.MessageTypeLoanRequestCancelled,
		domain.MessageTypeLoanStarted,
	}

	for _, messageType := range byOwner {
		assert.True(t, messageType.SentByOwner(), "%s should be sent by the owner", messageType)
	}
	for _, messageType := range byBorrower {
		assert.False(t, messageType.SentByOwner(), "%s should be sent by the borrower", messageType)
	}
}

func Test_SystemMessageBuilders_DeriveSender(t *testing.T) {
	key := domain.NewChatKey(10, 20)
	const ownerID = int64(30)

	created := domain.NewLoanRequestMessage(domain.MessageTypeLoanRequestCreated, key, 5, ownerID)
	require.NotNil(t, created.SenderID)
	assert.Equal(t, key.BorrowerID, *created.SenderID, "request created is sent by the borrower")
	require.NotNil(t, created.LoanRequestID)
	assert.Equal(t, int64(5), *created.LoanRequestID)

	accepted := domain.NewLoanRequestMessage(domain.MessageTypeLoanRequestAccepted, key, 5, ownerID)
	require.NotNil(t, accepted.SenderID)
	assert.Equal(t, ownerID, *accepted.SenderID, "request accepted is sent by the owner")

	started := domain.NewLoanMessage(domain.MessageTypeLoanStarted, key, 8, ownerID)
	require.NotNil(t, started.SenderID)
	assert.Equal(t, key.BorrowerID, *started.SenderID, "loan started is sent by the borrower")
	require.NotNil(t, started.LoanID)
	assert.Equal(t, int64(8), *started.LoanID)

	ended := domain.NewLoanMessage(domain.MessageTypeLoanEnded, key, 8, ownerID)
	require.NotNil(t, ended.SenderID)
	assert.Equal(t, ownerID, *ended.SenderID, "loan ended is sent by the owner")

	unavailable := domain.NewItemAvailabilityMessage(key, ownerID, false)
	assert.Equal(t, domain.MessageTypeItemNotAvailable, unavailable.Type)
	require.NotNil(t, unavailable.SenderID)
	assert.Equal(t, ownerID, *unavailable.SenderID, "availability messages are sent by the owner")

	available := domain.NewItemAvailabilityMessage(key, ownerID, true)
	assert.Equal(t, domain.MessageTypeItemAvailable, available.Type)
}

func Test_StateError_Message(t *testing.T) {
	err := domain.StateError{
		Expected: []domain.LoanRequestState{domain.LoanRequestStatePending, domain.LoanRequestStateAccepted},
		Actual:   domain.LoanRequestStateCancelled,
	}

	assert.Equal(t,
		"loan request state is expected to be pending or accepted, got: cancelled",
		err.Error())
	assert.ErrorIs(t, err, domain.ErrState)
}
