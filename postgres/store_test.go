package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziplend/loancoord-go/domain"
	"github.com/ziplend/loancoord-go/pagination"
	"github.com/ziplend/loancoord-go/testutil/postgreswrapper"
)

func Test_Store_LoanRequestLifecycle(t *testing.T) {
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)

	store := wrapper.GetStore()
	ctx := context.Background()

	ownerID := postgreswrapper.SeedUser(t, wrapper, "owner")
	borrowerID := postgreswrapper.SeedUser(t, wrapper, "borrower")
	itemID := postgreswrapper.SeedItem(t, wrapper, ownerID, "drill", true)

	request, message, err := store.CreateLoanRequest(ctx, itemID, borrowerID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanRequestStatePending, request.State)
	assert.Equal(t, domain.MessageTypeLoanRequestCreated, message.Type)
	assert.False(t, request.CreatedAt.IsZero())

	request, message, err = store.TransitionLoanRequest(ctx, request.ID,
		domain.LoanRequestStateAccepted, domain.AcceptableStates)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanRequestStateAccepted, request.State)
	assert.Equal(t, domain.MessageTypeLoanRequestAccepted, message.Type)

	startsAt := time.Now().UTC()
	loan, message, err := store.ExecuteLoanRequest(ctx, request.ID, startsAt)
	require.NoError(t, err)
	assert.Equal(t, itemID, loan.ItemID)
	assert.Equal(t, request.ID, loan.LoanRequestID)
	assert.Equal(t, domain.MessageTypeLoanStarted, message.Type)

	request, err = store.GetLoanRequest(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanRequestStateExecuted, request.State)
	require.NotNil(t, request.LoanID)
	assert.Equal(t, loan.ID, *request.LoanID)

	loan, message, err = store.EndLoan(ctx, loan.ID, startsAt.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, loan.EndsAt)
	assert.Equal(t, domain.MessageTypeLoanEnded, message.Type)

	messageCount := wrapper.QueryInt64(t, `SELECT count(*) FROM chat_messages`)
	assert.Equal(t, int64(4), messageCount, "every transition should append its message")

	lastMessageID := wrapper.QueryInt64(t, fmt.Sprintf(
		`SELECT last_message_id FROM chats WHERE item_id = %d AND borrower_id = %d`,
		itemID, borrowerID))
	assert.Equal(t, message.ID, lastMessageID, "the chat should track its newest message")
}

func Test_Store_CreateLoanRequest_Conflicts(t *testing.T) {
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)

	store := wrapper.GetStore()
	ctx := context.Background()

	ownerID := postgreswrapper.SeedUser(t, wrapper, "owner")
	borrowerID := postgreswrapper.SeedUser(t, wrapper, "borrower")
	itemID := postgreswrapper.SeedItem(t, wrapper, ownerID, "drill", true)
	shelvedID := postgreswrapper.SeedItem(t, wrapper, ownerID, "saw", false)

	_, _, err := store.CreateLoanRequest(ctx, itemID, ownerID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict, "borrowing your own item should conflict")

	_, _, err = store.CreateLoanRequest(ctx, shelvedID, borrowerID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict, "an unavailable item should refuse requests")

	_, _, err = store.CreateLoanRequest(ctx, itemID, borrowerID)
	require.NoError(t, err)

	_, _, err = store.CreateLoanRequest(ctx, itemID, borrowerID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict, "the partial unique index should reject a duplicate")

	_, _, err = store.CreateLoanRequest(ctx, 999999, borrowerID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound, "a missing item should read as not found")
}

func Test_Store_TransitionLoanRequest_GuardMiss(t *testing.T) {
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)

	store := wrapper.GetStore()
	ctx := context.Background()

	ownerID := postgreswrapper.SeedUser(t, wrapper, "owner")
	borrowerID := postgreswrapper.SeedUser(t, wrapper, "borrower")
	itemID := postgreswrapper.SeedItem(t, wrapper, ownerID, "drill", true)

	request, _, err := store.CreateLoanRequest(ctx, itemID, borrowerID)
	require.NoError(t, err)

	_, _, err = store.TransitionLoanRequest(ctx, request.ID,
		domain.LoanRequestStateRejected, domain.RejectableStates)
	require.NoError(t, err)

	_, _, err = store.TransitionLoanRequest(ctx, request.ID,
		domain.LoanRequestStateAccepted, domain.AcceptableStates)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrState, "accepting a rejected request should miss the guard")

	var stateErr domain.StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, domain.LoanRequestStateRejected, stateErr.Actual)

	_, _, err = store.TransitionLoanRequest(ctx, 999999,
		domain.LoanRequestStateAccepted, domain.AcceptableStates)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound, "a missing request should read as not found")
}

func Test_Store_ExecuteLoanRequest_OverlapExcluded(t *testing.T) {
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)

	store := wrapper.GetStore()
	ctx := context.Background()

	ownerID := postgreswrapper.SeedUser(t, wrapper, "owner")
	firstBorrowerID := postgreswrapper.SeedUser(t, wrapper, "first")
	secondBorrowerID := postgreswrapper.SeedUser(t, wrapper, "second")
	itemID := postgreswrapper.SeedItem(t, wrapper, ownerID, "drill", true)

	accepted := func(borrowerID int64) domain.LoanRequest {
		request, _, err := store.CreateLoanRequest(ctx, itemID, borrowerID)
		require.NoError(t, err)

		request, _, err = store.TransitionLoanRequest(ctx, request.ID,
			domain.LoanRequestStateAccepted, domain.AcceptableStates)
		require.NoError(t, err)

		return request
	}

	first := accepted(firstBorrowerID)
	second := accepted(secondBorrowerID)

	startsAt := time.Now().UTC()
	loan, _, err := store.ExecuteLoanRequest(ctx, first.ID, startsAt)
	require.NoError(t, err)

	_, _, err = store.ExecuteLoanRequest(ctx, second.ID, startsAt)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict,
		"an open loan for the item should exclude a second one")

	_, _, err = store.EndLoan(ctx, loan.ID, startsAt.Add(time.Hour))
	require.NoError(t, err)

	_, _, err = store.EndLoan(ctx, loan.ID, startsAt.Add(2*time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict, "ending an ended loan should conflict")
}

func Test_Store_ExecuteLoanRequest_ConcurrentExecuteHasOneWinner(t *testing.T) {
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)

	store := wrapper.GetStore()
	ctx := context.Background()

	ownerID := postgreswrapper.SeedUser(t, wrapper, "owner")
	borrowerID := postgreswrapper.SeedUser(t, wrapper, "borrower")
	itemID := postgreswrapper.SeedItem(t, wrapper, ownerID, "drill", true)

	request, _, err := store.CreateLoanRequest(ctx, itemID, borrowerID)
	require.NoError(t, err)

	request, _, err = store.TransitionLoanRequest(ctx, request.ID,
		domain.LoanRequestStateAccepted, domain.AcceptableStates)
	require.NoError(t, err)

	startsAt := time.Now().UTC()
	results := make(chan error, 2)

	for i := 0; i < 2; i++ {
		go func() {
			_, _, execErr := store.ExecuteLoanRequest(ctx, request.ID, startsAt)
			results <- execErr
		}()
	}

	var wins, losses int
	for i := 0; i < 2; i++ {
		execErr := <-results
		switch {
		case execErr == nil:
			wins++
		case errors.Is(execErr, domain.ErrState) || errors.Is(execErr, domain.ErrConflict) ||
			errors.Is(execErr, domain.ErrTransientConflict):
			losses++
		default:
			t.Fatalf("unexpected error from concurrent execute: %v", execErr)
		}
	}

	assert.Equal(t, 1, wins, "exactly one racer may execute the request")
	assert.Equal(t, 1, losses, "the loser must see a guard or conflict error")

	loanCount := wrapper.QueryInt64(t, fmt.Sprintf(
		`SELECT count(*) FROM loans WHERE loan_request_id = %d`, request.ID))
	assert.Equal(t, int64(1), loanCount, "the race must produce a single loan row")
}

func Test_Store_MessageSeenFlag(t *testing.T) {
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)

	store := wrapper.GetStore()
	ctx := context.Background()

	ownerID := postgreswrapper.SeedUser(t, wrapper, "owner")
	borrowerID := postgreswrapper.SeedUser(t, wrapper, "borrower")
	itemID := postgreswrapper.SeedItem(t, wrapper, ownerID, "drill", true)
	key := domain.NewChatKey(itemID, borrowerID)

	message, err := store.AppendMessage(ctx, domain.NewTextMessage(key, borrowerID, "hello"))
	require.NoError(t, err)
	assert.False(t, message.Seen)

	_, err = store.MarkMessageSeen(ctx, message.ID, borrowerID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrForbidden, "the sender cannot mark their own message")

	seen, err := store.MarkMessageSeen(ctx, message.ID, ownerID)
	require.NoError(t, err)
	assert.True(t, seen.Seen)

	seen, err = store.MarkMessageSeen(ctx, message.ID, ownerID)
	require.NoError(t, err, "marking twice is idempotent")
	assert.True(t, seen.Seen)
}

func Test_Store_ListLoanRequests_KeysetPaging(t *testing.T) {
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)

	store := wrapper.GetStore()
	ctx := context.Background()

	ownerID := postgreswrapper.SeedUser(t, wrapper, "owner")
	borrowerID := postgreswrapper.SeedUser(t, wrapper, "borrower")
	otherBorrowerID := postgreswrapper.SeedUser(t, wrapper, "other")

	for i := 0; i < 5; i++ {
		itemID := postgreswrapper.SeedItem(t, wrapper, ownerID, fmt.Sprintf("item-%d", i), true)

		_, _, err := store.CreateLoanRequest(ctx, itemID, borrowerID)
		require.NoError(t, err)
		_, _, err = store.CreateLoanRequest(ctx, itemID, otherBorrowerID)
		require.NoError(t, err)
	}

	filter := domain.LoanRequestFilter{BorrowerID: &borrowerID}

	firstPage, err := store.ListLoanRequests(ctx, filter, nil, pagination.Options{Limit: 3})
	require.NoError(t, err)
	require.Len(t, firstPage.Data, 3)
	require.NotNil(t, firstPage.NextCursor)
	assert.Greater(t, firstPage.Data[0].ID, firstPage.Data[2].ID, "newest first")

	secondPage, err := store.ListLoanRequests(ctx, filter, firstPage.NextCursor, pagination.Options{Limit: 3})
	require.NoError(t, err)
	require.Len(t, secondPage.Data, 2)
	assert.Nil(t, secondPage.NextCursor, "a short page ends the listing")

	for _, request := range append(firstPage.Data, secondPage.Data...) {
		assert.Equal(t, borrowerID, request.BorrowerID, "the filter should hold across pages")
	}
	assert.Less(t, secondPage.Data[0].ID, firstPage.Data[2].ID, "pages must not overlap")
}

func Test_Store_ListChats_MemberScope(t *testing.T) {
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)

	store := wrapper.GetStore()
	ctx := context.Background()

	ownerID := postgreswrapper.SeedUser(t, wrapper, "owner")
	borrowerID := postgreswrapper.SeedUser(t, wrapper, "borrower")
	outsiderID := postgreswrapper.SeedUser(t, wrapper, "outsider")
	itemID := postgreswrapper.SeedItem(t, wrapper, ownerID, "drill", true)

	key := domain.NewChatKey(itemID, borrowerID)
	_, err := store.AppendMessage(ctx, domain.NewTextMessage(key, borrowerID, "hello"))
	require.NoError(t, err)

	for _, memberID := range []int64{ownerID, borrowerID} {
		memberID := memberID
		page, err := store.ListChats(ctx, domain.ChatFilter{MemberID: &memberID}, nil, pagination.Options{})
		require.NoError(t, err)
		assert.Len(t, page.Data, 1, "participant %d should see the chat", memberID)
	}

	page, err := store.ListChats(ctx, domain.ChatFilter{MemberID: &outsiderID}, nil, pagination.Options{})
	require.NoError(t, err)
	assert.Empty(t, page.Data, "an outsider sees nothing")
}

func Test_Store_OwnerOfAndAvailability(t *testing.T) {
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	postgreswrapper.CleanUp(t, wrapper)

	store := wrapper.GetStore()
	ctx := context.Background()

	ownerID := postgreswrapper.SeedUser(t, wrapper, "owner")
	itemID := postgreswrapper.SeedItem(t, wrapper, ownerID, "drill", true)

	resolved, err := store.OwnerOf(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, ownerID, resolved)

	_, err = store.OwnerOf(ctx, 999999)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	key := domain.NewChatKey(itemID, postgreswrapper.SeedUser(t, wrapper, "borrower"))
	message, err := store.SetItemAvailableWithMessage(ctx, key, false)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeItemNotAvailable, message.Type)

	available := wrapper.QueryInt64(t, fmt.Sprintf(
		`SELECT count(*) FROM items WHERE id = %d AND available`, itemID))
	assert.Equal(t, int64(0), available)

	announced := wrapper.QueryInt64(t, fmt.Sprintf(
		`SELECT count(*) FROM chat_messages WHERE item_id = %d`, itemID))
	assert.Equal(t, int64(1), announced, "the flip and its announcement commit together")

	exists, err := store.UserExists(ctx, ownerID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.UserExists(ctx, 999999)
	require.NoError(t, err)
	assert.False(t, exists)
}
