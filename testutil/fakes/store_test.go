package fakes

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziplend/loancoord-go/domain"
	"github.com/ziplend/loancoord-go/pagination"
)

// Rows referencing an item the store never saw must not blow up the owner
// filters; they simply never match an owner or an unknown member.
func Test_Store_OwnerFilters_TolerateRowsWithUnknownItems(t *testing.T) {
	store := NewStore()
	key := domain.NewChatKey(99, 2)

	store.requests[1] = domain.LoanRequest{
		ID: 1, ItemID: 99, BorrowerID: 2, State: domain.LoanRequestStatePending}
	store.loans[1] = domain.Loan{ID: 1, ItemID: 99, BorrowerID: 2, LoanRequestID: 1}
	store.chats[key] = domain.Chat{Key: key}
	store.messages[1] = domain.ChatMessage{ID: 1, ChatKey: key, Type: domain.MessageTypeText}

	ctx := context.Background()
	outsider := lo.ToPtr(int64(5))

	requests, err := store.ListLoanRequests(ctx,
		domain.LoanRequestFilter{OwnerID: outsider}, nil, pagination.Options{})
	require.NoError(t, err)
	assert.Empty(t, requests.Data)

	loans, err := store.ListLoans(ctx,
		domain.LoanFilter{OwnerID: outsider}, nil, pagination.Options{})
	require.NoError(t, err)
	assert.Empty(t, loans.Data)

	chats, err := store.ListChats(ctx,
		domain.ChatFilter{MemberID: outsider}, nil, pagination.Options{})
	require.NoError(t, err)
	assert.Empty(t, chats.Data)

	messages, err := store.ListMessages(ctx,
		domain.MessageFilter{MemberID: lo.ToPtr(int64(2))}, nil, pagination.Options{})
	require.NoError(t, err)
	assert.Len(t, messages.Data, 1, "the borrower side of membership still matches")
}
