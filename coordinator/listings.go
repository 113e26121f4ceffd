package coordinator

import (
	"context"

	"github.com/ziplend/loancoord-go/domain"
	"github.com/ziplend/loancoord-go/pagination"
)

// PageOptions select a page of a listing. Cursor is the opaque token
// returned with the previous page; empty selects the first page.
type PageOptions struct {
	Cursor string
	Limit  uint
}

func (p PageOptions) decode() (pagination.Cursor, pagination.Options, error) {
	cursor, err := pagination.DecodeCursor(p.Cursor)
	if err != nil {
		return nil, pagination.Options{}, domain.ValidationError{
			Field: "cursor", Reason: "malformed page cursor"}
	}

	return cursor, pagination.Options{Limit: p.Limit}, nil
}

// ListLoanRequests returns the loan requests matching the filter within the
// scope, newest first.
func (c *Coordinator) ListLoanRequests(
	ctx context.Context,
	filter domain.LoanRequestFilter,
	scope Scope,
	page PageOptions,
) (pagination.Page[domain.LoanRequest], error) {

	cursor, opts, err := page.decode()
	if err != nil {
		return pagination.Page[domain.LoanRequest]{}, err
	}

	if scope.BorrowerID != nil {
		filter.BorrowerID = scope.BorrowerID
	}
	if scope.OwnerID != nil {
		filter.OwnerID = scope.OwnerID
	}
	if scope.MemberID != nil {
		filter.MemberID = scope.MemberID
	}

	return c.store.ListLoanRequests(ctx, filter, cursor, opts)
}

// ListLoans returns the loans matching the filter within the scope, newest
// first by start time.
func (c *Coordinator) ListLoans(
	ctx context.Context,
	filter domain.LoanFilter,
	scope Scope,
	page PageOptions,
) (pagination.Page[domain.Loan], error) {

	cursor, opts, err := page.decode()
	if err != nil {
		return pagination.Page[domain.Loan]{}, err
	}

	if scope.BorrowerID != nil {
		filter.BorrowerID = scope.BorrowerID
	}
	if scope.OwnerID != nil {
		filter.OwnerID = scope.OwnerID
	}
	if scope.MemberID != nil {
		filter.MemberID = scope.MemberID
	}

	return c.store.ListLoans(ctx, filter, cursor, opts)
}

// ListChats returns the chats matching the filter within the scope, most
// recently active first.
func (c *Coordinator) ListChats(
	ctx context.Context,
	filter domain.ChatFilter,
	scope Scope,
	page PageOptions,
) (pagination.Page[domain.Chat], error) {

	cursor, opts, err := page.decode()
	if err != nil {
		return pagination.Page[domain.Chat]{}, err
	}

	if scope.BorrowerID != nil {
		filter.BorrowerID = scope.BorrowerID
	}
	if scope.OwnerID != nil {
		filter.OwnerID = scope.OwnerID
	}
	if scope.MemberID != nil {
		filter.MemberID = scope.MemberID
	}

	return c.store.ListChats(ctx, filter, cursor, opts)
}

// ListMessages returns the chat messages matching the filter within the
// scope, newest first. The scope is applied through chat membership.
func (c *Coordinator) ListMessages(
	ctx context.Context,
	filter domain.MessageFilter,
	scope Scope,
	page PageOptions,
) (pagination.Page[domain.ChatMessage], error) {

	cursor, opts, err := page.decode()
	if err != nil {
		return pagination.Page[domain.ChatMessage]{}, err
	}

	switch {
	case scope.MemberID != nil:
		filter.MemberID = scope.MemberID
	case scope.BorrowerID != nil:
		filter.MemberID = scope.BorrowerID
	case scope.OwnerID != nil:
		filter.MemberID = scope.OwnerID
	}

	return c.store.ListMessages(ctx, filter, cursor, opts)
}
