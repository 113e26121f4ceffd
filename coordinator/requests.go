package coordinator

import (
	"context"

	"github.com/ziplend/loancoord-go/domain"
)

// CreateLoanRequest opens a pending loan request by borrowerID for itemID
// and pushes the request message to both participants.
func (c *Coordinator) CreateLoanRequest(
	ctx context.Context,
	itemID int64,
	borrowerID int64,
) (domain.LoanRequest, error) {

	var request domain.LoanRequest
	var message domain.ChatMessage

	err := c.retryOnTransientConflict(ctx, "create_loan_request", func() error {
		var err error
		request, message, err = c.store.CreateLoanRequest(ctx, itemID, borrowerID)

		return err
	})
	if err != nil {
		return domain.LoanRequest{}, err
	}

	ownerID, err := c.items.OwnerOf(ctx, itemID)
	if err == nil {
		c.notifyNew(ctx, message, ownerID)
	}

	c.logInfo(ctx, "loan request created",
		"loan_request_id", request.ID, "item_id", itemID, "borrower_id", borrowerID)

	return request, nil
}

// CancelLoanRequest withdraws a pending or accepted request in the name of
// its borrower.
func (c *Coordinator) CancelLoanRequest(ctx context.Context, requestID int64, scope Scope) (domain.LoanRequest, error) {
	return c.transition(ctx, requestID, scope,
		domain.LoanRequestStateCancelled, domain.CancellableStates)
}

// AcceptLoanRequest approves a pending request in the name of the item's
// owner.
func (c *Coordinator) AcceptLoanRequest(ctx context.Context, requestID int64, scope Scope) (domain.LoanRequest, error) {
	return c.transition(ctx, requestID, scope,
		domain.LoanRequestStateAccepted, domain.AcceptableStates)
}

// RejectLoanRequest declines a pending or accepted request in the name of
// the item's owner.
func (c *Coordinator) RejectLoanRequest(ctx context.Context, requestID int64, scope Scope) (domain.LoanRequest, error) {
	return c.transition(ctx, requestID, scope,
		domain.LoanRequestStateRejected, domain.RejectableStates)
}

// ExecuteLoanRequest turns an accepted request into a running loan starting
// now. Exactly one of two racing executes wins; the loser sees a state
// error.
func (c *Coordinator) ExecuteLoanRequest(ctx context.Context, requestID int64, scope Scope) (domain.Loan, error) {
	_, ownerID, err := c.scopedRequest(ctx, requestID, scope)
	if err != nil {
		return domain.Loan{}, err
	}

	var loan domain.Loan
	var message domain.ChatMessage

	err = c.retryOnTransientConflict(ctx, "execute_loan_request", func() error {
		var err error
		loan, message, err = c.store.ExecuteLoanRequest(ctx, requestID, c.clock())

		return err
	})
	if err != nil {
		return domain.Loan{}, err
	}

	c.notifyNew(ctx, message, ownerID)
	c.logInfo(ctx, "loan started", "loan_request_id", requestID, "loan_id", loan.ID)

	return loan, nil
}

// GetLoanRequest loads a loan request visible within the scope.
func (c *Coordinator) GetLoanRequest(ctx context.Context, requestID int64, scope Scope) (domain.LoanRequest, error) {
	request, _, err := c.scopedRequest(ctx, requestID, scope)

	return request, err
}

func (c *Coordinator) transition(
	ctx context.Context,
	requestID int64,
	scope Scope,
	to domain.LoanRequestState,
	expected []domain.LoanRequestState,
) (domain.LoanRequest, error) {

	_, ownerID, err := c.scopedRequest(ctx, requestID, scope)
	if err != nil {
		return domain.LoanRequest{}, err
	}

	var request domain.LoanRequest
	var message domain.ChatMessage

	err = c.retryOnTransientConflict(ctx, "transition_loan_request", func() error {
		var err error
		request, message, err = c.store.TransitionLoanRequest(ctx, requestID, to, expected)

		return err
	})
	if err != nil {
		return domain.LoanRequest{}, err
	}

	c.notifyNew(ctx, message, ownerID)
	c.logInfo(ctx, "loan request transitioned",
		"loan_request_id", requestID, "state", string(to))

	return request, nil
}
