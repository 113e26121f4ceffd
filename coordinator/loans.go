package coordinator

import (
	"context"

	"github.com/ziplend/loancoord-go/domain"
)

// EndLoan closes a running loan as of now and pushes the loan ended message
// to both participants. Ending an already closed loan is a conflict.
func (c *Coordinator) EndLoan(ctx context.Context, loanID int64, scope Scope) (domain.Loan, error) {
	_, ownerID, err := c.scopedLoan(ctx, loanID, scope)
	if err != nil {
		return domain.Loan{}, err
	}

	var loan domain.Loan
	var message domain.ChatMessage

	err = c.retryOnTransientConflict(ctx, "end_loan", func() error {
		var err error
		loan, message, err = c.store.EndLoan(ctx, loanID, c.clock())

		return err
	})
	if err != nil {
		return domain.Loan{}, err
	}

	c.notifyNew(ctx, message, ownerID)
	c.logInfo(ctx, "loan ended", "loan_id", loanID)

	return loan, nil
}

// GetLoan loads a loan visible within the scope.
func (c *Coordinator) GetLoan(ctx context.Context, loanID int64, scope Scope) (domain.Loan, error) {
	loan, _, err := c.scopedLoan(ctx, loanID, scope)

	return loan, err
}
