package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/ziplend/loancoord-go/domain"
	"github.com/ziplend/loancoord-go/pagination"
	"github.com/ziplend/loancoord-go/postgres/internal/adapters"
)

// EndLoan closes a running loan with a guarded update that only matches
// while the loan is still open, and records the loan ended message in the
// same transaction.
func (s *Store) EndLoan(
	ctx context.Context,
	loanID int64,
	endsAt time.Time,
) (domain.Loan, domain.ChatMessage, error) {

	ctx, finish := s.observe(ctx, "end_loan")

	var loan domain.Loan
	var message domain.ChatMessage

	err := s.withTx(ctx, func(tx adapters.DBTx) error {
		endsAtUTC := endsAt.UTC()

		updateSQL, _, err := s.dialect().
			Update(goqu.T(s.tables.Loans)).
			Set(goqu.Record{"ends_at": endsAtUTC}).
			Where(
				goqu.C("id").Eq(loanID),
				goqu.C("ends_at").IsNull(),
			).
			Returning(
				goqu.C("id"), goqu.C("item_id"), goqu.C("borrower_id"),
				goqu.C("loan_request_id"), goqu.C("starts_at"),
			).
			ToSQL()
		if err != nil {
			return errors.Join(ErrBuildingQueryFailed, err)
		}

		start := time.Now()
		rows, err := tx.Query(ctx, updateSQL)
		s.logQuery(ctx, updateSQL, "end_loan", time.Since(start))

		if err != nil {
			return errors.Join(ErrQueryFailed, s.translateError(err))
		}
		defer func() { _ = rows.Close() }()

		if !rows.Next() {
			s.recordGuardMiss("end_loan")

			return s.diagnoseEndLoanMiss(ctx, tx, loanID)
		}

		if err = rows.Scan(
			&loan.ID, &loan.ItemID, &loan.BorrowerID,
			&loan.LoanRequestID, &loan.StartsAt,
		); err != nil {
			return errors.Join(ErrScanningRowFailed, err)
		}
		loan.EndsAt = &endsAtUTC

		if err = rows.Close(); err != nil {
			return errors.Join(ErrQueryFailed, err)
		}

		ownerID, err := s.itemOwner(ctx, tx, loan.ItemID)
		if err != nil {
			return err
		}

		message = domain.NewLoanMessage(domain.MessageTypeLoanEnded, loan.ChatKey(), loan.ID, ownerID)
		message.LoanRequestID = &loan.LoanRequestID

		return s.appendMessageInTx(ctx, tx, &message)
	})
	if err != nil {
		finish(statusError)
		s.recordErrorMetrics("end_loan", errorType(err))

		return domain.Loan{}, domain.ChatMessage{}, err
	}

	finish(statusOK)
	s.logOperation(ctx, "loan ended", "loan_id", loan.ID)

	return loan, message, nil
}

// GetLoan loads a single loan by id.
func (s *Store) GetLoan(ctx context.Context, loanID int64) (domain.Loan, error) {
	ctx, finish := s.observe(ctx, "get_loan")

	ds := s.loanDataset().Where(goqu.T(s.tables.Loans).Col("id").Eq(loanID))

	rows, err := s.query(ctx, s.db, ds, "get_loan")
	if err != nil {
		finish(statusError)

		return domain.Loan{}, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		finish(statusError)

		return domain.Loan{}, domain.NotFoundError{Entity: "loan", Key: fmt.Sprintf("%d", loanID)}
	}

	loan, err := scanLoan(rows)
	if err != nil {
		finish(statusError)

		return domain.Loan{}, err
	}

	finish(statusOK)

	return loan, nil
}

// ListLoans returns a page of loans matching the filter, ordered by start
// time then id, newest first, with a keyset cursor for the next page.
func (s *Store) ListLoans(
	ctx context.Context,
	filter domain.LoanFilter,
	cursor pagination.Cursor,
	opts pagination.Options,
) (pagination.Page[domain.Loan], error) {

	ctx, finish := s.observe(ctx, "list_loans")

	loans := goqu.T(s.tables.Loans)
	keys := []pagination.Key{
		{Name: "starts_at", Column: loans.Col("starts_at")},
		{Name: "id", Column: loans.Col("id")},
	}

	normalized := pagination.Cursor{}
	if startsAt, ok := cursor.Time("starts_at"); ok {
		normalized["starts_at"] = startsAt
		if id, ok := cursor.Int64("id"); ok {
			normalized["id"] = id
		}
	}

	opts.Descending = true
	ds := pagination.Apply(s.applyLoanFilter(s.loanDataset(), filter), keys, normalized, opts)

	rows, err := s.query(ctx, s.db, ds, "list_loans")
	if err != nil {
		finish(statusError)

		return pagination.Page[domain.Loan]{}, err
	}
	defer func() { _ = rows.Close() }()

	page := pagination.Page[domain.Loan]{}
	for rows.Next() {
		loan, scanErr := scanLoan(rows)
		if scanErr != nil {
			finish(statusError)

			return pagination.Page[domain.Loan]{}, scanErr
		}
		page.Data = append(page.Data, loan)
	}

	if err = rows.Close(); err != nil {
		finish(statusError)

		return pagination.Page[domain.Loan]{}, errors.Join(ErrQueryFailed, err)
	}

	if uint(len(page.Data)) == opts.EffectiveLimit() {
		last := page.Data[len(page.Data)-1]
		page.NextCursor = pagination.NextCursor(keys, map[string]any{
			"starts_at": last.StartsAt,
			"id":        last.ID,
		})
	}

	finish(statusOK)

	return page, nil
}

// diagnoseEndLoanMiss tells a missing loan apart from one that was already
// ended.
func (s *Store) diagnoseEndLoanMiss(ctx context.Context, tx adapters.DBTx, loanID int64) error {
	ds := s.dialect().
		From(goqu.T(s.tables.Loans)).
		Select(goqu.C("id")).
		Where(goqu.C("id").Eq(loanID))

	_, err := s.queryRowInt64(ctx, tx, ds, "diagnose_end_loan_miss")
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NotFoundError{Entity: "loan", Key: fmt.Sprintf("%d", loanID)}
	}
	if err != nil {
		return err
	}

	return domain.ConflictError{Reason: "loan already ended"}
}

func (s *Store) loanDataset() *goqu.SelectDataset {
	loans := goqu.T(s.tables.Loans)

	return s.dialect().
		From(loans).
		Select(
			loans.Col("id"), loans.Col("item_id"), loans.Col("borrower_id"),
			loans.Col("loan_request_id"), loans.Col("starts_at"), loans.Col("ends_at"),
		)
}

func scanLoan(rows adapters.DBRows) (domain.Loan, error) {
	var loan domain.Loan
	var endsAt sql.NullTime

	if err := rows.Scan(
		&loan.ID, &loan.ItemID, &loan.BorrowerID,
		&loan.LoanRequestID, &loan.StartsAt, &endsAt,
	); err != nil {
		return domain.Loan{}, errors.Join(ErrScanningRowFailed, err)
	}

	if endsAt.Valid {
		loan.EndsAt = &endsAt.Time
	}

	return loan, nil
}
