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

var transitionMessageTypes = map[domain.LoanRequestState]domain.MessageType{
	domain.LoanRequestStateCancelled: domain.MessageTypeLoanRequestCancelled,
	domain.LoanRequestStateAccepted:  domain.MessageTypeLoanRequestAccepted,
	domain.LoanRequestStateRejected:  domain.MessageTypeLoanRequestRejected,
}

// CreateLoanRequest opens a new pending loan request for an item, ensures
// the chat between borrower and owner exists, and records the request
// message, all in one transaction.
//
// A second active request for the same item and borrower is rejected with a
// conflict by the partial unique index on the loan requests table.
func (s *Store) CreateLoanRequest(
	ctx context.Context,
	itemID int64,
	borrowerID int64,
) (domain.LoanRequest, domain.ChatMessage, error) {

	ctx, finish := s.observe(ctx, "create_loan_request")

	var request domain.LoanRequest
	var message domain.ChatMessage

	err := s.withTx(ctx, func(tx adapters.DBTx) error {
		ownerID, available, err := s.itemOwnerAndAvailability(ctx, tx, itemID)
		if err != nil {
			return err
		}

		if ownerID == borrowerID {
			return domain.ConflictError{Reason: "cannot request to borrow your own item"}
		}

		if !available {
			return domain.ConflictError{Reason: "item is not available for lending"}
		}

		request = domain.LoanRequest{
			ItemID:     itemID,
			BorrowerID: borrowerID,
			State:      domain.LoanRequestStatePending,
		}

		insertSQL, _, err := s.dialect().
			Insert(goqu.T(s.tables.LoanRequests)).
			Rows(goqu.Record{
				"item_id":     itemID,
				"borrower_id": borrowerID,
				"state":       string(request.State),
			}).
			Returning(goqu.C("id"), goqu.C("created_at")).
			ToSQL()
		if err != nil {
			return errors.Join(ErrBuildingQueryFailed, err)
		}

		if err = s.queryRowScan(ctx, tx, insertSQL, "create_loan_request",
			&request.ID, &request.CreatedAt); err != nil {

			return err
		}

		if err = s.ensureChatInTx(ctx, tx, request.ChatKey()); err != nil {
			return err
		}

		message = domain.NewLoanRequestMessage(
			domain.MessageTypeLoanRequestCreated, request.ChatKey(), request.ID, ownerID)

		return s.appendMessageInTx(ctx, tx, &message)
	})
	if err != nil {
		finish(statusError)
		s.recordErrorMetrics("create_loan_request", errorType(err))

		return domain.LoanRequest{}, domain.ChatMessage{}, err
	}

	finish(statusOK)
	s.logOperation(ctx, "loan request created",
		"loan_request_id", request.ID, "item_id", itemID, "borrower_id", borrowerID)

	return request, message, nil
}

// TransitionLoanRequest moves a loan request into the target state with a
// guarded update that only matches while the request is still in one of the
// expected states, and records the matching chat message.
//
// When the guard matches no row the request is re-read to tell a missing
// request apart from one that raced into another state.
func (s *Store) TransitionLoanRequest(
	ctx context.Context,
	requestID int64,
	to domain.LoanRequestState,
	expected []domain.LoanRequestState,
) (domain.LoanRequest, domain.ChatMessage, error) {

	ctx, finish := s.observe(ctx, "transition_loan_request")

	messageType, ok := transitionMessageTypes[to]
	if !ok {
		finish(statusError)

		return domain.LoanRequest{}, domain.ChatMessage{},
			domain.ValidationError{Field: "state", Reason: fmt.Sprintf("no transition to state %q", to)}
	}

	var request domain.LoanRequest
	var message domain.ChatMessage

	err := s.withTx(ctx, func(tx adapters.DBTx) error {
		var err error
		request, err = s.guardedStateUpdate(ctx, tx, requestID, to, expected)
		if err != nil {
			return err
		}

		ownerID, err := s.itemOwner(ctx, tx, request.ItemID)
		if err != nil {
			return err
		}

		message = domain.NewLoanRequestMessage(messageType, request.ChatKey(), request.ID, ownerID)

		return s.appendMessageInTx(ctx, tx, &message)
	})
	if err != nil {
		finish(statusError)
		s.recordErrorMetrics("transition_loan_request", errorType(err))

		return domain.LoanRequest{}, domain.ChatMessage{}, err
	}

	finish(statusOK)
	s.logOperation(ctx, "loan request transitioned",
		"loan_request_id", request.ID, "state", string(to))

	return request, message, nil
}

// ExecuteLoanRequest turns an accepted loan request into a running loan:
// the request moves to executed, the loan row is inserted, the request is
// linked to it, and the loan started message is recorded, all in one
// transaction. Overlapping active loans for the same item are rejected with
// a conflict by the exclusion constraint on the loans table.
func (s *Store) ExecuteLoanRequest(
	ctx context.Context,
	requestID int64,
	startsAt time.Time,
) (domain.Loan, domain.ChatMessage, error) {

	ctx, finish := s.observe(ctx, "execute_loan_request")

	var loan domain.Loan
	var message domain.ChatMessage

	err := s.withTx(ctx, func(tx adapters.DBTx) error {
		request, err := s.guardedStateUpdate(
			ctx, tx, requestID, domain.LoanRequestStateExecuted, domain.ExecutableStates)
		if err != nil {
			return err
		}

		loan = domain.Loan{
			ItemID:        request.ItemID,
			BorrowerID:    request.BorrowerID,
			LoanRequestID: request.ID,
			StartsAt:      startsAt.UTC(),
		}

		insertSQL, _, err := s.dialect().
			Insert(goqu.T(s.tables.Loans)).
			Rows(goqu.Record{
				"item_id":         loan.ItemID,
				"borrower_id":     loan.BorrowerID,
				"loan_request_id": loan.LoanRequestID,
				"starts_at":       loan.StartsAt,
			}).
			Returning(goqu.C("id")).
			ToSQL()
		if err != nil {
			return errors.Join(ErrBuildingQueryFailed, err)
		}

		if err = s.queryRowScan(ctx, tx, insertSQL, "execute_loan_request", &loan.ID); err != nil {
			return err
		}

		linkSQL, _, err := s.dialect().
			Update(goqu.T(s.tables.LoanRequests)).
			Set(goqu.Record{"loan_id": loan.ID}).
			Where(goqu.C("id").Eq(request.ID)).
			ToSQL()
		if err != nil {
			return errors.Join(ErrBuildingQueryFailed, err)
		}

		if _, err = s.exec(ctx, tx, linkSQL, "execute_loan_request"); err != nil {
			return err
		}

		message = domain.NewLoanMessage(domain.MessageTypeLoanStarted, loan.ChatKey(), loan.ID, 0)
		message.LoanRequestID = &loan.LoanRequestID

		return s.appendMessageInTx(ctx, tx, &message)
	})
	if err != nil {
		finish(statusError)
		s.recordErrorMetrics("execute_loan_request", errorType(err))

		return domain.Loan{}, domain.ChatMessage{}, err
	}

	finish(statusOK)
	s.logOperation(ctx, "loan request executed",
		"loan_request_id", requestID, "loan_id", loan.ID)

	return loan, message, nil
}

// GetLoanRequest loads a single loan request by id.
func (s *Store) GetLoanRequest(ctx context.Context, requestID int64) (domain.LoanRequest, error) {
	ctx, finish := s.observe(ctx, "get_loan_request")

	ds := s.loanRequestDataset().Where(goqu.T(s.tables.LoanRequests).Col("id").Eq(requestID))

	rows, err := s.query(ctx, s.db, ds, "get_loan_request")
	if err != nil {
		finish(statusError)

		return domain.LoanRequest{}, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		finish(statusError)

		return domain.LoanRequest{}, domain.NotFoundError{
			Entity: "loan request", Key: fmt.Sprintf("%d", requestID)}
	}

	request, err := scanLoanRequest(rows)
	if err != nil {
		finish(statusError)

		return domain.LoanRequest{}, err
	}

	finish(statusOK)

	return request, nil
}

// ListLoanRequests returns a page of loan requests matching the filter,
// newest first, with a keyset cursor for the next page.
func (s *Store) ListLoanRequests(
	ctx context.Context,
	filter domain.LoanRequestFilter,
	cursor pagination.Cursor,
	opts pagination.Options,
) (pagination.Page[domain.LoanRequest], error) {

	ctx, finish := s.observe(ctx, "list_loan_requests")

	requests := goqu.T(s.tables.LoanRequests)
	keys := []pagination.Key{{Name: "id", Column: requests.Col("id")}}

	if id, ok := cursor.Int64("id"); ok {
		cursor = pagination.Cursor{"id": id}
	}

	opts.Descending = true
	ds := pagination.Apply(s.applyLoanRequestFilter(s.loanRequestDataset(), filter), keys, cursor, opts)

	rows, err := s.query(ctx, s.db, ds, "list_loan_requests")
	if err != nil {
		finish(statusError)

		return pagination.Page[domain.LoanRequest]{}, err
	}
	defer func() { _ = rows.Close() }()

	page := pagination.Page[domain.LoanRequest]{}
	for rows.Next() {
		request, scanErr := scanLoanRequest(rows)
		if scanErr != nil {
			finish(statusError)

			return pagination.Page[domain.LoanRequest]{}, scanErr
		}
		page.Data = append(page.Data, request)
	}

	if err = rows.Close(); err != nil {
		finish(statusError)

		return pagination.Page[domain.LoanRequest]{}, errors.Join(ErrQueryFailed, err)
	}

	if uint(len(page.Data)) == opts.EffectiveLimit() {
		last := page.Data[len(page.Data)-1]
		page.NextCursor = pagination.NextCursor(keys, map[string]any{"id": last.ID})
	}

	finish(statusOK)

	return page, nil
}

// guardedStateUpdate performs the conditional state change and returns the
// updated request. On a guard miss it re-reads the row and reports either
// not-found or a state error carrying the actual state.
func (s *Store) guardedStateUpdate(
	ctx context.Context,
	tx adapters.DBTx,
	requestID int64,
	to domain.LoanRequestState,
	expected []domain.LoanRequestState,
) (domain.LoanRequest, error) {

	states := make([]string, len(expected))
	for i, state := range expected {
		states[i] = string(state)
	}

	updateSQL, _, err := s.dialect().
		Update(goqu.T(s.tables.LoanRequests)).
		Set(goqu.Record{"state": string(to)}).
		Where(
			goqu.C("id").Eq(requestID),
			goqu.C("state").In(states),
		).
		Returning(
			goqu.C("id"), goqu.C("item_id"), goqu.C("borrower_id"),
			goqu.C("state"), goqu.C("loan_id"), goqu.C("created_at"),
		).
		ToSQL()
	if err != nil {
		return domain.LoanRequest{}, errors.Join(ErrBuildingQueryFailed, err)
	}

	start := time.Now()
	rows, err := tx.Query(ctx, updateSQL)
	s.logQuery(ctx, updateSQL, "guarded_state_update", time.Since(start))

	if err != nil {
		return domain.LoanRequest{}, errors.Join(ErrQueryFailed, s.translateError(err))
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		s.recordGuardMiss("transition_loan_request")

		return domain.LoanRequest{}, s.diagnoseGuardMiss(ctx, tx, requestID, expected)
	}

	request, err := scanLoanRequest(rows)
	if err != nil {
		return domain.LoanRequest{}, err
	}

	return request, rows.Close()
}

// diagnoseGuardMiss tells a missing loan request apart from one whose state
// moved on concurrently.
func (s *Store) diagnoseGuardMiss(
	ctx context.Context,
	tx adapters.DBTx,
	requestID int64,
	expected []domain.LoanRequestState,
) error {

	ds := s.dialect().
		From(goqu.T(s.tables.LoanRequests)).
		Select(goqu.C("state")).
		Where(goqu.C("id").Eq(requestID))

	rows, err := s.query(ctx, tx, ds, "diagnose_guard_miss")
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return domain.NotFoundError{Entity: "loan request", Key: fmt.Sprintf("%d", requestID)}
	}

	var actual string
	if err = rows.Scan(&actual); err != nil {
		return errors.Join(ErrScanningRowFailed, err)
	}

	return domain.StateError{Expected: expected, Actual: domain.LoanRequestState(actual)}
}

// itemOwner resolves the owner of an item inside the current transaction.
func (s *Store) itemOwner(ctx context.Context, r runner, itemID int64) (int64, error) {
	ds := s.dialect().
		From(goqu.T(s.tables.Items)).
		Select(goqu.C("owner_id")).
		Where(goqu.C("id").Eq(itemID))

	ownerID, err := s.queryRowInt64(ctx, r, ds, "item_owner")
	if errors.Is(err, domain.ErrNotFound) {
		return 0, domain.NotFoundError{Entity: "item", Key: fmt.Sprintf("%d", itemID)}
	}

	return ownerID, err
}

// itemOwnerAndAvailability resolves owner and availability flag of an item
// in one read.
func (s *Store) itemOwnerAndAvailability(
	ctx context.Context,
	r runner,
	itemID int64,
) (int64, bool, error) {

	ds := s.dialect().
		From(goqu.T(s.tables.Items)).
		Select(goqu.C("owner_id"), goqu.C("available")).
		Where(goqu.C("id").Eq(itemID))

	rows, err := s.query(ctx, r, ds, "item_owner_and_availability")
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return 0, false, domain.NotFoundError{Entity: "item", Key: fmt.Sprintf("%d", itemID)}
	}

	var ownerID int64
	var available bool
	if err = rows.Scan(&ownerID, &available); err != nil {
		return 0, false, errors.Join(ErrScanningRowFailed, err)
	}

	return ownerID, available, rows.Close()
}

// queryRowScan runs a statement expected to return exactly one row and
// scans it into dest.
func (s *Store) queryRowScan(
	ctx context.Context,
	r runner,
	sqlQuery string,
	action string,
	dest ...any,
) error {

	start := time.Now()
	rows, err := r.Query(ctx, sqlQuery)
	s.logQuery(ctx, sqlQuery, action, time.Since(start))

	if err != nil {
		translated := s.translateError(err)
		s.logError(ctx, "query failed", translated, logAttrOperation, action)

		return errors.Join(ErrQueryFailed, translated)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return domain.ErrNotFound
	}

	if err = rows.Scan(dest...); err != nil {
		return errors.Join(ErrScanningRowFailed, err)
	}

	return rows.Close()
}

func (s *Store) loanRequestDataset() *goqu.SelectDataset {
	requests := goqu.T(s.tables.LoanRequests)

	return s.dialect().
		From(requests).
		Select(
			requests.Col("id"), requests.Col("item_id"), requests.Col("borrower_id"),
			requests.Col("state"), requests.Col("loan_id"), requests.Col("created_at"),
		)
}

func scanLoanRequest(rows adapters.DBRows) (domain.LoanRequest, error) {
	var request domain.LoanRequest
	var state string
	var loanID sql.NullInt64

	if err := rows.Scan(
		&request.ID, &request.ItemID, &request.BorrowerID,
		&state, &loanID, &request.CreatedAt,
	); err != nil {
		return domain.LoanRequest{}, errors.Join(ErrScanningRowFailed, err)
	}

	request.State = domain.LoanRequestState(state)
	if loanID.Valid {
		request.LoanID = &loanID.Int64
	}

	return request, nil
}

// errorType classifies an error for metrics labels.
func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrState):
		return "state"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrTransientConflict):
		return "transient_conflict"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
