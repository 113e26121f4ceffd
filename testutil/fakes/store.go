// Package fakes provides in-memory test doubles for the coordinator's
// collaborator interfaces. The store fake mirrors the lifecycle semantics
// of the Postgres store so coordinator behavior can be exercised without a
// database.
package fakes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/ziplend/loancoord-go/domain"
	"github.com/ziplend/loancoord-go/pagination"
)

// Item is a seeded item row.
type Item struct {
	OwnerID   int64
	Available bool
}

// Store is an in-memory implementation of the coordinator's Store and Items
// interfaces.
type Store struct {
	mu sync.Mutex

	clock func() time.Time

	nextRequestID int64
	nextLoanID    int64
	nextMessageID int64

	users    map[int64]bool
	items    map[int64]*Item
	requests map[int64]domain.LoanRequest
	loans    map[int64]domain.Loan
	chats    map[domain.ChatKey]domain.Chat
	messages map[int64]domain.ChatMessage

	failures []error
}

// NewStore creates an empty fake store.
func NewStore() *Store {
	return &Store{
		clock:    func() time.Time { return time.Now().UTC() },
		users:    make(map[int64]bool),
		items:    make(map[int64]*Item),
		requests: make(map[int64]domain.LoanRequest),
		loans:    make(map[int64]domain.Loan),
		chats:    make(map[domain.ChatKey]domain.Chat),
		messages: make(map[int64]domain.ChatMessage),
	}
}

// SeedUser registers a user id.
func (s *Store) SeedUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[userID] = true
}

// SeedItem registers an item with its owner.
func (s *Store) SeedItem(itemID, ownerID int64, available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[ownerID] = true
	s.items[itemID] = &Item{OwnerID: ownerID, Available: available}
}

// FailNext queues an error returned by the next mutating operation before
// any state changes, simulating transient database failures.
func (s *Store) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, errs...)
}

// Messages returns all stored messages ordered by id.
func (s *Store) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]domain.ChatMessage, 0, len(s.messages))
	for _, message := range s.messages {
		messages = append(messages, message)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })

	return messages
}

func (s *Store) takeFailure() error {
	if len(s.failures) == 0 {
		return nil
	}

	err := s.failures[0]
	s.failures = s.failures[1:]

	return err
}

// OwnerOf resolves the owner of an item.
func (s *Store) OwnerOf(_ context.Context, itemID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return 0, domain.NotFoundError{Entity: "item", Key: fmt.Sprintf("%d", itemID)}
	}

	return item.OwnerID, nil
}

// UserExists reports whether a user was seeded.
func (s *Store) UserExists(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.users[userID], nil
}

// SetItemAvailableWithMessage mirrors the transactional availability flip
// of the Postgres store: the flag change and the announcement commit or
// fail together.
func (s *Store) SetItemAvailableWithMessage(
	_ context.Context,
	key domain.ChatKey,
	available bool,
) (domain.ChatMessage, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return domain.ChatMessage{}, err
	}

	item, ok := s.items[key.ItemID]
	if !ok {
		return domain.ChatMessage{}, domain.NotFoundError{
			Entity: "item", Key: fmt.Sprintf("%d", key.ItemID)}
	}

	item.Available = available
	s.ensureChatLocked(key)

	return s.appendMessageLocked(domain.NewItemAvailabilityMessage(key, item.OwnerID, available)), nil
}

// CreateLoanRequest mirrors the transactional create of the Postgres store.
func (s *Store) CreateLoanRequest(
	_ context.Context,
	itemID int64,
	borrowerID int64,
) (domain.LoanRequest, domain.ChatMessage, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return domain.LoanRequest{}, domain.ChatMessage{}, err
	}

	item, ok := s.items[itemID]
	if !ok {
		return domain.LoanRequest{}, domain.ChatMessage{},
			domain.NotFoundError{Entity: "item", Key: fmt.Sprintf("%d", itemID)}
	}

	if item.OwnerID == borrowerID {
		return domain.LoanRequest{}, domain.ChatMessage{},
			domain.ConflictError{Reason: "cannot request to borrow your own item"}
	}

	if !item.Available {
		return domain.LoanRequest{}, domain.ChatMessage{},
			domain.ConflictError{Reason: "item is not available for lending"}
	}

	for _, existing := range s.requests {
		if existing.ItemID == itemID && existing.BorrowerID == borrowerID && existing.State.Active() {
			return domain.LoanRequest{}, domain.ChatMessage{},
				domain.ConflictError{Reason: "an active loan request for this item and borrower already exists"}
		}
	}

	s.nextRequestID++
	request := domain.LoanRequest{
		ID:         s.nextRequestID,
		ItemID:     itemID,
		BorrowerID: borrowerID,
		State:      domain.LoanRequestStatePending,
		CreatedAt:  s.clock(),
	}
	s.requests[request.ID] = request

	s.ensureChatLocked(request.ChatKey())
	message := domain.NewLoanRequestMessage(
		domain.MessageTypeLoanRequestCreated, request.ChatKey(), request.ID, item.OwnerID)
	message = s.appendMessageLocked(message)

	return request, message, nil
}

// TransitionLoanRequest mirrors the guarded state change of the Postgres
// store.
func (s *Store) TransitionLoanRequest(
	_ context.Context,
	requestID int64,
	to domain.LoanRequestState,
	expected []domain.LoanRequestState,
) (domain.LoanRequest, domain.ChatMessage, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return domain.LoanRequest{}, domain.ChatMessage{}, err
	}

	messageTypes := map[domain.LoanRequestState]domain.MessageType{
		domain.LoanRequestStateCancelled: domain.MessageTypeLoanRequestCancelled,
		domain.LoanRequestStateAccepted:  domain.MessageTypeLoanRequestAccepted,
		domain.LoanRequestStateRejected:  domain.MessageTypeLoanRequestRejected,
	}
	messageType, ok := messageTypes[to]
	if !ok {
		return domain.LoanRequest{}, domain.ChatMessage{},
			domain.ValidationError{Field: "state", Reason: fmt.Sprintf("no transition to state %q", to)}
	}

	request, found := s.requests[requestID]
	if !found {
		return domain.LoanRequest{}, domain.ChatMessage{},
			domain.NotFoundError{Entity: "loan request", Key: fmt.Sprintf("%d", requestID)}
	}

	if !lo.Contains(expected, request.State) {
		return domain.LoanRequest{}, domain.ChatMessage{},
			domain.StateError{Expected: expected, Actual: request.State}
	}

	request.State = to
	s.requests[requestID] = request

	ownerID := s.items[request.ItemID].OwnerID
	message := domain.NewLoanRequestMessage(messageType, request.ChatKey(), request.ID, ownerID)
	message = s.appendMessageLocked(message)

	return request, message, nil
}

// ExecuteLoanRequest mirrors the transition-plus-loan-insert transaction of
// the Postgres store.
func (s *Store) ExecuteLoanRequest(
	_ context.Context,
	requestID int64,
	startsAt time.Time,
) (domain.Loan, domain.ChatMessage, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return domain.Loan{}, domain.ChatMessage{}, err
	}

	request, found := s.requests[requestID]
	if !found {
		return domain.Loan{}, domain.ChatMessage{},
			domain.NotFoundError{Entity: "loan request", Key: fmt.Sprintf("%d", requestID)}
	}

	if !lo.Contains(domain.ExecutableStates, request.State) {
		return domain.Loan{}, domain.ChatMessage{},
			domain.StateError{Expected: domain.ExecutableStates, Actual: request.State}
	}

	for _, existing := range s.loans {
		if existing.ItemID == request.ItemID && existing.Active() {
			return domain.Loan{}, domain.ChatMessage{},
				domain.ConflictError{Reason: "an active loan for this item already exists"}
		}
	}

	request.State = domain.LoanRequestStateExecuted

	s.nextLoanID++
	loan := domain.Loan{
		ID:            s.nextLoanID,
		ItemID:        request.ItemID,
		BorrowerID:    request.BorrowerID,
		LoanRequestID: request.ID,
		StartsAt:      startsAt.UTC(),
	}
	s.loans[loan.ID] = loan

	request.LoanID = lo.ToPtr(loan.ID)
	s.requests[requestID] = request

	message := domain.NewLoanMessage(domain.MessageTypeLoanStarted, loan.ChatKey(), loan.ID, 0)
	message.LoanRequestID = lo.ToPtr(loan.LoanRequestID)
	message = s.appendMessageLocked(message)

	return loan, message, nil
}

// EndLoan mirrors the guarded close of the Postgres store.
func (s *Store) EndLoan(
	_ context.Context,
	loanID int64,
	endsAt time.Time,
) (domain.Loan, domain.ChatMessage, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return domain.Loan{}, domain.ChatMessage{}, err
	}

	loan, found := s.loans[loanID]
	if !found {
		return domain.Loan{}, domain.ChatMessage{},
			domain.NotFoundError{Entity: "loan", Key: fmt.Sprintf("%d", loanID)}
	}

	if !loan.Active() {
		return domain.Loan{}, domain.ChatMessage{},
			domain.ConflictError{Reason: "loan already ended"}
	}

	loan.EndsAt = lo.ToPtr(endsAt.UTC())
	s.loans[loanID] = loan

	ownerID := s.items[loan.ItemID].OwnerID
	message := domain.NewLoanMessage(domain.MessageTypeLoanEnded, loan.ChatKey(), loan.ID, ownerID)
	message.LoanRequestID = lo.ToPtr(loan.LoanRequestID)
	message = s.appendMessageLocked(message)

	return loan, message, nil
}

// GetLoanRequest loads a loan request by id.
func (s *Store) GetLoanRequest(_ context.Context, requestID int64) (domain.LoanRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, found := s.requests[requestID]
	if !found {
		return domain.LoanRequest{}, domain.NotFoundError{
			Entity: "loan request", Key: fmt.Sprintf("%d", requestID)}
	}

	return request, nil
}

// GetLoan loads a loan by id.
func (s *Store) GetLoan(_ context.Context, loanID int64) (domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, found := s.loans[loanID]
	if !found {
		return domain.Loan{}, domain.NotFoundError{Entity: "loan", Key: fmt.Sprintf("%d", loanID)}
	}

	return loan, nil
}

// EnsureChat creates the chat if missing and returns it.
func (s *Store) EnsureChat(_ context.Context, key domain.ChatKey) (domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return domain.Chat{}, err
	}

	if _, ok := s.items[key.ItemID]; !ok {
		return domain.Chat{}, domain.NotFoundError{Entity: "item", Key: fmt.Sprintf("%d", key.ItemID)}
	}

	s.ensureChatLocked(key)

	return s.chats[key], nil
}

// GetChat loads a chat by key.
func (s *Store) GetChat(_ context.Context, key domain.ChatKey) (domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, found := s.chats[key]
	if !found {
		return domain.Chat{}, domain.NotFoundError{Entity: "chat", Key: key.String()}
	}

	return chat, nil
}

// AppendMessage stores an unsaved message, creating the chat if missing.
func (s *Store) AppendMessage(_ context.Context, message domain.ChatMessage) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return domain.ChatMessage{}, err
	}

	if _, ok := s.items[message.ChatKey.ItemID]; !ok {
		return domain.ChatMessage{}, domain.NotFoundError{
			Entity: "item", Key: fmt.Sprintf("%d", message.ChatKey.ItemID)}
	}

	s.ensureChatLocked(message.ChatKey)

	return s.appendMessageLocked(message), nil
}

// GetMessage loads a message by id.
func (s *Store) GetMessage(_ context.Context, messageID int64) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, found := s.messages[messageID]
	if !found {
		return domain.ChatMessage{}, domain.NotFoundError{
			Entity: "chat message", Key: fmt.Sprintf("%d", messageID)}
	}

	return message, nil
}

// MarkMessageSeen mirrors the seen-flag semantics of the Postgres store.
func (s *Store) MarkMessageSeen(_ context.Context, messageID int64, readerID int64) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return domain.ChatMessage{}, err
	}

	message, found := s.messages[messageID]
	if !found {
		return domain.ChatMessage{}, domain.NotFoundError{
			Entity: "chat message", Key: fmt.Sprintf("%d", messageID)}
	}

	if message.SenderID != nil && *message.SenderID == readerID {
		return domain.ChatMessage{}, fmt.Errorf(
			"marking own message %d as seen: %w", messageID, domain.ErrForbidden)
	}

	if !message.Seen {
		message.Seen = true
		s.messages[messageID] = message
	}

	return message, nil
}

func (s *Store) ensureChatLocked(key domain.ChatKey) {
	if _, ok := s.chats[key]; !ok {
		s.chats[key] = domain.Chat{Key: key}
	}
}

func (s *Store) appendMessageLocked(message domain.ChatMessage) domain.ChatMessage {
	s.nextMessageID++
	message.ID = s.nextMessageID
	message.CreatedAt = s.clock()
	s.messages[message.ID] = message

	chat := s.chats[message.ChatKey]
	chat.LastMessageID = message.ID
	s.chats[message.ChatKey] = chat

	return message
}

// ListLoanRequests filters and pages requests by id descending.
func (s *Store) ListLoanRequests(
	_ context.Context,
	filter domain.LoanRequestFilter,
	cursor pagination.Cursor,
	opts pagination.Options,
) (pagination.Page[domain.LoanRequest], error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	matching := make([]domain.LoanRequest, 0, len(s.requests))
	for _, request := range s.requests {
		if !s.matchRequestLocked(request, filter) {
			continue
		}
		matching = append(matching, request)
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].ID > matching[j].ID })

	if afterID, ok := cursor.Int64("id"); ok {
		matching = trimAfter(matching, func(r domain.LoanRequest) bool { return r.ID < afterID })
	}

	page := pagination.Page[domain.LoanRequest]{}
	limit := int(opts.EffectiveLimit())
	if len(matching) > limit {
		matching = matching[:limit]
	}
	page.Data = matching

	if len(matching) == limit {
		page.NextCursor = pagination.Cursor{"id": matching[len(matching)-1].ID}
	}

	return page, nil
}

// ListLoans filters and pages loans by (starts_at, id) descending.
func (s *Store) ListLoans(
	_ context.Context,
	filter domain.LoanFilter,
	cursor pagination.Cursor,
	opts pagination.Options,
) (pagination.Page[domain.Loan], error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	matching := make([]domain.Loan, 0, len(s.loans))
	for _, loan := range s.loans {
		if !s.matchLoanLocked(loan, filter) {
			continue
		}
		matching = append(matching, loan)
	}
	sort.Slice(matching, func(i, j int) bool {
		if !matching[i].StartsAt.Equal(matching[j].StartsAt) {
			return matching[i].StartsAt.After(matching[j].StartsAt)
		}
		return matching[i].ID > matching[j].ID
	})

	if afterStart, ok := cursor.Time("starts_at"); ok {
		afterID, _ := cursor.Int64("id")
		matching = trimAfter(matching, func(l domain.Loan) bool {
			if !l.StartsAt.Equal(afterStart) {
				return l.StartsAt.Before(afterStart)
			}
			return l.ID < afterID
		})
	}

	page := pagination.Page[domain.Loan]{}
	limit := int(opts.EffectiveLimit())
	if len(matching) > limit {
		matching = matching[:limit]
	}
	page.Data = matching

	if len(matching) == limit {
		last := matching[len(matching)-1]
		page.NextCursor = pagination.Cursor{"starts_at": last.StartsAt, "id": last.ID}
	}

	return page, nil
}

// ListChats filters and pages chats by last message id descending.
func (s *Store) ListChats(
	_ context.Context,
	filter domain.ChatFilter,
	cursor pagination.Cursor,
	opts pagination.Options,
) (pagination.Page[domain.Chat], error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	matching := make([]domain.Chat, 0, len(s.chats))
	for _, chat := range s.chats {
		if !s.matchChatLocked(chat, filter) {
			continue
		}
		matching = append(matching, chat)
	}
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].LastMessageID > matching[j].LastMessageID
	})

	if afterLast, ok := cursor.Int64("last_message_id"); ok {
		matching = trimAfter(matching, func(c domain.Chat) bool { return c.LastMessageID < afterLast })
	}

	page := pagination.Page[domain.Chat]{}
	limit := int(opts.EffectiveLimit())
	if len(matching) > limit {
		matching = matching[:limit]
	}
	page.Data = matching

	if len(matching) == limit {
		last := matching[len(matching)-1]
		page.NextCursor = pagination.Cursor{
			"last_message_id": last.LastMessageID,
			"item_id":         last.Key.ItemID,
			"borrower_id":     last.Key.BorrowerID,
		}
	}

	return page, nil
}

// ListMessages filters and pages messages by id descending.
func (s *Store) ListMessages(
	_ context.Context,
	filter domain.MessageFilter,
	cursor pagination.Cursor,
	opts pagination.Options,
) (pagination.Page[domain.ChatMessage], error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	matching := make([]domain.ChatMessage, 0, len(s.messages))
	for _, message := range s.messages {
		if !s.matchMessageLocked(message, filter) {
			continue
		}
		matching = append(matching, message)
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].ID > matching[j].ID })

	if afterID, ok := cursor.Int64("id"); ok {
		matching = trimAfter(matching, func(m domain.ChatMessage) bool { return m.ID < afterID })
	}

	page := pagination.Page[domain.ChatMessage]{}
	limit := int(opts.EffectiveLimit())
	if len(matching) > limit {
		matching = matching[:limit]
	}
	page.Data = matching

	if len(matching) == limit {
		page.NextCursor = pagination.Cursor{"id": matching[len(matching)-1].ID}
	}

	return page, nil
}

// ownerOfLocked resolves the owner of an item without assuming it was
// seeded. Rows pointing at an unknown item never match owner filters.
func (s *Store) ownerOfLocked(itemID int64) (int64, bool) {
	item, ok := s.items[itemID]
	if !ok {
		return 0, false
	}

	return item.OwnerID, true
}

func (s *Store) matchRequestLocked(request domain.LoanRequest, filter domain.LoanRequestFilter) bool {
	ownerID, ownerKnown := s.ownerOfLocked(request.ItemID)

	if filter.ItemID != nil && request.ItemID != *filter.ItemID {
		return false
	}
	if filter.BorrowerID != nil && request.BorrowerID != *filter.BorrowerID {
		return false
	}
	if filter.OwnerID != nil && (!ownerKnown || ownerID != *filter.OwnerID) {
		return false
	}
	if filter.MemberID != nil && request.BorrowerID != *filter.MemberID &&
		(!ownerKnown || ownerID != *filter.MemberID) {

		return false
	}
	if len(filter.States) > 0 && !lo.Contains(filter.States, request.State) {
		return false
	}

	return true
}

func (s *Store) matchLoanLocked(loan domain.Loan, filter domain.LoanFilter) bool {
	ownerID, ownerKnown := s.ownerOfLocked(loan.ItemID)

	if filter.ItemID != nil && loan.ItemID != *filter.ItemID {
		return false
	}
	if filter.BorrowerID != nil && loan.BorrowerID != *filter.BorrowerID {
		return false
	}
	if filter.OwnerID != nil && (!ownerKnown || ownerID != *filter.OwnerID) {
		return false
	}
	if filter.MemberID != nil && loan.BorrowerID != *filter.MemberID &&
		(!ownerKnown || ownerID != *filter.MemberID) {

		return false
	}
	if filter.Active != nil && loan.Active() != *filter.Active {
		return false
	}

	return true
}

func (s *Store) matchChatLocked(chat domain.Chat, filter domain.ChatFilter) bool {
	ownerID, ownerKnown := s.ownerOfLocked(chat.Key.ItemID)

	if filter.ItemID != nil && chat.Key.ItemID != *filter.ItemID {
		return false
	}
	if filter.BorrowerID != nil && chat.Key.BorrowerID != *filter.BorrowerID {
		return false
	}
	if filter.OwnerID != nil && (!ownerKnown || ownerID != *filter.OwnerID) {
		return false
	}
	if filter.MemberID != nil && chat.Key.BorrowerID != *filter.MemberID &&
		(!ownerKnown || ownerID != *filter.MemberID) {

		return false
	}

	return true
}

func (s *Store) matchMessageLocked(message domain.ChatMessage, filter domain.MessageFilter) bool {
	ownerID, ownerKnown := s.ownerOfLocked(message.ChatKey.ItemID)

	if filter.ChatKey != nil && message.ChatKey != *filter.ChatKey {
		return false
	}
	if filter.SenderID != nil && (message.SenderID == nil || *message.SenderID != *filter.SenderID) {
		return false
	}
	if filter.MemberID != nil && message.ChatKey.BorrowerID != *filter.MemberID &&
		(!ownerKnown || ownerID != *filter.MemberID) {

		return false
	}
	if filter.Seen != nil && message.Seen != *filter.Seen {
		return false
	}

	return true
}

func trimAfter[T any](rows []T, beyond func(T) bool) []T {
	trimmed := rows[:0:0]
	for _, row := range rows {
		if beyond(row) {
			trimmed = append(trimmed, row)
		}
	}

	return trimmed
}
