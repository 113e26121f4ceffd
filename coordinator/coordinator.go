package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ziplend/loancoord-go/domain"
	"github.com/ziplend/loancoord-go/pagination"
)

// Store is the persistence surface the coordinator drives. The postgres
// package implements it.
type Store interface {
	CreateLoanRequest(ctx context.Context, itemID int64, borrowerID int64) (domain.LoanRequest, domain.ChatMessage, error)
	TransitionLoanRequest(ctx context.Context, requestID int64, to domain.LoanRequestState, expected []domain.LoanRequestState) (domain.LoanRequest, domain.ChatMessage, error)
	ExecuteLoanRequest(ctx context.Context, requestID int64, startsAt time.Time) (domain.Loan, domain.ChatMessage, error)
	GetLoanRequest(ctx context.Context, requestID int64) (domain.LoanRequest, error)
	ListLoanRequests(ctx context.Context, filter domain.LoanRequestFilter, cursor pagination.Cursor, opts pagination.Options) (pagination.Page[domain.LoanRequest], error)

	EndLoan(ctx context.Context, loanID int64, endsAt time.Time) (domain.Loan, domain.ChatMessage, error)
	GetLoan(ctx context.Context, loanID int64) (domain.Loan, error)
	ListLoans(ctx context.Context, filter domain.LoanFilter, cursor pagination.Cursor, opts pagination.Options) (pagination.Page[domain.Loan], error)

	EnsureChat(ctx context.Context, key domain.ChatKey) (domain.Chat, error)
	GetChat(ctx context.Context, key domain.ChatKey) (domain.Chat, error)
	AppendMessage(ctx context.Context, message domain.ChatMessage) (domain.ChatMessage, error)
	GetMessage(ctx context.Context, messageID int64) (domain.ChatMessage, error)
	MarkMessageSeen(ctx context.Context, messageID int64, readerID int64) (domain.ChatMessage, error)
	ListChats(ctx context.Context, filter domain.ChatFilter, cursor pagination.Cursor, opts pagination.Options) (pagination.Page[domain.Chat], error)
	ListMessages(ctx context.Context, filter domain.MessageFilter, cursor pagination.Cursor, opts pagination.Options) (pagination.Page[domain.ChatMessage], error)

	UserExists(ctx context.Context, userID int64) (bool, error)
	SetItemAvailableWithMessage(ctx context.Context, key domain.ChatKey, available bool) (domain.ChatMessage, error)
}

// Items resolves item ownership. The postgres store implements it.
type Items interface {
	OwnerOf(ctx context.Context, itemID int64) (int64, error)
}

// Notifier receives the chat messages produced by coordinator operations,
// once per affected user, after the transaction committed. Implementations
// must not block; delivery is best effort.
type Notifier interface {
	NewChatMessage(ctx context.Context, userID int64, message domain.ChatMessage)
	UpdatedChatMessage(ctx context.Context, userID int64, message domain.ChatMessage)
}

// Logger interface for operational logging, matching the store's.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger interface for context-aware logging with automatic trace
// correlation.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// Scope restricts an operation to the caller's view. A nil field does not
// restrict; a set field must match the entity's borrower, the item's owner,
// or either of them for MemberID. Entities outside the scope are reported
// as not found.
type Scope struct {
	BorrowerID *int64
	OwnerID    *int64
	MemberID   *int64
}

// BorrowerScope scopes to entities borrowed by the given user.
func BorrowerScope(userID int64) Scope {
	return Scope{BorrowerID: &userID}
}

// OwnerScope scopes to entities on items owned by the given user.
func OwnerScope(userID int64) Scope {
	return Scope{OwnerID: &userID}
}

// MemberScope scopes to entities the given user participates in, on either
// side.
func MemberScope(userID int64) Scope {
	return Scope{MemberID: &userID}
}

func (s Scope) allows(borrowerID, ownerID int64) bool {
	if s.BorrowerID != nil && *s.BorrowerID != borrowerID {
		return false
	}
	if s.OwnerID != nil && *s.OwnerID != ownerID {
		return false
	}
	if s.MemberID != nil && *s.MemberID != borrowerID && *s.MemberID != ownerID {
		return false
	}

	return true
}

// Option configures a Coordinator during construction.
type Option func(*Coordinator) error

// WithNotifier configures the fan-out target for chat messages.
func WithNotifier(notifier Notifier) Option {
	return func(c *Coordinator) error {
		if notifier == nil {
			return errors.New("notifier must not be nil")
		}
		c.notifier = notifier

		return nil
	}
}

// WithLogger configures a logger for the coordinator.
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger

		return nil
	}
}

// WithContextualLogger configures a context-aware logger for the
// coordinator. It takes precedence over a plain Logger.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			return errors.New("contextual logger must not be nil")
		}
		c.contextualLogger = logger

		return nil
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) error {
		if clock == nil {
			return errors.New("clock must not be nil")
		}
		c.clock = clock

		return nil
	}
}

// Coordinator implements the loan lifecycle operations.
type Coordinator struct {
	store            Store
	items            Items
	notifier         Notifier
	logger           Logger
	contextualLogger ContextualLogger
	clock            func() time.Time
	validate         *validator.Validate
}

// New creates a Coordinator on top of a store and an item directory.
func New(store Store, items Items, options ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if items == nil {
		return nil, errors.New("item directory must not be nil")
	}

	coordinator := &Coordinator{
		store:    store,
		items:    items,
		clock:    func() time.Time { return time.Now().UTC() },
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	for _, option := range options {
		if err := option(coordinator); err != nil {
			return nil, err
		}
	}

	return coordinator, nil
}

func (c *Coordinator) logWarn(ctx context.Context, msg string, args ...any) {
	if c.contextualLogger != nil {
		c.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Coordinator) logInfo(ctx context.Context, msg string, args ...any) {
	if c.contextualLogger != nil {
		c.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

// notifyNew pushes a freshly appended message to both chat participants.
func (c *Coordinator) notifyNew(ctx context.Context, message domain.ChatMessage, ownerID int64) {
	if c.notifier == nil {
		return
	}

	c.notifier.NewChatMessage(ctx, message.ChatKey.BorrowerID, message)
	c.notifier.NewChatMessage(ctx, ownerID, message)
}

// notifyUpdated pushes a changed message to both chat participants.
func (c *Coordinator) notifyUpdated(ctx context.Context, message domain.ChatMessage, ownerID int64) {
	if c.notifier == nil {
		return
	}

	c.notifier.UpdatedChatMessage(ctx, message.ChatKey.BorrowerID, message)
	c.notifier.UpdatedChatMessage(ctx, ownerID, message)
}

// scopedRequest loads a loan request, resolves its item owner, and applies
// the scope. Requests outside the scope are reported as not found.
func (c *Coordinator) scopedRequest(ctx context.Context, requestID int64, scope Scope) (domain.LoanRequest, int64, error) {
	request, err := c.store.GetLoanRequest(ctx, requestID)
	if err != nil {
		return domain.LoanRequest{}, 0, err
	}

	ownerID, err := c.items.OwnerOf(ctx, request.ItemID)
	if err != nil {
		return domain.LoanRequest{}, 0, err
	}

	if !scope.allows(request.BorrowerID, ownerID) {
		return domain.LoanRequest{}, 0, domain.NotFoundError{Entity: "loan request", Key: fmt.Sprintf("%d", requestID)}
	}

	return request, ownerID, nil
}

// scopedLoan loads a loan, resolves its item owner, and applies the scope.
func (c *Coordinator) scopedLoan(ctx context.Context, loanID int64, scope Scope) (domain.Loan, int64, error) {
	loan, err := c.store.GetLoan(ctx, loanID)
	if err != nil {
		return domain.Loan{}, 0, err
	}

	ownerID, err := c.items.OwnerOf(ctx, loan.ItemID)
	if err != nil {
		return domain.Loan{}, 0, err
	}

	if !scope.allows(loan.BorrowerID, ownerID) {
		return domain.Loan{}, 0, domain.NotFoundError{Entity: "loan", Key: fmt.Sprintf("%d", loanID)}
	}

	return loan, ownerID, nil
}
