package domain

// Query filters restrict reads, listings and guarded updates to the rows
// visible to the caller. A nil field means "no restriction". The owner and
// member filters are resolved against the item's owner by the storage layer.

// LoanRequestFilter filters loan request queries. MemberID matches requests
// where the user is either the borrower or the item's owner.
type LoanRequestFilter struct {
	ItemID     *int64
	BorrowerID *int64
	OwnerID    *int64
	MemberID   *int64
	States     []LoanRequestState
}

// LoanFilter filters loan queries. Active selects loans with an open
// (unset) end when true, closed loans when false.
type LoanFilter struct {
	ItemID     *int64
	BorrowerID *int64
	OwnerID    *int64
	MemberID   *int64
	Active     *bool
}

// ChatFilter filters chat queries. MemberID matches chats where the user is
// either the borrower or the item's owner.
type ChatFilter struct {
	ItemID     *int64
	BorrowerID *int64
	OwnerID    *int64
	MemberID   *int64
}

// MessageFilter filters chat message queries.
type MessageFilter struct {
	ChatKey  *ChatKey
	SenderID *int64
	MemberID *int64
	Seen     *bool
}
