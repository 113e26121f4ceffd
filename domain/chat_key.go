package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ChatKey identifies the chat thread between an item's owner and a borrower.
//
// Its external token form is "<item_id>-<borrower_id>"; parsing and
// formatting round-trip exactly.
type ChatKey struct {
	ItemID     int64
	BorrowerID int64
}

// NewChatKey builds a ChatKey from its components.
func NewChatKey(itemID, borrowerID int64) ChatKey {
	return ChatKey{ItemID: itemID, BorrowerID: borrowerID}
}

// ParseChatKey parses the "<item_id>-<borrower_id>" token form.
func ParseChatKey(token string) (ChatKey, error) {
	itemPart, borrowerPart, found := strings.Cut(token, "-")
	if !found {
		return ChatKey{}, ValidationError{Field: "chat_id", Reason: "expected <item_id>-<borrower_id>, got: " + token}
	}

	itemID, itemErr := strconv.ParseInt(itemPart, 10, 64)
	borrowerID, borrowerErr := strconv.ParseInt(borrowerPart, 10, 64)

	if itemErr != nil || borrowerErr != nil || itemID < 0 || borrowerID < 0 {
		return ChatKey{}, ValidationError{Field: "chat_id", Reason: "expected <item_id>-<borrower_id>, got: " + token}
	}

	return ChatKey{ItemID: itemID, BorrowerID: borrowerID}, nil
}

func (k ChatKey) String() string {
	return fmt.Sprintf("%d-%d", k.ItemID, k.BorrowerID)
}
