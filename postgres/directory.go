package postgres

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"

	"github.com/ziplend/loancoord-go/domain"
	"github.com/ziplend/loancoord-go/postgres/internal/adapters"
)

// OwnerOf resolves the owning user of an item.
func (s *Store) OwnerOf(ctx context.Context, itemID int64) (int64, error) {
	ctx, finish := s.observe(ctx, "owner_of")

	ownerID, err := s.itemOwner(ctx, s.db, itemID)
	if err != nil {
		finish(statusError)

		return 0, err
	}

	finish(statusOK)

	return ownerID, nil
}

// UserExists reports whether a user row exists.
func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	ds := s.dialect().
		From(goqu.T(s.tables.Users)).
		Select(goqu.C("id")).
		Where(goqu.C("id").Eq(userID))

	_, err := s.queryRowInt64(ctx, s.db, ds, "user_exists")
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// SetItemAvailableWithMessage flips the availability flag of an item and
// records the owner's announcement in the chat, in one transaction. Either
// both the flag and the message commit or neither does.
func (s *Store) SetItemAvailableWithMessage(
	ctx context.Context,
	key domain.ChatKey,
	available bool,
) (domain.ChatMessage, error) {

	ctx, finish := s.observe(ctx, "set_item_available")

	var message domain.ChatMessage

	err := s.withTx(ctx, func(tx adapters.DBTx) error {
		ownerID, err := s.itemOwner(ctx, tx, key.ItemID)
		if err != nil {
			return err
		}

		updateSQL, _, err := s.dialect().
			Update(goqu.T(s.tables.Items)).
			Set(goqu.Record{"available": available}).
			Where(goqu.C("id").Eq(key.ItemID)).
			ToSQL()
		if err != nil {
			return errors.Join(ErrBuildingQueryFailed, err)
		}

		if _, err = s.exec(ctx, tx, updateSQL, "set_item_available"); err != nil {
			return err
		}

		if err = s.ensureChatInTx(ctx, tx, key); err != nil {
			return err
		}

		message = domain.NewItemAvailabilityMessage(key, ownerID, available)

		return s.appendMessageInTx(ctx, tx, &message)
	})
	if err != nil {
		finish(statusError)
		s.recordErrorMetrics("set_item_available", errorType(err))

		return domain.ChatMessage{}, err
	}

	finish(statusOK)
	s.logOperation(ctx, "item availability changed",
		"item_id", key.ItemID, "available", available)

	return message, nil
}
