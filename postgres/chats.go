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

// EnsureChat creates the chat for the given key if it does not exist yet and
// returns it. Concurrent calls for the same key all converge on the single
// chat row.
func (s *Store) EnsureChat(ctx context.Context, key domain.ChatKey) (domain.Chat, error) {
	ctx, finish := s.observe(ctx, "ensure_chat")

	var chat domain.Chat

	err := s.withTx(ctx, func(tx adapters.DBTx) error {
		if _, err := s.itemOwner(ctx, tx, key.ItemID); err != nil {
			return err
		}

		if err := s.ensureChatInTx(ctx, tx, key); err != nil {
			return err
		}

		var err error
		chat, err = s.getChat(ctx, tx, key)

		return err
	})
	if err != nil {
		finish(statusError)
		s.recordErrorMetrics("ensure_chat", errorType(err))

		return domain.Chat{}, err
	}

	finish(statusOK)

	return chat, nil
}

// GetChat loads a single chat by key.
func (s *Store) GetChat(ctx context.Context, key domain.ChatKey) (domain.Chat, error) {
	ctx, finish := s.observe(ctx, "get_chat")

	chat, err := s.getChat(ctx, s.db, key)
	if err != nil {
		finish(statusError)

		return domain.Chat{}, err
	}

	finish(statusOK)

	return chat, nil
}

// AppendMessage persists an unsaved message built by one of the domain
// constructors, creating the chat on first contact, and bumps the chat's
// last message pointer. The stored message is returned with its id and
// creation time filled in.
func (s *Store) AppendMessage(ctx context.Context, message domain.ChatMessage) (domain.ChatMessage, error) {
	ctx, finish := s.observe(ctx, "append_message")

	err := s.withTx(ctx, func(tx adapters.DBTx) error {
		if err := s.ensureChatInTx(ctx, tx, message.ChatKey); err != nil {
			return err
		}

		return s.appendMessageInTx(ctx, tx, &message)
	})
	if err != nil {
		finish(statusError)
		s.recordErrorMetrics("append_message", errorType(err))

		return domain.ChatMessage{}, err
	}

	finish(statusOK)
	s.logOperation(ctx, "chat message appended",
		"message_id", message.ID, "chat", message.ChatKey.String(), "type", message.Type.String())

	return message, nil
}

// GetMessage loads a single chat message by id.
func (s *Store) GetMessage(ctx context.Context, messageID int64) (domain.ChatMessage, error) {
	ctx, finish := s.observe(ctx, "get_message")

	ds := s.messageDataset().Where(goqu.T(s.tables.ChatMessages).Col("id").Eq(messageID))

	rows, err := s.query(ctx, s.db, ds, "get_message")
	if err != nil {
		finish(statusError)

		return domain.ChatMessage{}, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		finish(statusError)

		return domain.ChatMessage{}, domain.NotFoundError{
			Entity: "chat message", Key: fmt.Sprintf("%d", messageID)}
	}

	message, err := scanMessage(rows)
	if err != nil {
		finish(statusError)

		return domain.ChatMessage{}, err
	}

	finish(statusOK)

	return message, nil
}

// MarkMessageSeen flags a message as seen by its recipient. Marking a
// message the reader sent themselves is forbidden; marking an already seen
// message is a no-op.
func (s *Store) MarkMessageSeen(
	ctx context.Context,
	messageID int64,
	readerID int64,
) (domain.ChatMessage, error) {

	ctx, finish := s.observe(ctx, "mark_message_seen")

	var message domain.ChatMessage

	err := s.withTx(ctx, func(tx adapters.DBTx) error {
		ds := s.messageDataset().Where(goqu.T(s.tables.ChatMessages).Col("id").Eq(messageID))

		rows, err := s.query(ctx, tx, ds, "mark_message_seen")
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		if !rows.Next() {
			return domain.NotFoundError{Entity: "chat message", Key: fmt.Sprintf("%d", messageID)}
		}

		if message, err = scanMessage(rows); err != nil {
			return err
		}

		if err = rows.Close(); err != nil {
			return errors.Join(ErrQueryFailed, err)
		}

		if message.SenderID != nil && *message.SenderID == readerID {
			return fmt.Errorf("marking own message %d as seen: %w", messageID, domain.ErrForbidden)
		}

		if message.Seen {
			return nil
		}

		updateSQL, _, buildErr := s.dialect().
			Update(goqu.T(s.tables.ChatMessages)).
			Set(goqu.Record{"seen": true}).
			Where(goqu.C("id").Eq(messageID)).
			ToSQL()
		if buildErr != nil {
			return errors.Join(ErrBuildingQueryFailed, buildErr)
		}

		if _, err = s.exec(ctx, tx, updateSQL, "mark_message_seen"); err != nil {
			return err
		}

		message.Seen = true

		return nil
	})
	if err != nil {
		finish(statusError)
		s.recordErrorMetrics("mark_message_seen", errorType(err))

		return domain.ChatMessage{}, err
	}

	finish(statusOK)

	return message, nil
}

// ListChats returns a page of chats matching the filter, ordered by most
// recent activity, with a keyset cursor for the next page.
func (s *Store) ListChats(
	ctx context.Context,
	filter domain.ChatFilter,
	cursor pagination.Cursor,
	opts pagination.Options,
) (pagination.Page[domain.Chat], error) {

	ctx, finish := s.observe(ctx, "list_chats")

	chats := goqu.T(s.tables.Chats)
	keys := []pagination.Key{
		{Name: "last_message_id", Column: chats.Col("last_message_id")},
		{Name: "item_id", Column: chats.Col("item_id")},
		{Name: "borrower_id", Column: chats.Col("borrower_id")},
	}

	normalized := pagination.Cursor{}
	for _, name := range []string{"last_message_id", "item_id", "borrower_id"} {
		value, ok := cursor.Int64(name)
		if !ok {
			break
		}
		normalized[name] = value
	}

	opts.Descending = true
	ds := pagination.Apply(s.applyChatFilter(s.chatDataset(), filter), keys, normalized, opts)

	rows, err := s.query(ctx, s.db, ds, "list_chats")
	if err != nil {
		finish(statusError)

		return pagination.Page[domain.Chat]{}, err
	}
	defer func() { _ = rows.Close() }()

	page := pagination.Page[domain.Chat]{}
	for rows.Next() {
		chat, scanErr := scanChat(rows)
		if scanErr != nil {
			finish(statusError)

			return pagination.Page[domain.Chat]{}, scanErr
		}
		page.Data = append(page.Data, chat)
	}

	if err = rows.Close(); err != nil {
		finish(statusError)

		return pagination.Page[domain.Chat]{}, errors.Join(ErrQueryFailed, err)
	}

	if uint(len(page.Data)) == opts.EffectiveLimit() {
		last := page.Data[len(page.Data)-1]
		page.NextCursor = pagination.NextCursor(keys, map[string]any{
			"last_message_id": last.LastMessageID,
			"item_id":         last.Key.ItemID,
			"borrower_id":     last.Key.BorrowerID,
		})
	}

	finish(statusOK)

	return page, nil
}

// ListMessages returns a page of chat messages matching the filter, newest
// first, with a keyset cursor for the next page.
func (s *Store) ListMessages(
	ctx context.Context,
	filter domain.MessageFilter,
	cursor pagination.Cursor,
	opts pagination.Options,
) (pagination.Page[domain.ChatMessage], error) {

	ctx, finish := s.observe(ctx, "list_messages")

	messages := goqu.T(s.tables.ChatMessages)
	keys := []pagination.Key{{Name: "id", Column: messages.Col("id")}}

	if id, ok := cursor.Int64("id"); ok {
		cursor = pagination.Cursor{"id": id}
	}

	opts.Descending = true
	ds := pagination.Apply(s.applyMessageFilter(s.messageDataset(), filter), keys, cursor, opts)

	rows, err := s.query(ctx, s.db, ds, "list_messages")
	if err != nil {
		finish(statusError)

		return pagination.Page[domain.ChatMessage]{}, err
	}
	defer func() { _ = rows.Close() }()

	page := pagination.Page[domain.ChatMessage]{}
	for rows.Next() {
		message, scanErr := scanMessage(rows)
		if scanErr != nil {
			finish(statusError)

			return pagination.Page[domain.ChatMessage]{}, scanErr
		}
		page.Data = append(page.Data, message)
	}

	if err = rows.Close(); err != nil {
		finish(statusError)

		return pagination.Page[domain.ChatMessage]{}, errors.Join(ErrQueryFailed, err)
	}

	if uint(len(page.Data)) == opts.EffectiveLimit() {
		last := page.Data[len(page.Data)-1]
		page.NextCursor = pagination.NextCursor(keys, map[string]any{"id": last.ID})
	}

	finish(statusOK)

	return page, nil
}

func (s *Store) ensureChatInTx(ctx context.Context, tx adapters.DBTx, key domain.ChatKey) error {
	insertSQL, _, err := s.dialect().
		Insert(goqu.T(s.tables.Chats)).
		Rows(goqu.Record{
			"item_id":     key.ItemID,
			"borrower_id": key.BorrowerID,
		}).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if err != nil {
		return errors.Join(ErrBuildingQueryFailed, err)
	}

	start := time.Now()
	_, err = tx.Exec(ctx, insertSQL)
	s.logQuery(ctx, insertSQL, "ensure_chat", time.Since(start))

	if err != nil {
		return errors.Join(ErrQueryFailed, s.translateError(err))
	}

	return nil
}

func (s *Store) appendMessageInTx(ctx context.Context, tx adapters.DBTx, message *domain.ChatMessage) error {
	record := goqu.Record{
		"item_id":     message.ChatKey.ItemID,
		"borrower_id": message.ChatKey.BorrowerID,
		"type":        message.Type.String(),
	}
	if message.SenderID != nil {
		record["sender_id"] = *message.SenderID
	}
	if message.Text != nil {
		record["text"] = *message.Text
	}
	if message.LoanRequestID != nil {
		record["loan_request_id"] = *message.LoanRequestID
	}
	if message.LoanID != nil {
		record["loan_id"] = *message.LoanID
	}

	insertSQL, _, err := s.dialect().
		Insert(goqu.T(s.tables.ChatMessages)).
		Rows(record).
		Returning(goqu.C("id"), goqu.C("created_at")).
		ToSQL()
	if err != nil {
		return errors.Join(ErrBuildingQueryFailed, err)
	}

	if err = s.queryRowScan(ctx, tx, insertSQL, "append_message",
		&message.ID, &message.CreatedAt); err != nil {

		return err
	}

	bumpSQL, _, err := s.dialect().
		Update(goqu.T(s.tables.Chats)).
		Set(goqu.Record{"last_message_id": message.ID}).
		Where(
			goqu.C("item_id").Eq(message.ChatKey.ItemID),
			goqu.C("borrower_id").Eq(message.ChatKey.BorrowerID),
		).
		ToSQL()
	if err != nil {
		return errors.Join(ErrBuildingQueryFailed, err)
	}

	affected, err := s.exec(ctx, tx, bumpSQL, "append_message")
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.NotFoundError{Entity: "chat", Key: message.ChatKey.String()}
	}

	return nil
}

func (s *Store) getChat(ctx context.Context, r runner, key domain.ChatKey) (domain.Chat, error) {
	chats := goqu.T(s.tables.Chats)
	ds := s.chatDataset().Where(
		chats.Col("item_id").Eq(key.ItemID),
		chats.Col("borrower_id").Eq(key.BorrowerID),
	)

	rows, err := s.query(ctx, r, ds, "get_chat")
	if err != nil {
		return domain.Chat{}, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return domain.Chat{}, domain.NotFoundError{Entity: "chat", Key: key.String()}
	}

	chat, err := scanChat(rows)
	if err != nil {
		return domain.Chat{}, err
	}

	return chat, rows.Close()
}

func (s *Store) chatDataset() *goqu.SelectDataset {
	chats := goqu.T(s.tables.Chats)

	return s.dialect().
		From(chats).
		Select(chats.Col("item_id"), chats.Col("borrower_id"), chats.Col("last_message_id"))
}

func (s *Store) messageDataset() *goqu.SelectDataset {
	messages := goqu.T(s.tables.ChatMessages)

	return s.dialect().
		From(messages).
		Select(
			messages.Col("id"), messages.Col("item_id"), messages.Col("borrower_id"),
			messages.Col("type"), messages.Col("sender_id"), messages.Col("text"),
			messages.Col("loan_request_id"), messages.Col("loan_id"),
			messages.Col("seen"), messages.Col("created_at"),
		)
}

func scanChat(rows adapters.DBRows) (domain.Chat, error) {
	var chat domain.Chat

	if err := rows.Scan(&chat.Key.ItemID, &chat.Key.BorrowerID, &chat.LastMessageID); err != nil {
		return domain.Chat{}, errors.Join(ErrScanningRowFailed, err)
	}

	return chat, nil
}

func scanMessage(rows adapters.DBRows) (domain.ChatMessage, error) {
	var message domain.ChatMessage
	var messageType string
	var senderID, loanRequestID, loanID sql.NullInt64
	var text sql.NullString

	if err := rows.Scan(
		&message.ID, &message.ChatKey.ItemID, &message.ChatKey.BorrowerID,
		&messageType, &senderID, &text,
		&loanRequestID, &loanID,
		&message.Seen, &message.CreatedAt,
	); err != nil {
		return domain.ChatMessage{}, errors.Join(ErrScanningRowFailed, err)
	}

	message.Type = domain.MessageType(messageType)
	if senderID.Valid {
		message.SenderID = &senderID.Int64
	}
	if text.Valid {
		message.Text = &text.String
	}
	if loanRequestID.Valid {
		message.LoanRequestID = &loanRequestID.Int64
	}
	if loanID.Valid {
		message.LoanID = &loanID.Int64
	}

	return message, nil
}
