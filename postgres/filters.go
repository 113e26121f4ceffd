package postgres

import (
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/ziplend/loancoord-go/domain"
)

// Owner scoping joins the items table because ownership is not denormalized
// onto the lending tables. The join is only added when a filter needs it.

func (s *Store) itemOwnerJoin(ds *goqu.SelectDataset, itemIDCol exp.IdentifierExpression) *goqu.SelectDataset {
	items := goqu.T(s.tables.Items)

	return ds.Join(items, goqu.On(items.Col("id").Eq(itemIDCol)))
}

func (s *Store) applyLoanRequestFilter(ds *goqu.SelectDataset, filter domain.LoanRequestFilter) *goqu.SelectDataset {
	requests := goqu.T(s.tables.LoanRequests)

	if filter.ItemID != nil {
		ds = ds.Where(requests.Col("item_id").Eq(*filter.ItemID))
	}

	if filter.BorrowerID != nil {
		ds = ds.Where(requests.Col("borrower_id").Eq(*filter.BorrowerID))
	}

	if filter.OwnerID != nil || filter.MemberID != nil {
		ds = s.itemOwnerJoin(ds, requests.Col("item_id"))
	}

	if filter.OwnerID != nil {
		ds = ds.Where(goqu.T(s.tables.Items).Col("owner_id").Eq(*filter.OwnerID))
	}

	if filter.MemberID != nil {
		ds = ds.Where(goqu.Or(
			requests.Col("borrower_id").Eq(*filter.MemberID),
			goqu.T(s.tables.Items).Col("owner_id").Eq(*filter.MemberID),
		))
	}

	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, state := range filter.States {
			states[i] = string(state)
		}
		ds = ds.Where(requests.Col("state").In(states))
	}

	return ds
}

func (s *Store) applyLoanFilter(ds *goqu.SelectDataset, filter domain.LoanFilter) *goqu.SelectDataset {
	loans := goqu.T(s.tables.Loans)

	if filter.ItemID != nil {
		ds = ds.Where(loans.Col("item_id").Eq(*filter.ItemID))
	}

	if filter.BorrowerID != nil {
		ds = ds.Where(loans.Col("borrower_id").Eq(*filter.BorrowerID))
	}

	if filter.OwnerID != nil || filter.MemberID != nil {
		ds = s.itemOwnerJoin(ds, loans.Col("item_id"))
	}

	if filter.OwnerID != nil {
		ds = ds.Where(goqu.T(s.tables.Items).Col("owner_id").Eq(*filter.OwnerID))
	}

	if filter.MemberID != nil {
		ds = ds.Where(goqu.Or(
			loans.Col("borrower_id").Eq(*filter.MemberID),
			goqu.T(s.tables.Items).Col("owner_id").Eq(*filter.MemberID),
		))
	}

	if filter.Active != nil {
		if *filter.Active {
			ds = ds.Where(loans.Col("ends_at").IsNull())
		} else {
			ds = ds.Where(loans.Col("ends_at").IsNotNull())
		}
	}

	return ds
}

func (s *Store) applyChatFilter(ds *goqu.SelectDataset, filter domain.ChatFilter) *goqu.SelectDataset {
	chats := goqu.T(s.tables.Chats)

	if filter.ItemID != nil {
		ds = ds.Where(chats.Col("item_id").Eq(*filter.ItemID))
	}

	if filter.BorrowerID != nil {
		ds = ds.Where(chats.Col("borrower_id").Eq(*filter.BorrowerID))
	}

	if filter.OwnerID != nil || filter.MemberID != nil {
		ds = s.itemOwnerJoin(ds, chats.Col("item_id"))
	}

	if filter.OwnerID != nil {
		ds = ds.Where(goqu.T(s.tables.Items).Col("owner_id").Eq(*filter.OwnerID))
	}

	if filter.MemberID != nil {
		ds = ds.Where(goqu.Or(
			chats.Col("borrower_id").Eq(*filter.MemberID),
			goqu.T(s.tables.Items).Col("owner_id").Eq(*filter.MemberID),
		))
	}

	return ds
}

func (s *Store) applyMessageFilter(ds *goqu.SelectDataset, filter domain.MessageFilter) *goqu.SelectDataset {
	messages := goqu.T(s.tables.ChatMessages)

	if filter.ChatKey != nil {
		ds = ds.Where(
			messages.Col("item_id").Eq(filter.ChatKey.ItemID),
			messages.Col("borrower_id").Eq(filter.ChatKey.BorrowerID),
		)
	}

	if filter.SenderID != nil {
		ds = ds.Where(messages.Col("sender_id").Eq(*filter.SenderID))
	}

	if filter.MemberID != nil {
		ds = s.itemOwnerJoin(ds, messages.Col("item_id")).
			Where(goqu.Or(
				messages.Col("borrower_id").Eq(*filter.MemberID),
				goqu.T(s.tables.Items).Col("owner_id").Eq(*filter.MemberID),
			))
	}

	if filter.Seen != nil {
		ds = ds.Where(messages.Col("seen").Eq(*filter.Seen))
	}

	return ds
}
