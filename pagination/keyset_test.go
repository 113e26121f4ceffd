package pagination_test

import (
	"testing"

	"github.com/doug-martin/goqu/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziplend/loancoord-go/pagination"
)

func Test_Apply_FirstPage_OrdersAndLimits(t *testing.T) {
	keys := []pagination.Key{pagination.Col("id", "id")}

	ds := pagination.Apply(
		goqu.From("loans").Select("id"),
		keys,
		nil,
		pagination.Options{Limit: 10, Descending: true},
	)

	sqlQuery, _, err := ds.ToSQL()
	require.NoError(t, err)

	assert.Contains(t, sqlQuery, `ORDER BY "id" DESC`, "ordering should follow the key list")
	assert.Contains(t, sqlQuery, "LIMIT 10", "limit should be applied")
	assert.NotContains(t, sqlQuery, "WHERE", "an empty cursor needs no predicate")
}

func Test_Apply_SingleKeyCursor_BuildsStrictPredicate(t *testing.T) {
	keys := []pagination.Key{pagination.Col("id", "id")}
	cursor := pagination.Cursor{"id": int64(42)}

	descending := pagination.Apply(
		goqu.From("loans").Select("id"), keys, cursor, pagination.Options{Descending: true})
	sqlQuery, _, err := descending.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `"id" < 42`, "descending pages select rows before the cursor")

	ascending := pagination.Apply(
		goqu.From("loans").Select("id"), keys, cursor, pagination.Options{})
	sqlQuery, _, err = ascending.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `"id" > 42`, "ascending pages select rows after the cursor")
}

func Test_Apply_CompositeKeyCursor_ExpandsLexicographically(t *testing.T) {
	keys := []pagination.Key{
		pagination.Col("starts_at", "starts_at"),
		pagination.Col("id", "id"),
	}
	cursor := pagination.Cursor{"starts_at": "2026-01-02T00:00:00Z", "id": int64(7)}

	ds := pagination.Apply(
		goqu.From("loans").Select("id"), keys, cursor, pagination.Options{Descending: true})

	sqlQuery, _, err := ds.ToSQL()
	require.NoError(t, err)

	assert.Contains(t, sqlQuery, `"starts_at" < '2026-01-02T00:00:00Z'`,
		"the leading key gets a strict comparison")
	assert.Contains(t, sqlQuery, `("starts_at" = '2026-01-02T00:00:00Z') AND ("id" < 7)`,
		"ties on the leading key fall through to the next key")
	assert.Contains(t, sqlQuery, `ORDER BY "starts_at" DESC, "id" DESC`)
}

func Test_Apply_CursorPrefix_UsesOnlyPresentKeys(t *testing.T) {
	keys := []pagination.Key{
		pagination.Col("starts_at", "starts_at"),
		pagination.Col("id", "id"),
	}
	cursor := pagination.Cursor{"starts_at": "2026-01-02T00:00:00Z"}

	ds := pagination.Apply(
		goqu.From("loans").Select("id"), keys, cursor, pagination.Options{Descending: true})

	sqlQuery, _, err := ds.ToSQL()
	require.NoError(t, err)

	assert.Contains(t, sqlQuery, `"starts_at" <`, "the present prefix key is compared")
	assert.NotContains(t, sqlQuery, `"id" <`, "keys beyond the prefix are not compared")
}

func Test_Options_EffectiveLimit(t *testing.T) {
	assert.Equal(t, uint(pagination.DefaultLimit), pagination.Options{}.EffectiveLimit(),
		"zero limit falls back to the default")
	assert.Equal(t, uint(25), pagination.Options{Limit: 25}.EffectiveLimit())
	assert.Equal(t, uint(pagination.MaxLimit), pagination.Options{Limit: 100000}.EffectiveLimit(),
		"oversized limits are capped")
}

func Test_NextCursor_TruncatesAtFirstMissingKey(t *testing.T) {
	keys := []pagination.Key{
		pagination.Col("starts_at", "starts_at"),
		pagination.Col("id", "id"),
	}

	full := pagination.NextCursor(keys, map[string]any{"starts_at": "x", "id": int64(3)})
	assert.Len(t, full, 2)

	truncated := pagination.NextCursor(keys, map[string]any{"id": int64(3)})
	assert.Empty(t, truncated, "a missing leading key truncates the whole cursor")
}
