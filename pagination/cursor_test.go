package pagination_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziplend/loancoord-go/pagination"
)

func Test_Cursor_EncodeDecode_RoundTrip(t *testing.T) {
	cursor := pagination.Cursor{"id": int64(42), "starts_at": "2026-01-02T00:00:00Z"}

	token, err := cursor.Encode()
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded, err := pagination.DecodeCursor(token)
	require.NoError(t, err)

	id, ok := decoded.Int64("id")
	require.True(t, ok, "id should survive the round trip")
	assert.Equal(t, int64(42), id)

	startsAt, ok := decoded.Time("starts_at")
	require.True(t, ok, "starts_at should survive the round trip")
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), startsAt)
}

func Test_Cursor_EmptyEncodesToEmptyToken(t *testing.T) {
	token, err := pagination.Cursor{}.Encode()
	require.NoError(t, err)
	assert.Empty(t, token)

	decoded, err := pagination.DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, decoded, "the empty token selects the first page")
}

func Test_DecodeCursor_RejectsGarbage(t *testing.T) {
	for _, token := range []string{"not base64 ???", "bm90IGpzb24"} {
		_, err := pagination.DecodeCursor(token)

		require.Error(t, err, "token %q should be rejected", token)
		assert.ErrorIs(t, err, pagination.ErrInvalidCursor)
	}
}

func Test_Cursor_Int64_ToleratesJSONNumbers(t *testing.T) {
	cursor := pagination.Cursor{"a": float64(7), "b": 8, "c": int64(9), "d": "ten"}

	a, ok := cursor.Int64("a")
	require.True(t, ok)
	assert.Equal(t, int64(7), a, "JSON decoding yields float64")

	b, ok := cursor.Int64("b")
	require.True(t, ok)
	assert.Equal(t, int64(8), b)

	c, ok := cursor.Int64("c")
	require.True(t, ok)
	assert.Equal(t, int64(9), c)

	_, ok = cursor.Int64("d")
	assert.False(t, ok, "non-numeric values are not coerced")

	_, ok = cursor.Int64("missing")
	assert.False(t, ok)
}

func Test_Cursor_Time_ToleratesStringForm(t *testing.T) {
	instant := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	cursor := pagination.Cursor{
		"native": instant,
		"text":   instant.Format(time.RFC3339Nano),
		"bogus":  "yesterday",
	}

	native, ok := cursor.Time("native")
	require.True(t, ok)
	assert.True(t, native.Equal(instant))

	text, ok := cursor.Time("text")
	require.True(t, ok)
	assert.True(t, text.Equal(instant))

	_, ok = cursor.Time("bogus")
	assert.False(t, ok, "unparseable strings are not coerced")
}
