package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziplend/loancoord-go/domain"
)

func Test_ChatKey_String_And_Parse_RoundTrip(t *testing.T) {
	key := domain.NewChatKey(42, 7)

	token := key.String()
	assert.Equal(t, "42-7", token, "token should be itemID-borrowerID")

	parsed, err := domain.ParseChatKey(token)
	require.NoError(t, err, "round-tripped token should parse")
	assert.Equal(t, key, parsed, "parsed key should equal the original")
}

func Test_ParseChatKey_RejectsMalformedTokens(t *testing.T) {
	testCases := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "missing separator", token: "427"},
		{name: "missing borrower", token: "42-"},
		{name: "missing item", token: "-7"},
		{name: "non-numeric item", token: "abc-7"},
		{name: "non-numeric borrower", token: "42-xyz"},
		{name: "negative item", token: "-42-7"},
		{name: "trailing garbage", token: "42-7-9"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.ParseChatKey(tc.token)

			require.Error(t, err, "malformed token should be rejected")
			assert.ErrorIs(t, err, domain.ErrValidation, "parse failure should be a validation error")
		})
	}
}
