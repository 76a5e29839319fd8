package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	tok, err := Generate("secret", "A1", time.Minute)
	require.NoError(t, err)

	userID, err := Parse("secret", tok)
	require.NoError(t, err)
	assert.Equal(t, "A1", userID)
}

func TestParseWrongSecret(t *testing.T) {
	tok, err := Generate("secret", "A1", time.Minute)
	require.NoError(t, err)

	_, err = Parse("other-secret", tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseExpiredToken(t *testing.T) {
	tok, err := Generate("secret", "A1", -time.Minute)
	require.NoError(t, err)

	_, err = Parse("secret", tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseGarbage(t *testing.T) {
	_, err := Parse("secret", "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
