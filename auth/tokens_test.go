package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	tok, exp, err := tokens.Issue(42)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	id, err := tokens.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestVerifyRejects(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	valid, _, err := tokens.Issue(42)
	require.NoError(t, err)

	expired := NewTokens("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue(42)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 42,
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		tokens *Tokens
		token  string
	}{
		{"wrong secret", NewTokens("other", time.Hour), valid},
		{"expired", tokens, old},
		{"alg none", tokens, none},
		{"missing user id", tokens, noUser},
		{"missing exp", tokens, noExp},
		{"garbage", tokens, "not.a.jwt"},
		{"empty", tokens, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.tokens.Verify(tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
