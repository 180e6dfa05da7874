package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentify_RoundTrip(t *testing.T) {
	p := NewTokenParser("test-secret")
	tok, err := p.IssueToken("6f1c", "jane@example.com", time.Hour)
	require.NoError(t, err)

	id, err := p.Identify(tok)
	require.NoError(t, err)
	assert.Equal(t, "6f1c", id.UserID)
	assert.Equal(t, "jane@example.com", id.Email)
}

func TestIdentify_Rejects(t *testing.T) {
	p := NewTokenParser("test-secret")

	expired, err := p.IssueToken("u1", "", -time.Minute)
	require.NoError(t, err)
	_, err = p.Identify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewTokenParser("other-secret").IssueToken("u1", "", time.Hour)
	require.NoError(t, err)
	_, err = p.Identify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1", "typ": "refresh", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = p.Identify(refresh)
	assert.EqualError(t, err, "invalid token type")
}

func TestParser_Unconfigured(t *testing.T) {
	p := NewTokenParser("  ")
	_, err := p.Identify("anything")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
