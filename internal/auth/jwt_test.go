package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	tok, err := m.GenerateToken(42)
	require.NoError(t, err)

	claims, err := m.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.MemberID)
}

func TestParseRejects(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	other, err := NewTokenManager("other", time.Hour).GenerateToken(42)
	require.NoError(t, err)
	_, err = m.ParseToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewTokenManager("secret", -time.Minute).GenerateToken(42)
	require.NoError(t, err)
	_, err = m.ParseToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noMember, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = m.ParseToken(noMember)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ParseToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMemberContext(t *testing.T) {
	_, ok := MemberFromContext(context.Background())
	assert.False(t, ok)

	id, ok := MemberFromContext(WithMember(context.Background(), 7))
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}
