package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", "door-3", "STAFF", time.Hour)
	require.NoError(t, err)

	claims, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "door-3", claims.Subject)
	assert.Equal(t, "STAFF", claims.Role)

	_, err = ParseAccessToken("other", tok.Token)
	assert.Error(t, err)
}

func TestExpiredAndUnsignedTokensRejected(t *testing.T) {
	tok, err := NewAccessToken("secret", "door-3", "STAFF", -time.Minute)
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", tok.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x", "role": "ADMIN"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken("secret", none)
	assert.Error(t, err)
}
