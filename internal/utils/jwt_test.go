package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestSignAndParseToken(t *testing.T) {
	tok, err := SignToken(testSecret, 42, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, 5*time.Second)

	id, err := ParseToken(testSecret, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
}

func TestParseToken_Expired(t *testing.T) {
	claims := SessionClaims{
		ID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseToken(testSecret, raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseToken_Tampered(t *testing.T) {
	tok, err := SignToken(testSecret, 42, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(tok.Token, ".")
	require.Len(t, parts, 3)
	// Swap the payload for one issued to another user; the signature no longer matches.
	other, err := SignToken(testSecret, 43, time.Hour)
	require.NoError(t, err)
	parts[1] = strings.Split(other.Token, ".")[1]

	_, err = ParseToken(testSecret, strings.Join(parts, "."))
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = ParseToken("another-secret", tok.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = ParseToken(testSecret, "not-a-token")
	assert.ErrorIs(t, err, jwt.ErrTokenMalformed)
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	claims := SessionClaims{
		ID:               1,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken(testSecret, raw)
	assert.Error(t, err)
}

func TestParseExpiry(t *testing.T) {
	cases := map[string]time.Duration{
		"90d": 90 * 24 * time.Hour,
		"1d":  24 * time.Hour,
		"12h": 12 * time.Hour,
		"30m": 30 * time.Minute,
		"60":  time.Minute,
	}
	for in, want := range cases {
		got, err := ParseExpiry(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "xd", "-1d", "0", "soon"} {
		_, err := ParseExpiry(bad)
		assert.Error(t, err, bad)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, VerifyPassword(hash, "correct horse"))
	assert.False(t, VerifyPassword(hash, "wrong horse"))
}
