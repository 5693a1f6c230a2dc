// ABOUTME: Tests for JWT verification and generation.
// ABOUTME: Covers valid tokens, expiry, bad signatures, and missing claims.

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-for-unit-tests"

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	return v
}

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Generate("user-123", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Generate("user-123", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	v := newTestVerifier(t)

	other, err := NewJWTVerifier([]byte("a-different-secret"))
	require.NoError(t, err)

	token, err := other.Generate("user-123", time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_WrongSigningMethod(t *testing.T) {
	v := newTestVerifier(t)

	// Token signed with "none" must be rejected regardless of claims.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-123"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_MissingSubClaim(t *testing.T) {
	v := newTestVerifier(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = v.Verify(signed)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestJWTVerifier_GarbageToken(t *testing.T) {
	v := newTestVerifier(t)

	_, err := v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTVerifier_EmptySecret(t *testing.T) {
	_, err := NewJWTVerifier(nil)
	assert.Error(t, err)
}
