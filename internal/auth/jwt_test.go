package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)

	token, expiresAt, err := m.GenerateToken("user-1", "a@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 5*time.Second)

	userID, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestJWTManager_RejectsWrongSecret(t *testing.T) {
	token, _, err := NewJWTManager("one", time.Minute).GenerateToken("user-1", "")
	require.NoError(t, err)

	_, err = NewJWTManager("two", time.Minute).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := m.GenerateToken("user-1", "")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_RejectsGarbageAndOtherAlgorithms(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute)

	_, err := m.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.ValidateToken(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_RequiresSubject(t *testing.T) {
	m := NewJWTManager("test-secret", time.Minute)
	token, _, err := m.GenerateToken("", "")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("password123")
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("password123", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user.case@example.com", NormalizeEmail("  User.Case@Example.COM "))
}
