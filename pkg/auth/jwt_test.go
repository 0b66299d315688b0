package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testValidator(t *testing.T) *JWTValidator {
	t.Helper()
	v, err := NewJWTValidator(JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     "test-secret",
		Issuer:        "mindloom",
		Audience:      []string{"mindloom-extension"},
	})
	require.NoError(t, err)
	return v
}

func TestNewJWTValidator_RequiresSecret(t *testing.T) {
	_, err := NewJWTValidator(JWTConfig{SigningMethod: "HS256"})
	assert.Error(t, err)
}

func TestNewJWTValidator_RejectsUnknownMethod(t *testing.T) {
	_, err := NewJWTValidator(JWTConfig{SigningMethod: "XX999", SecretKey: "s"})
	assert.Error(t, err)
}

func TestValidateToken_RoundTrip(t *testing.T) {
	v := testValidator(t)

	token, err := v.GenerateToken("user-1", "u@example.com", []string{"member"}, time.Minute)
	require.NoError(t, err)

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "u@example.com", claims.Email)
	assert.Equal(t, []string{"member"}, claims.Roles)
}

func TestValidateToken_Expired(t *testing.T) {
	v := testValidator(t)

	token, err := v.GenerateToken("user-1", "", nil, -time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	v := testValidator(t)

	other, err := NewJWTValidator(JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     "other-secret",
		Issuer:        "mindloom",
		Audience:      []string{"mindloom-extension"},
	})
	require.NoError(t, err)

	token, err := other.GenerateToken("user-1", "", nil, time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	v := testValidator(t)

	other, err := NewJWTValidator(JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     "test-secret",
		Issuer:        "someone-else",
		Audience:      []string{"mindloom-extension"},
	})
	require.NoError(t, err)

	token, err := other.GenerateToken("user-1", "", nil, time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_WrongAudience(t *testing.T) {
	v := testValidator(t)

	other, err := NewJWTValidator(JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     "test-secret",
		Issuer:        "mindloom",
		Audience:      []string{"another-app"},
	})
	require.NoError(t, err)

	token, err := other.GenerateToken("user-1", "", nil, time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	v := testValidator(t)

	_, err := v.ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_SubjectFallback(t *testing.T) {
	// Token carries only the registered subject, no uid claim
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "subject-user",
		Issuer:    "mindloom",
		Audience:  jwt.ClaimStrings{"mindloom-extension"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	claims, err := testValidator(t).ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "subject-user", claims.UserID)
}

func TestValidateToken_MissingUserID(t *testing.T) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "mindloom",
		Audience:  jwt.ClaimStrings{"mindloom-extension"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = testValidator(t).ValidateToken(signed)
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestUserContext(t *testing.T) {
	ctx := context.Background()

	_, err := GetUserFromContext(ctx)
	assert.Error(t, err)

	ctx = SetUserInContext(ctx, &UserContext{UserID: "user-1"})
	user, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.UserID)
}
