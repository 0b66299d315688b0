package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mindloom-backend/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestValidator(t *testing.T) *auth.JWTValidator {
	t.Helper()
	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     "test-secret",
		Issuer:        "mindloom",
		Audience:      []string{"mindloom-extension"},
	})
	require.NoError(t, err)
	return validator
}

// echoUser records the user context the middleware installed
func echoUser(t *testing.T, captured **auth.UserContext) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.GetUserFromContext(r.Context())
		require.NoError(t, err)
		*captured = user
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateWithValidator_ValidToken(t *testing.T) {
	validator := newTestValidator(t)
	token, err := validator.GenerateToken("user-1", "u@example.com", []string{"member"}, time.Minute)
	require.NoError(t, err)

	var captured *auth.UserContext
	handler := AuthenticateWithValidator(validator, zap.NewNop())(echoUser(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/api/v2/fragments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-1", captured.UserID)
	assert.Equal(t, "u@example.com", captured.Email)
}

func TestAuthenticateWithValidator_MissingHeader(t *testing.T) {
	handler := AuthenticateWithValidator(newTestValidator(t), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v2/fragments", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authorization header")
}

func TestAuthenticateWithValidator_BadToken(t *testing.T) {
	handler := AuthenticateWithValidator(newTestValidator(t), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v2/fragments", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateForLambda_TrustsGatewayHeaders(t *testing.T) {
	var captured *auth.UserContext
	handler := AuthenticateForLambda()(echoUser(t, &captured))

	req := httptest.NewRequest(http.MethodGet, "/api/v2/maps", nil)
	req.Header.Set("X-API-Gateway-Authorized", "true")
	req.Header.Set("X-User-ID", "user-9")
	req.Header.Set("X-User-Email", "nine@example.com")
	req.Header.Set("X-User-Roles", "member,beta")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-9", captured.UserID)
	assert.Equal(t, "nine@example.com", captured.Email)
	assert.Equal(t, []string{"member", "beta"}, captured.Roles)
}

func TestAuthenticateForLambda_RejectsUnmarkedRequests(t *testing.T) {
	handler := AuthenticateForLambda()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v2/maps", nil)
	req.Header.Set("X-User-ID", "user-9")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateForLambda_RequiresUserID(t *testing.T) {
	handler := AuthenticateForLambda()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v2/maps", nil)
	req.Header.Set("X-API-Gateway-Authorized", "true")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	token, ok := bearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc123", token)

	req.Header.Set("Authorization", "bearer abc123")
	token, ok = bearerToken(req)
	assert.True(t, ok, "scheme comparison is case-insensitive")
	assert.Equal(t, "abc123", token)

	req.Header.Set("Authorization", "Basic abc123")
	_, ok = bearerToken(req)
	assert.False(t, ok)

	req.Header.Del("Authorization")
	_, ok = bearerToken(req)
	assert.False(t, ok)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	assert.Equal(t, "192.0.2.10:1234", getClientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.5")
	assert.Equal(t, "203.0.113.5", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.5")
	assert.Equal(t, "198.51.100.7", getClientIP(req))
}
