package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestMiddlewarePassesThroughWhenDisabled(t *testing.T) {
	a := New(Config{Enabled: false})
	called := false
	handler := a.Middleware("halt:operate")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodPost, "/halt/restore", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.True(t, called)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	a := New(Config{Enabled: true, HMACSecret: "secret"})
	handler := a.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodPost, "/halt/restore", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAcceptsValidTokenAndExposesOperatorID(t *testing.T) {
	a := New(Config{Enabled: true, HMACSecret: "secret", Issuer: "archon72"})
	token := signToken(t, "secret", jwt.MapClaims{
		"iss":         "archon72",
		"operator_id": "king-1",
		"scope":       "halt:operate",
		"exp":         float64(time.Now().Add(time.Hour).Unix()),
	})

	var gotOperatorID string
	handler := a.Middleware("halt:operate")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOperatorID, _ = OperatorID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/halt/restore", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "king-1", gotOperatorID)
}

func TestMiddlewareRejectsInsufficientScope(t *testing.T) {
	a := New(Config{Enabled: true, HMACSecret: "secret"})
	token := signToken(t, "secret", jwt.MapClaims{
		"operator_id": "king-1",
		"scope":       "petitions:read",
		"exp":         float64(time.Now().Add(time.Hour).Unix()),
	})

	handler := a.Middleware("halt:operate")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodPost, "/halt/restore", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	a := New(Config{Enabled: true, HMACSecret: "secret", ClockSkew: time.Second})
	token := signToken(t, "secret", jwt.MapClaims{
		"operator_id": "king-1",
		"exp":         float64(time.Now().Add(-time.Hour).Unix()),
	})

	handler := a.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodPost, "/halt/restore", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
