package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Dosada05/knockout-system/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func organizerClaims(userID int) jwt.MapClaims {
	return jwt.MapClaims{
		"user_id": userID,
		"role":    string(models.RoleOrganizer),
		"name":    "Alice",
		"exp":     time.Now().Add(time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}
}

func TestAuthenticate(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	var gotUserID int
	handler := auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := GetUserIDFromContext(r.Context())
		require.NoError(t, err)
		gotUserID = id
	}))

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, organizerClaims(42)))
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 42, gotUserID)
	})

	t.Run("missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, organizerClaims(42)).SignedString([]byte("other-secret"))
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := organizerClaims(42)
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, claims))
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRequireOrganizer(t *testing.T) {
	nextCalled := false
	handler := RequireOrganizer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	}))

	withClaims := func(claims jwt.MapClaims) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), userContextKey, claims))
	}

	t.Run("organizer passes", func(t *testing.T) {
		nextCalled = false
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, withClaims(organizerClaims(1)))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, nextCalled)
	})

	t.Run("foreign role rejected", func(t *testing.T) {
		nextCalled = false
		claims := organizerClaims(1)
		claims["role"] = "spectator"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, withClaims(claims))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.False(t, nextCalled)
	})

	t.Run("missing claims rejected", func(t *testing.T) {
		nextCalled = false
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.False(t, nextCalled)
	})
}
