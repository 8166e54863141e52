package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, userID, accountID string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    userID,
		"account_id": accountID,
		"exp":        exp.Unix(),
	})
	signed, err := token.SignedString([]byte(viper.GetString("jwt.secret_key")))
	require.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	InitAuthMiddleware(nil)

	var gotUserID, gotAccountID string
	handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = r.Context().Value("userID").(string)
		gotAccountID, _ = r.Context().Value("accountID").(string)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes identity through", func(t *testing.T) {
		token := signTestToken(t, "user-1", "acc-1", time.Now().Add(time.Hour))

		r := httptest.NewRequest("GET", "/wallet/balance", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1", gotUserID)
		assert.Equal(t, "acc-1", gotAccountID)
	})

	t.Run("missing header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/wallet/balance", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/wallet/balance", nil)
		r.Header.Set("Authorization", "token-without-scheme")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signTestToken(t, "user-1", "acc-1", time.Now().Add(-time.Hour))

		r := httptest.NewRequest("GET", "/wallet/balance", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("token signed with another key", func(t *testing.T) {
		other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id":    "user-1",
			"account_id": "acc-1",
			"exp":        time.Now().Add(time.Hour).Unix(),
		})
		signed, err := other.SignedString([]byte("wrong-secret"))
		require.NoError(t, err)

		r := httptest.NewRequest("GET", "/wallet/balance", nil)
		r.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
