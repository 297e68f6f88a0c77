package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "admin-secret-at-least-32-chars!!"

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	mgr := NewJWTManager(testSecret, time.Hour)

	t.Run("round trip", func(t *testing.T) {
		token, err := mgr.Generate("ops")
		require.NoError(t, err)

		claims, err := mgr.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "ops", claims.Subject)
		assert.Equal(t, "mila", claims.Issuer)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("empty subject", func(t *testing.T) {
		_, err := mgr.Generate("")
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := mgr.Validate("not-a-token")
		assert.Error(t, err)
	})

	t.Run("other secret", func(t *testing.T) {
		token, err := NewJWTManager("another-secret-at-least-32-chars", time.Hour).Generate("ops")
		require.NoError(t, err)
		_, err = mgr.Validate(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := NewJWTManager(testSecret, -time.Second).Generate("ops")
		require.NoError(t, err)
		_, err = mgr.Validate(token)
		assert.Error(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "ops",
			Issuer:    "mila",
			Audience:  jwt.ClaimStrings{"someone-else"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = mgr.Validate(token)
		assert.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	mgr := NewJWTManager(testSecret, time.Hour)
	token, err := mgr.Generate("ops")
	require.NoError(t, err)

	var seen *AdminClaims
	h := Middleware(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAdminClaims(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"lowercase scheme", "bearer " + token, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/1/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "ops", seen.Subject)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}
