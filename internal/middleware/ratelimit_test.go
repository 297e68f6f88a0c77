package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRateLimiter(t *testing.T, maxReqs int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rl := NewRateLimiter(client, maxReqs, time.Minute)
	return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})), mr
}

func doRequest(h http.Handler, remote string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/5/", nil)
	req.RemoteAddr = remote
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	h, _ := setupRateLimiter(t, 3)

	for i := 0; i < 3; i++ {
		rec := doRequest(h, "10.0.0.1:12345", nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := doRequest(h, "10.0.0.1:12345", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())
}

func TestRateLimiter_DifferentIPsIndependent(t *testing.T) {
	h, _ := setupRateLimiter(t, 2)

	doRequest(h, "1.1.1.1:1", nil)
	doRequest(h, "1.1.1.1:1", nil)

	assert.Equal(t, http.StatusOK, doRequest(h, "2.2.2.2:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, "1.1.1.1:1", nil).Code)
}

func TestRateLimiter_UsesForwardedFor(t *testing.T) {
	h, mr := setupRateLimiter(t, 1)

	doRequest(h, "127.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"})

	assert.True(t, mr.Exists(rateLimitKeyPrefix+"203.0.113.9"))
	assert.Equal(t, http.StatusOK, doRequest(h, "127.0.0.1:1", nil).Code)
}

func TestRateLimiter_FailsOpenOnRedisError(t *testing.T) {
	h, mr := setupRateLimiter(t, 1)
	mr.Close()

	assert.Equal(t, http.StatusOK, doRequest(h, "3.3.3.3:1", nil).Code)
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestCORS_WildcardDisablesCredentials(t *testing.T) {
	assert.False(t, CORS([]string{"*"}).AllowCredentials)
	assert.True(t, CORS([]string{"https://admin.example"}).AllowCredentials)
	assert.Equal(t, []string{"http://localhost:3000"}, CORS(nil).AllowedOrigins)
}
