package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_Exhausted(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for i := range 2 {
		w := hit(h, "10.0.0.1:9999", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := hit(h, "10.0.0.1:1111", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, defaultRateLimitMessage, body.Message)
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		first   func(http.Handler) int
		same    func(http.Handler) int
		another func(http.Handler) int
	}{
		{
			name:    "remote addr",
			cfg:     RateLimitConfig{Max: 1, Window: time.Minute},
			first:   func(h http.Handler) int { return hit(h, "10.0.0.1:1", nil).Code },
			same:    func(h http.Handler) int { return hit(h, "10.0.0.1:2", nil).Code },
			another: func(h http.Handler) int { return hit(h, "10.0.0.2:1", nil).Code },
		},
		{
			name:  "forwarded for",
			cfg:   RateLimitConfig{Max: 1, Window: time.Minute},
			first: func(h http.Handler) int { return hit(h, "192.168.1.1:1", map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}).Code },
			same:  func(h http.Handler) int { return hit(h, "192.168.1.2:1", map[string]string{"X-Forwarded-For": "203.0.113.50"}).Code },
			another: func(h http.Handler) int {
				return hit(h, "192.168.1.1:1", map[string]string{"X-Real-IP": "198.51.100.7"}).Code
			},
		},
		{
			name: "custom key",
			cfg: RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: func(r *http.Request) string {
				return r.Header.Get("X-Account")
			}},
			first:   func(h http.Handler) int { return hit(h, "10.0.0.1:1", map[string]string{"X-Account": "a"}).Code },
			same:    func(h http.Handler) int { return hit(h, "10.0.0.9:1", map[string]string{"X-Account": "a"}).Code },
			another: func(h http.Handler) int { return hit(h, "10.0.0.1:1", map[string]string{"X-Account": "b"}).Code },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(tt.cfg)(okHandler())
			assert.Equal(t, http.StatusOK, tt.first(h))
			assert.Equal(t, http.StatusTooManyRequests, tt.same(h))
			assert.Equal(t, http.StatusOK, tt.another(h))
		})
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	start := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(RateLimitConfig{Max: 4, Window: time.Minute})

	for range 4 {
		_, _, ok := rl.allow("k", start)
		require.True(t, ok)
	}
	_, _, ok := rl.allow("k", start.Add(30*time.Second))
	assert.False(t, ok)

	// Half of the previous window still counts: 4*0.5 = 2 of 4 used.
	next := start.Add(90 * time.Second)
	remaining, _, ok := rl.allow("k", next)
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	rl.cleanup(start.Add(10 * time.Minute))
	assert.Empty(t, rl.entries)
}

func TestRateLimit_CustomMessage(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, Message: "Too many login attempts"})(okHandler())
	hit(h, "10.0.0.1:1", nil)

	w := hit(h, "10.0.0.1:1", nil)
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Too many login attempts", body.Message)
}

func TestRateLimit_Skip(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		Skip:   PathPrefixes("/livez", "/readyz"),
	})(okHandler())

	probe := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return w
	}
	for range 3 {
		w := probe()
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}

	assert.Equal(t, http.StatusOK, hit(h, "192.0.2.1:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.0.2.1:1", nil).Code)
}
