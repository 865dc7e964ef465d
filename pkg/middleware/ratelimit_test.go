package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, rps float64, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(rps, burst, time.Hour, discardLogger())
	t.Cleanup(rl.Close)
	return rl
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/user/login", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_WithinBurstPasses(t *testing.T) {
	h := newTestLimiter(t, 10, 10).Handler(okHandler())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:12345").Code, "request %d", i+1)
	}
}

func TestRateLimiter_ExceedingBurstReturnsEnvelope(t *testing.T) {
	h := newTestLimiter(t, 0.001, 1).Handler(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "172.16.0.1:12345").Code)

	rec := hit(h, "172.16.0.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, 429, env.HTTPStatusCode)
	assert.Equal(t, "TOO_MANY_REQUESTS", env.HTTPStatus)
	assert.Equal(t, "Too many requests. Please try again later", env.Message)
}

func TestRateLimiter_IndependentPerIP(t *testing.T) {
	h := newTestLimiter(t, 0.001, 2).Handler(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:2").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:3").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1").Code)
}

func TestRateLimiter_CleanupEvictsIdleVisitors(t *testing.T) {
	rl := newTestLimiter(t, 1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.nowFunc = func() time.Time { return now }

	rl.limiterFor("10.0.0.1")
	rl.limiterFor("10.0.0.2")
	assert.Equal(t, 2, rl.size())

	now = now.Add(30 * time.Minute)
	rl.limiterFor("10.0.0.2")

	now = now.Add(45 * time.Minute)
	rl.cleanup()
	assert.Equal(t, 1, rl.size())
}

func TestRateLimiter_CloseIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Hour, discardLogger())
	assert.NotPanics(t, func() {
		rl.Close()
		rl.Close()
	})
}

func TestRateLimiter_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	h := newTestLimiter(t, 0.001, 1).Handler(okHandler())

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/user/login", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.3"))
}

func TestRateLimiter_TrustedProxyKeysByForwardedClient(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	rl := NewRateLimiter(0.001, 1, time.Hour, discardLogger(), WithTrustedProxies(proxies))
	t.Cleanup(rl.Close)
	h := rl.Handler(okHandler())

	send := func(xff string) int {
		req := httptest.NewRequest(http.MethodPost, "/user/login", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
	// A client-supplied entry to the left of the real hop changes nothing.
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.77, 198.51.100.1"))
	assert.Equal(t, http.StatusOK, send("198.51.100.2"))
}

func TestClientIP_IgnoresForwardingHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	req.Header.Set("X-Real-IP", "198.51.100.42")
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	req.RemoteAddr = "10.0.0.1"
	assert.Equal(t, "10.0.0.1", ClientIP(req))
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", " ", "172.16.0.0/12"})
	require.NoError(t, err)
	require.Len(t, proxies, 2)

	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{"untrusted peer", "203.0.113.50", "198.51.100.42", "192.0.2.1:1", "192.0.2.1"},
		{"forwarded single", "203.0.113.50", "", "10.0.0.1:12345", "203.0.113.50"},
		{"forwarded chain takes last untrusted hop", "192.0.2.77, 203.0.113.50, 172.16.0.3", "", "10.0.0.1:1", "203.0.113.50"},
		{"forwarded garbage falls through", "unknown", "198.51.100.42", "10.0.0.1:1", "198.51.100.42"},
		{"real ip", "", "198.51.100.42", "10.0.0.1:12345", "198.51.100.42"},
		{"only proxies", "10.0.0.2", "", "10.0.0.1:1", "10.0.0.1"},
		{"no headers", "", "", "10.0.0.1:12345", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			req.RemoteAddr = tt.remoteAddr
			assert.Equal(t, tt.want, proxies.ClientIP(req))
		})
	}
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"10.0.0.0/8", "not-a-cidr"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-a-cidr")
}
