package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestIPAllowlist(t *testing.T) {
	cidrs := []string{"not-a-cidr", "10.0.0.0/8", "192.168.0.0/16", "::1/128"}
	handler := IPAllowlist(cidrs, discardLogger())(okHandler())

	tests := []struct {
		name       string
		remoteAddr string
		status     int
	}{
		{"10.x allowed", "10.1.2.3:1234", http.StatusOK},
		{"192.168.x allowed", "192.168.1.1:1234", http.StatusOK},
		{"ipv6 loopback allowed", "[::1]:1234", http.StatusOK},
		{"no port allowed", "10.9.9.9", http.StatusOK},
		{"public denied", "8.8.8.8:1234", http.StatusForbidden},
		{"garbage denied", "not-an-ip", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestIPAllowlist_DeniedUsesAccessDeniedEnvelope(t *testing.T) {
	handler := IPAllowlist([]string{"10.0.0.0/8"}, discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You do not have enough permission", decodeEnvelope(t, rec).Message)
}

func TestIPAllowlist_EmptyCIDRsDeniesAll(t *testing.T) {
	handler := IPAllowlist(nil, discardLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterPprof_Routes(t *testing.T) {
	r := chi.NewRouter()
	RegisterPprof(r, []string{"127.0.0.0/8"}, discardLogger())

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/cmdline", "/debug/pprof/symbol", "/debug/pprof/heap"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.RemoteAddr = "127.0.0.1:1234"
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}
