package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveCORS(cfg CORSConfig, method, origin string) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/user/get", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, reached
}

func TestCORS_Origins(t *testing.T) {
	prod := []string{"https://app.example.com", "https://admin.example.com"}

	tests := []struct {
		name      string
		cfg       CORSConfig
		origin    string
		wantAllow string
		wantVary  string
	}{
		{"development wildcard", CORSConfig{AllowedOrigins: []string{"*"}, Environment: "development"}, "https://other.test", "*", ""},
		{"development without origin", CORSConfig{Environment: "development"}, "", "*", ""},
		{"production listed origin", CORSConfig{AllowedOrigins: prod, Environment: "production"}, "https://app.example.com", "https://app.example.com", "Origin"},
		{"production second origin", CORSConfig{AllowedOrigins: prod, Environment: "production"}, "https://admin.example.com", "https://admin.example.com", "Origin"},
		{"production unlisted origin", CORSConfig{AllowedOrigins: prod, Environment: "production"}, "https://other.test", "", ""},
		{"production without origin", CORSConfig{AllowedOrigins: prod, Environment: "production"}, "", "", ""},
		{"production explicit wildcard", CORSConfig{AllowedOrigins: []string{"https://app.example.com", "*"}, Environment: "production"}, "https://other.test", "*", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, reached := serveCORS(tt.cfg, http.MethodGet, tt.origin)
			assert.True(t, reached)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantVary, rec.Header().Get("Vary"))
		})
	}
}

func TestCORS_Headers(t *testing.T) {
	rec, _ := serveCORS(CORSConfig{
		AllowedOrigins:   []string{"https://app.example.com"},
		AllowedHeaders:   []string{"Authorization", "X-Custom"},
		ExposedHeaders:   []string{"Authorization"},
		MaxAge:           7200,
		AllowCredentials: true,
		Environment:      "production",
	}, http.MethodGet, "https://app.example.com")

	h := rec.Header()
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Authorization, X-Custom", h.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "Authorization", h.Get("Access-Control-Expose-Headers"))
	assert.Equal(t, "7200", h.Get("Access-Control-Max-Age"))
	assert.Equal(t, "true", h.Get("Access-Control-Allow-Credentials"))
}

func TestCORS_NoExposedHeaders(t *testing.T) {
	rec, _ := serveCORS(CORSConfig{Environment: "development"}, http.MethodGet, "")

	assert.Empty(t, rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_PreflightStopsChain(t *testing.T) {
	rec, reached := serveCORS(DefaultCORSConfig(), http.MethodOptions, "https://app.example.com")

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "Authorization, X-Correlation-ID", rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()

	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 3600, cfg.MaxAge)
	assert.Contains(t, cfg.AllowedHeaders, "Authorization")
	assert.Contains(t, cfg.ExposedHeaders, "Authorization")
}
