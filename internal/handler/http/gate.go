package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gitrueng/user-management-app/internal/auth"
	apperrors "github.com/gitrueng/user-management-app/pkg/errors"
	"github.com/gitrueng/user-management-app/pkg/httputil"
	"github.com/gitrueng/user-management-app/pkg/middleware"
)

// DefaultTokenPrefix is the Authorization scheme the gate looks for when none
// is configured.
const DefaultTokenPrefix = "Bearer "

// TokenVerifier checks a session token and returns its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// GateConfig configures the authorization gate.
type GateConfig struct {
	// Prefix precedes the token in the Authorization header.
	Prefix string
	// AllowList holds chi route patterns reachable without an identity,
	// e.g. "/user/login", "/user/reset/{email}", "/health/*".
	AllowList []string
}

// Gate attaches the caller's identity to the request and refuses protected
// paths to anonymous callers. It holds no per-request state.
type Gate struct {
	tokens   TokenVerifier
	resolver auth.Resolver
	prefix   string
	allow    *chi.Mux
	logger   *slog.Logger
}

// NewGate compiles the allow-list. A malformed pattern is reported as an
// error rather than a panic at first request.
func NewGate(tokens TokenVerifier, resolver auth.Resolver, cfg GateConfig, logger *slog.Logger) (*Gate, error) {
	if resolver == nil {
		resolver = auth.SubjectResolver
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultTokenPrefix
	}

	allow, err := compileAllowList(cfg.AllowList)
	if err != nil {
		return nil, err
	}

	return &Gate{
		tokens:   tokens,
		resolver: resolver,
		prefix:   prefix,
		allow:    allow,
		logger:   logger,
	}, nil
}

func compileAllowList(patterns []string) (mux *chi.Mux, err error) {
	mux = chi.NewMux()
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("allow-list pattern %q must begin with '/'", p)
		}
		if err := handleSafely(mux, p, noop); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

// handleSafely registers pattern on mux, turning chi's registration panics
// (duplicate params, bad regexp) into an error.
func handleSafely(mux *chi.Mux, pattern string, h http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("allow-list pattern %q: %v", pattern, rec)
		}
	}()
	mux.Handle(pattern, h)
	return nil
}

// Allowed reports whether the request path is on the allow-list, for any
// method.
func (g *Gate) Allowed(r *http.Request) bool {
	return g.allow.Match(chi.NewRouteContext(), r.Method, r.URL.Path)
}

// Authenticate verifies a bearer token when one is present. Requests without
// the configured prefix continue anonymously; a token that fails
// verification ends the request with that failure.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, g.prefix) {
			next.ServeHTTP(w, r)
			return
		}

		subject, err := g.tokens.Verify(strings.TrimPrefix(header, g.prefix))
		if err != nil {
			g.reject(w, r, err)
			return
		}

		id, err := g.resolver.Resolve(r.Context(), subject)
		if err != nil {
			g.reject(w, r, err)
			return
		}

		r = r.WithContext(auth.NewContext(r.Context(), id))
		r = middleware.EnrichLogger(r, g.logger, id.Subject)
		next.ServeHTTP(w, r)
	})
}

// RequireIdentity lets allow-listed paths through and answers every other
// anonymous request with NotAuthenticated (403).
func (g *Gate) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || g.Allowed(r) {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := auth.FromContext(r.Context()); !ok {
			g.reject(w, r, apperrors.NotAuthenticated())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, err error) {
	middleware.RecordAuthFailure(apperrors.KindOf(err).String())
	httputil.WriteError(w, r, err, g.logger)
}
