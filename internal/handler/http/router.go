package http

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gitrueng/user-management-app/internal/auth"
	"github.com/gitrueng/user-management-app/internal/service"
	apperrors "github.com/gitrueng/user-management-app/pkg/errors"
	"github.com/gitrueng/user-management-app/pkg/health"
	"github.com/gitrueng/user-management-app/pkg/httputil"
	"github.com/gitrueng/user-management-app/pkg/middleware"
)

// candidateMethods is the order in which a 405 response looks for a method the
// path does accept.
var candidateMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// RouterConfig holds the HTTP-facing settings of the service.
type RouterConfig struct {
	ServiceName string
	CORS        middleware.CORSConfig
	Gate        GateConfig

	// PprofCIDRs enables /debug/pprof for the listed networks when non-empty.
	PprofCIDRs []string
}

// NewRouter creates a chi router with all account routes registered behind
// the authorization gate. limiter guards login and signup; nil disables it.
func NewRouter(
	accounts *service.AccountService,
	tokens TokenVerifier,
	resolver auth.Resolver,
	healthHandler *health.Handler,
	limiter *middleware.RateLimiter,
	cfg RouterConfig,
	logger *slog.Logger,
) (http.Handler, error) {
	gateCfg := cfg.Gate
	if len(cfg.PprofCIDRs) > 0 {
		gateCfg.AllowList = append(append([]string{}, gateCfg.AllowList...), middleware.PprofPatterns...)
	}
	gate, err := NewGate(tokens, resolver, gateCfg, logger)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.NoStore)
	r.Use(gate.Authenticate)
	r.Use(gate.RequireIdentity)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, apperrors.NoRoute(), logger)
	})
	r.MethodNotAllowed(methodNotAllowed(r, logger))

	// Health check endpoints
	r.Route("/health", healthHandler.Routes)
	r.Handle("/metrics", promhttp.Handler())

	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	throttle := func(h http.HandlerFunc) http.Handler {
		if limiter == nil {
			return h
		}
		return limiter.Handler(h)
	}

	h := NewAccountHandler(accounts, logger)
	r.Route("/user", func(r chi.Router) {
		r.Method(http.MethodPost, "/signup", throttle(h.Signup))
		r.Method(http.MethodPost, "/login", throttle(h.Login))
		r.Get("/verify/email", h.VerifyEmail)
		r.Get("/reset/{email}", h.RequestPasswordReset)
		r.Post("/reset", h.ResetPassword)

		r.Get("/get", h.CurrentAccount)
		r.Put("/update", h.UpdateAccount)
		r.Get("/", h.ListAccounts)
		r.Get("/{user}", h.FindByUsername)
		r.Delete("/{user}", h.DeleteAccount)
	})

	return r, nil
}

// methodNotAllowed answers with a MethodNotAllowed failure naming the first
// method the path accepts, and lists the accepted methods in Allow. When the
// path matches several routes, only the most specific one counts, as that is
// the route chi would have served.
func methodNotAllowed(mux *chi.Mux, logger *slog.Logger) http.HandlerFunc {
	// Routes are registered after this hook is installed, so the table is
	// built on first use.
	routes := sync.OnceValue(func() routeMethods { return walkRoutes(mux, "", make(routeMethods)) })

	return func(w http.ResponseWriter, r *http.Request) {
		allowed := allowedMethods(mux, routes(), r.URL.Path)
		if len(allowed) == 0 {
			httputil.WriteError(w, r, apperrors.NoRoute(), logger)
			return
		}

		w.Header().Set("Allow", strings.Join(allowed, ", "))
		httputil.WriteError(w, r, apperrors.MethodNotAllowed(allowed[0]), logger)
	}
}

// routeMethods maps a full route pattern to the methods registered on it.
type routeMethods map[string]map[string]struct{}

// walkRoutes collects the methods registered on every route. Mounting a
// subrouter leaves any-method stub endpoints behind (they carry a "*"
// handler); those are skipped in favour of the subrouter's own routes.
func walkRoutes(routes chi.Routes, prefix string, table routeMethods) routeMethods {
	for _, rt := range routes.Routes() {
		if rt.SubRoutes != nil {
			walkRoutes(rt.SubRoutes, prefix+rt.Pattern, table)
			continue
		}
		if _, stub := rt.Handlers["*"]; stub {
			continue
		}
		pattern := strings.ReplaceAll(prefix+rt.Pattern, "/*/", "/")
		if table[pattern] == nil {
			table[pattern] = make(map[string]struct{})
		}
		for method := range rt.Handlers {
			table[pattern][method] = struct{}{}
		}
	}
	return table
}

func allowedMethods(mux *chi.Mux, routes routeMethods, path string) []string {
	var (
		allowed []string
		best    = -1
	)
	for _, m := range candidateMethods {
		pattern := mux.Find(chi.NewRouteContext(), m, path)
		if _, ok := routes[pattern][m]; !ok {
			continue
		}
		wild := strings.Count(pattern, "{") + strings.Count(pattern, "*")
		switch {
		case best < 0 || wild < best:
			best = wild
			allowed = []string{m}
		case wild == best:
			allowed = append(allowed, m)
		}
	}
	return allowed
}
