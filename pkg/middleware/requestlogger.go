package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gitrueng/user-management-app/pkg/logger"
)

// RequestLogger builds a request-scoped logger enriched with correlation_id,
// subject, trace_id and span_id and stores it in context via
// logger.NewContext. Downstream handlers retrieve it with logger.FromContext.
//
// Mount it after RequestLogging and Tracing. The authorization gate calls
// EnrichLogger again once the subject is known.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.NewContext(r.Context(), logger.WithContext(r.Context(), base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EnrichLogger returns r with the subject recorded in its context and the
// request-scoped logger rebuilt to carry it.
func EnrichLogger(r *http.Request, base *slog.Logger, subject string) *http.Request {
	ctx := logger.WithSubject(r.Context(), subject)
	ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
	return r.WithContext(ctx)
}
