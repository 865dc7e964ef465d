package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/gitrueng/user-management-app/pkg/errors"
	"github.com/gitrueng/user-management-app/pkg/logger"
)

// FailureEnvelope is the one JSON shape every failed request is answered with.
type FailureEnvelope struct {
	Timestamp      time.Time `json:"timestamp"`
	HTTPStatusCode int       `json:"httpStatusCode"`
	HTTPStatus     string    `json:"httpStatus"`
	Reason         string    `json:"reason"`
	Message        string    `json:"message"`
}

// NewFailureEnvelope fills every field of the envelope from the status code.
func NewFailureEnvelope(status int, message string, now time.Time) FailureEnvelope {
	text := http.StatusText(status)
	if text == "" {
		text = "Unknown"
	}
	return FailureEnvelope{
		Timestamp:      now.UTC(),
		HTTPStatusCode: status,
		HTTPStatus:     strings.ToUpper(strings.ReplaceAll(text, " ", "_")),
		Reason:         strings.ToUpper(text),
		Message:        message,
	}
}

// StatusFor maps a failure kind to its HTTP status. Every kind has an explicit
// case; the default branch is only reachable for values outside the enum.
func StatusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindTokenDecode:
		return http.StatusBadRequest
	case apperrors.KindTokenExpired:
		return http.StatusUnauthorized
	case apperrors.KindAccountLocked:
		return http.StatusUnauthorized
	case apperrors.KindBadCredentials:
		return http.StatusBadRequest
	case apperrors.KindAccountDisabled:
		return http.StatusBadRequest
	case apperrors.KindNotAuthenticated:
		return http.StatusForbidden
	case apperrors.KindAccessDenied:
		return http.StatusForbidden
	case apperrors.KindDuplicateUsername, apperrors.KindDuplicateEmail:
		return http.StatusBadRequest
	case apperrors.KindEmailNotVerified:
		return http.StatusBadRequest
	case apperrors.KindAccountNotFound:
		return http.StatusBadRequest
	case apperrors.KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case apperrors.KindNoRoute:
		return http.StatusNotFound
	case apperrors.KindInvalidInput:
		return http.StatusBadRequest
	case apperrors.KindRateLimited:
		return http.StatusTooManyRequests
	case apperrors.KindUnclassified:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Translate reduces any error to the status and message a caller sees.
// Errors that are not *apperrors.Error, and Unclassified ones, always get the
// generic message.
func Translate(err error) (int, string) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperrors.KindUnclassified {
		return http.StatusInternalServerError, apperrors.MsgUnclassified
	}
	return StatusFor(appErr.Kind), appErr.Message
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err and writes exactly one failure envelope. It
// prefers the request-scoped logger from context (set by the RequestLogger
// middleware) over the fallback logger. Only server faults are logged at
// error level, and only they carry the cause.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	status, message := Translate(err)

	if status == http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", errString(err)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("correlation_id", logger.CorrelationIDFromContext(r.Context())),
		)
	} else {
		l.DebugContext(r.Context(), "request failed",
			slog.String("kind", apperrors.KindOf(err).String()),
			slog.Int("status", status),
		)
	}

	WriteJSON(w, status, NewFailureEnvelope(status, message, time.Now()))
}

// ParseUUID parses a path parameter as a UUID. An invalid value yields an
// InvalidInput error for the caller to hand to WriteError.
func ParseUUID(param string) (uuid.UUID, error) {
	id, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, apperrors.InvalidInput("invalid UUID: " + param)
	}
	return id, nil
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
