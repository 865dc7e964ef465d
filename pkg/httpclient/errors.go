package httpclient

import (
	"fmt"
	"io"
	"net/http"
)

// StatusError is returned by CheckResponse for a non-2xx answer.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// ClientError reports whether the downstream rejected the request itself,
// in which case sending it again will not help.
func (e *StatusError) ClientError() bool {
	return IsClientError(e.StatusCode)
}

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

// CheckResponse closes resp and returns nil for a 2xx status, or a
// *StatusError carrying a prefix of the body otherwise.
func CheckResponse(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
