package httpclient

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func response(status int, body string) (*http.Response, *trackingBody) {
	b := &trackingBody{Reader: strings.NewReader(body)}
	return &http.Response{StatusCode: status, Body: b}, b
}

func TestCheckResponse_Success(t *testing.T) {
	resp, body := response(http.StatusAccepted, "queued")
	require.NoError(t, CheckResponse(resp, "mail-relay"))
	assert.True(t, body.closed)
}

func TestCheckResponse_StatusError(t *testing.T) {
	resp, body := response(http.StatusUnprocessableEntity, "bad recipient")
	err := CheckResponse(resp, "mail-relay")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.Equal(t, "bad recipient", statusErr.Body)
	assert.True(t, statusErr.ClientError())
	assert.Equal(t, "mail-relay returned status 422: bad recipient", err.Error())
	assert.True(t, body.closed)
}

func TestCheckResponse_BodyTruncated(t *testing.T) {
	resp, _ := response(http.StatusInternalServerError, strings.Repeat("x", maxErrorBody*2))
	err := CheckResponse(resp, "mail-relay")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Len(t, statusErr.Body, maxErrorBody)
	assert.False(t, statusErr.ClientError())
}

func TestStatusError_EmptyBody(t *testing.T) {
	err := &StatusError{Service: "relay", StatusCode: 503}
	assert.Equal(t, "relay returned status 503", err.Error())
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{200, false},
		{399, false},
		{400, true},
		{404, true},
		{499, true},
		{500, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsClientError(tt.status), "status %d", tt.status)
	}
}
