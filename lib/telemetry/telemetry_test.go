package telemetry

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpanName(t *testing.T) {
	testCases := []struct {
		method   string
		path     string
		expected string
	}{
		{method: "GET", path: "/api/v1/lists", expected: "http GET /api/v1/lists"},
		{method: "GET", path: "/api/v1/lists/42/accounts", expected: "http GET /api/v1/lists/{id}/accounts"},
		{method: "POST", path: "/api/v1/statuses", expected: "http POST /api/v1/statuses"},
	}

	for _, test := range testCases {
		req := &http.Request{Method: test.method, URL: &url.URL{Path: test.path}}
		require.Equal(t, test.expected, spanName(req))
	}
	require.Equal(t, "http", spanName(nil))
}

func TestHasNextLink(t *testing.T) {
	headers := http.Header{}
	require.False(t, hasNextLink(headers))

	headers.Set("Link", `<https://example.social/api/v1/lists/1/accounts?max_id=7>; rel="next"`)
	require.True(t, hasNextLink(headers))

	headers.Set("Link", `<https://example.social/api/v1/lists/1/accounts?since_id=9>; rel="prev"`)
	require.False(t, hasNextLink(headers))
}

func TestOtlpConnConfig(t *testing.T) {
	require.False(t, OtlpConnConfig{}.enabled())
	require.Equal(t, "grpc", OtlpConnConfig{GrpcEndpoint: "http://localhost:4317"}.protocol())
	require.Equal(t, "http", OtlpConnConfig{HttpEndpoint: "http://localhost:4318"}.protocol())
}
