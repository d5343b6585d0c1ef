package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
)

// PerformRequest sends a request through the server's echo instance.
// body is JSON encoded unless it is nil; token is sent as bearer when not empty.
func PerformRequest(t *testing.T, s *api.Server, method string, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}

	res := httptest.NewRecorder()
	s.Echo.ServeHTTP(res, req)

	return res
}

// ParseResponseAndValidate decodes the JSON body into v and fails the test otherwise.
func ParseResponseAndValidate(t *testing.T, res *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	require.NoError(t, json.NewDecoder(res.Body).Decode(v), "body: %s", res.Body.String())
}

// RequireStatus fails with the response body when the status code differs.
func RequireStatus(t *testing.T, res *httptest.ResponseRecorder, code int) {
	t.Helper()

	require.Equal(t, code, res.Code, "unexpected status %s, body: %s", http.StatusText(res.Code), res.Body.String())
}
