package httperrors_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/httperrors"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

func render(t *testing.T, err error) (int, httperrors.HTTPError) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	httperrors.HTTPErrorHandler(err, c)

	var body httperrors.HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{withdrawal.NewValidationError("r1", "amount must be positive"), http.StatusBadRequest},
		{withdrawal.NewAuthorizationError("r1", "0x01", "not a guardian"), http.StatusForbidden},
		{withdrawal.NewReplayError("r1", "0x01", "already signed"), http.StatusConflict},
		{withdrawal.NewStateError("r1", "request is executed"), http.StatusConflict},
		{withdrawal.NewNotFoundError("r1", "request"), http.StatusNotFound},
		{withdrawal.NewTransientError("r1", "rpc down", nil), http.StatusServiceUnavailable},
		{withdrawal.NewNotConnectedError("no key"), http.StatusPreconditionFailed},
		{errors.Wrap(withdrawal.NewStateError("b1", "not approved"), "execute"), http.StatusConflict},
	}
	for _, tc := range cases {
		code, body := render(t, tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.Equal(t, tc.code, body.Code)
	}
}

func TestPersistenceErrorsAreOpaque(t *testing.T) {
	code, body := render(t, withdrawal.NewPersistenceError("r1", "unreadable request row", errors.New("secret detail")))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotContains(t, body.Title, "secret")
	assert.Equal(t, httperrors.TypeInternalError, body.Type)
}

func TestEchoAndHTTPErrors(t *testing.T) {
	code, body := render(t, echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"))
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.Equal(t, "nope", body.Title)

	code, body = render(t, httperrors.ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, httperrors.TypeUnauthorized, body.Type)
}
