package httperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

// Public error types rendered in the "type" field.
const (
	TypeGeneric       = "generic"
	TypeBadRequest    = "bad_request"
	TypeUnauthorized  = "unauthorized"
	TypeForbidden     = "forbidden"
	TypeNotFound      = "not_found"
	TypeConflict      = "conflict"
	TypeReplay        = "replay"
	TypeUnavailable   = "unavailable"
	TypeNotConnected  = "not_connected"
	TypeInternalError = "internal_error"
)

// HTTPError is the error body of every failed API call.
type HTTPError struct {
	Code   int    `json:"status"`
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func NewHTTPError(code int, errType string, title string) *HTTPError {
	return &HTTPError{Code: code, Type: errType, Title: title}
}

func NewHTTPErrorWithDetail(code int, errType string, title string, detail string) *HTTPError {
	return &HTTPError{Code: code, Type: errType, Title: title, Detail: detail}
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
	}
	return fmt.Sprintf("HTTPError %d (%s): %s - %s", e.Code, e.Type, e.Title, e.Detail)
}

var (
	ErrBadRequest   = NewHTTPError(http.StatusBadRequest, TypeBadRequest, "Bad request")
	ErrUnauthorized = NewHTTPError(http.StatusUnauthorized, TypeUnauthorized, "Missing or invalid bearer token")
	ErrNotFound     = NewHTTPError(http.StatusNotFound, TypeNotFound, "Not found")
)

// FromDomain maps a domain error to its HTTP representation.
func FromDomain(err *withdrawal.Error) *HTTPError {
	title := err.Message
	switch err.Kind {
	case withdrawal.ErrKindValidation:
		return NewHTTPError(http.StatusBadRequest, TypeBadRequest, title)
	case withdrawal.ErrKindAuthorization:
		return NewHTTPError(http.StatusForbidden, TypeForbidden, title)
	case withdrawal.ErrKindReplay:
		return NewHTTPError(http.StatusConflict, TypeReplay, title)
	case withdrawal.ErrKindState:
		return NewHTTPError(http.StatusConflict, TypeConflict, title)
	case withdrawal.ErrKindNotFound:
		return NewHTTPError(http.StatusNotFound, TypeNotFound, title)
	case withdrawal.ErrKindTransient:
		return NewHTTPError(http.StatusServiceUnavailable, TypeUnavailable, title)
	case withdrawal.ErrKindNotConnected:
		return NewHTTPError(http.StatusPreconditionFailed, TypeNotConnected, title)
	default:
		// persistence and unknown failures never leak their cause
		return NewHTTPError(http.StatusInternalServerError, TypeInternalError, http.StatusText(http.StatusInternalServerError))
	}
}

// HTTPErrorHandler renders every error returned by a handler as an HTTPError body.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		httpErr   *HTTPError
		domainErr *withdrawal.Error
		echoErr   *echo.HTTPError
	)
	switch {
	case errors.As(err, &httpErr):
	case errors.As(err, &domainErr):
		httpErr = FromDomain(domainErr)
		if httpErr.Code >= http.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		}
	case errors.As(err, &echoErr):
		httpErr = NewHTTPError(echoErr.Code, TypeGeneric, http.StatusText(echoErr.Code))
		if msg, ok := echoErr.Message.(string); ok {
			httpErr.Title = msg
		}
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
		httpErr = NewHTTPError(http.StatusInternalServerError, TypeInternalError, http.StatusText(http.StatusInternalServerError))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(httpErr.Code)
	} else {
		err = c.JSON(httpErr.Code, httpErr)
	}
	if err != nil {
		log.Warn().Err(err).AnErr("http_err", httpErr).Msg("Failed to handle HTTP error")
	}
}
