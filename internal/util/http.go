package util

import (
	"net/http"
	"strconv"

	"github.com/asaskevich/govalidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/httperrors"
)

// BindAndValidateBody binds the JSON body into v and runs its `valid` struct tags.
func BindAndValidateBody(c echo.Context, v interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, v); err != nil {
		return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.TypeBadRequest, "Invalid request body", err.Error())
	}
	return Validate(v)
}

// Validate runs govalidator over v and reports the first problems as a 400.
func Validate(v interface{}) error {
	if _, err := govalidator.ValidateStruct(v); err != nil {
		return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.TypeBadRequest, "Request validation failed", err.Error())
	}
	return nil
}

// ValidateAndReturn renders v as JSON with the given status code.
func ValidateAndReturn(c echo.Context, code int, v interface{}) error {
	if v == nil {
		return c.NoContent(code)
	}
	return c.JSON(code, v)
}

// AddressParam parses a path parameter holding a hex address.
func AddressParam(c echo.Context, name string) (common.Address, error) {
	return parseAddress(name, c.Param(name))
}

// OptionalAddressQuery parses a query parameter holding a hex address. A missing parameter yields nil.
func OptionalAddressQuery(c echo.Context, name string) (*common.Address, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	addr, err := parseAddress(name, raw)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// IntQuery parses an optional integer query parameter.
func IntQuery(c echo.Context, name string, defaultVal int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.TypeBadRequest, "Invalid query parameter", name+" must be a non-negative integer")
	}
	return v, nil
}

func parseAddress(name string, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.TypeBadRequest, "Invalid address", name+" must be a hex address")
	}
	return common.HexToAddress(raw), nil
}
