package requests

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/auth"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

func DeleteRequestRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.DELETE("/requests/:id", deleteRequestHandler(s))
}

func deleteRequestHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := auth.RequireCaller(c)
		if err != nil {
			return err
		}

		if err := s.Requests.Purge(c.Request().Context(), c.Param("id"), caller.Address); err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusNoContent, nil)
	}
}
