package requests

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

func GetRequestRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/requests/:id", getRequestHandler(s))
}

func getRequestHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := s.Requests.Get(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromRequest(p))
	}
}
