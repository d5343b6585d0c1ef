package requests

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/auth"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

func PostRejectRequestRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/requests/:id/reject", postRejectRequestHandler(s))
}

func postRejectRequestHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := auth.RequireCaller(c)
		if err != nil {
			return err
		}

		var body types.PostRejectPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		p, err := s.Requests.Reject(c.Request().Context(), c.Param("id"), caller.Address, body.Reason)
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromRequest(p))
	}
}
