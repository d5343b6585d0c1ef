package batches

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/auth"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

func PostCancelBatchRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/batches/:id/cancel", postCancelBatchHandler(s))
}

func postCancelBatchHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := auth.RequireCaller(c)
		if err != nil {
			return err
		}

		var body types.PostCancelBatchPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		b, err := s.Batches.Cancel(c.Request().Context(), c.Param("id"), caller.Address, body.Reason)
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromBatch(b))
	}
}
