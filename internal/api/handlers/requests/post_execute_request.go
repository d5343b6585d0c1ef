package requests

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

// PostExecuteRequestRoute submits an approved request to the execution gateway.
// A submitted but unconfirmed transaction answers 202; calling again confirms it.
func PostExecuteRequestRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/requests/:id/execute", postExecuteRequestHandler(s))
}

func postExecuteRequestHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		res, err := s.Requests.Execute(ctx, c.Param("id"))
		if err != nil && res == nil {
			log.Debug().Err(err).Str("request_id", c.Param("id")).Msg("Execution refused")
			return err
		}

		code := http.StatusOK
		if err != nil && withdrawal.IsKind(err, withdrawal.ErrKindTransient) {
			code = http.StatusAccepted
		}

		return util.ValidateAndReturn(c, code, &types.ExecuteRequestResponse{
			Request: types.FromRequest(res.Request),
			Outcome: types.FromOutcome(res.Outcome),
		})
	}
}
