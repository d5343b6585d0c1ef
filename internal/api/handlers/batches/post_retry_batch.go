package batches

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

// PostRetryBatchRoute re-runs the unexecuted items of a partial_fail batch.
func PostRetryBatchRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/batches/:id/retry", postRetryBatchHandler(s))
}

func postRetryBatchHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		res, err := s.Batches.RetryFailed(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromExecutionResult(res))
	}
}
