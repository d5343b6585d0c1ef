package batches

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

func PostExpireBatchRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/batches/:id/expire", postExpireBatchHandler(s))
}

func postExpireBatchHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, err := s.Batches.Expire(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromBatch(b))
	}
}
