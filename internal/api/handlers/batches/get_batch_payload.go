package batches

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

func GetBatchPayloadRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/batches/:id/payload", getBatchPayloadHandler(s))
}

func getBatchPayloadHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		_, typed, digest, err := s.Batches.Payload(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, &types.TypedDataResponse{
			Digest:    digest.Hex(),
			TypedData: typed,
		})
	}
}
