package guardians

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

func PostSyncGuardiansRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/guardians/:token/sync", postSyncGuardiansHandler(s))
}

func postSyncGuardiansHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		token, err := util.AddressParam(c, "token")
		if err != nil {
			return err
		}

		list, err := s.Roster.Sync(ctx, token)
		if err != nil {
			util.LogFromContext(ctx).Warn().Err(err).Str("token", token.Hex()).Msg("Guardian roster sync failed")
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromGuardians(list))
	}
}
