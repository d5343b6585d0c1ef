package guardians

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

// GetListGuardiansRoute serves the cached roster. It never calls the chain.
func GetListGuardiansRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/guardians/:token", getListGuardiansHandler(s))
}

func getListGuardiansHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := util.AddressParam(c, "token")
		if err != nil {
			return err
		}

		list, err := s.Roster.List(c.Request().Context(), token)
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromGuardians(list))
	}
}
