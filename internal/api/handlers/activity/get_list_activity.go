package activity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/auth"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

const defaultLimit = 100

// GetListActivityRoute lists activity newest first. Without ?account it lists the caller's own entries.
func GetListActivityRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/activity", getListActivityHandler(s))
}

func getListActivityHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := auth.RequireCaller(c)
		if err != nil {
			return err
		}

		account, err := util.OptionalAddressQuery(c, "account")
		if err != nil {
			return err
		}
		if account == nil {
			account = &caller.Address
		}
		limit, err := util.IntQuery(c, "limit", defaultLimit)
		if err != nil {
			return err
		}

		list, err := s.Store.ListActivity(c.Request().Context(), storage.ActivityFilter{Account: account, Limit: limit})
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromActivity(list))
	}
}
