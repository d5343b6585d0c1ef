package requests

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/httperrors"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

func GetListRequestsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/requests", getListRequestsHandler(s))
}

func getListRequestsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		vault, err := util.OptionalAddressQuery(c, "vault")
		if err != nil {
			return err
		}
		filter := storage.RequestFilter{Vault: vault}
		if raw := c.QueryParam("status"); raw != "" {
			status := withdrawal.Status(raw)
			switch status {
			case withdrawal.StatusPending, withdrawal.StatusApproved, withdrawal.StatusExecuted, withdrawal.StatusRejected:
				filter.Status = status
			default:
				return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.TypeBadRequest, "Invalid query parameter", "unknown status "+raw)
			}
		}

		list, err := s.Requests.List(ctx, filter)
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromRequests(list))
	}
}
