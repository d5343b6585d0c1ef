package batches

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/httperrors"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/storage"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/withdrawal"
)

var knownStatuses = map[withdrawal.BatchStatus]bool{
	withdrawal.BatchStatusPending:     true,
	withdrawal.BatchStatusApproved:    true,
	withdrawal.BatchStatusExecuting:   true,
	withdrawal.BatchStatusCompleted:   true,
	withdrawal.BatchStatusCancelled:   true,
	withdrawal.BatchStatusPartialFail: true,
}

// GetListBatchesRoute lists batches, optionally by vault and a comma separated status list.
func GetListBatchesRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/batches", getListBatchesHandler(s))
}

func getListBatchesHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		vault, err := util.OptionalAddressQuery(c, "vault")
		if err != nil {
			return err
		}
		filter := storage.BatchFilter{Vault: vault}
		if raw := c.QueryParam("status"); raw != "" {
			for _, part := range strings.Split(raw, ",") {
				status := withdrawal.BatchStatus(strings.TrimSpace(part))
				if !knownStatuses[status] {
					return httperrors.NewHTTPErrorWithDetail(http.StatusBadRequest, httperrors.TypeBadRequest, "Invalid query parameter", "unknown status "+part)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
		}

		list, err := s.Batches.List(c.Request().Context(), filter)
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromBatches(list))
	}
}
