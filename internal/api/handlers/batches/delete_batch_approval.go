package batches

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/auth"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

func DeleteBatchApprovalRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.DELETE("/batches/:id/approvals", deleteBatchApprovalHandler(s))
}

func deleteBatchApprovalHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, err := auth.RequireCaller(c)
		if err != nil {
			return err
		}

		b, err := s.Batches.RevokeApproval(c.Request().Context(), c.Param("id"), caller.Address)
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromBatch(b))
	}
}
