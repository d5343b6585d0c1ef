package batches

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/auth"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

// PostApproveBatchRoute records the caller's approval. The signature must recover to the caller.
func PostApproveBatchRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/batches/:id/approvals", postApproveBatchHandler(s))
}

func postApproveBatchHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		caller, err := auth.RequireCaller(c)
		if err != nil {
			return err
		}

		var body types.PostApprovalPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		b, err := s.Batches.Approve(ctx, c.Param("id"), caller.Address, hexutil.MustDecode(body.Signature))
		if err != nil {
			log.Debug().Err(err).Str("batch_id", c.Param("id")).Msg("Batch approval not accepted")
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, types.FromBatch(b))
	}
}
