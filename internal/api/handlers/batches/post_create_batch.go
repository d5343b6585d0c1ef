package batches

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/httperrors"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/auth"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/batch"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

func PostCreateBatchRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/batches", postCreateBatchHandler(s))
}

func postCreateBatchHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		caller, err := auth.RequireCaller(c)
		if err != nil {
			return err
		}

		var body types.PostCreateBatchPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}

		items := make([]batch.ItemInput, 0, len(body.Items))
		for i := range body.Items {
			it := body.Items[i]
			if err := util.Validate(&it); err != nil {
				if httpErr, ok := err.(*httperrors.HTTPError); ok {
					httpErr.Detail = fmt.Sprintf("item %d: %s", i, httpErr.Detail)
				}
				return err
			}
			amount, _ := types.ParseAmount(it.Amount)
			items = append(items, batch.ItemInput{
				Token:     common.HexToAddress(it.Token),
				Amount:    amount,
				Recipient: common.HexToAddress(it.Recipient),
				Reason:    it.Reason,
				Category:  it.Category,
				IsQueued:  it.IsQueued,
			})
		}

		b, err := s.Batches.Create(ctx, batch.CreateBatchRequest{
			Vault:             common.HexToAddress(body.Vault),
			Creator:           caller.Address,
			Items:             items,
			RequiredApprovals: body.RequiredApprovals,
		})
		if err != nil {
			log.Debug().Err(err).Msg("Failed to create batch")
			return err
		}

		return util.ValidateAndReturn(c, http.StatusCreated, types.FromBatch(b))
	}
}
