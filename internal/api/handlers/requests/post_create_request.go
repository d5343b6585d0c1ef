package requests

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/auth"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/infra/request"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

func PostCreateRequestRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/requests", postCreateRequestHandler(s))
}

func postCreateRequestHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		caller, err := auth.RequireCaller(c)
		if err != nil {
			return err
		}

		var body types.PostCreateRequestPayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}
		amount, _ := types.ParseAmount(body.Amount)

		p, err := s.Requests.Create(ctx, request.CreateRequest{
			Vault:          common.HexToAddress(body.Vault),
			Token:          common.HexToAddress(body.Token),
			Amount:         amount,
			Recipient:      common.HexToAddress(body.Recipient),
			Reason:         body.Reason,
			RequiredQuorum: body.RequiredQuorum,
			CreatedBy:      caller.Address,
		})
		if err != nil {
			log.Debug().Err(err).Msg("Failed to create withdrawal request")
			return err
		}

		return util.ValidateAndReturn(c, http.StatusCreated, types.FromRequest(p))
	}
}
