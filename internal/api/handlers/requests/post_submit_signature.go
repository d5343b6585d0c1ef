package requests

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/types"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

func PostSubmitSignatureRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.POST("/requests/:id/signatures", postSubmitSignatureHandler(s))
}

func postSubmitSignatureHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body types.PostSignaturePayload
		if err := util.BindAndValidateBody(c, &body); err != nil {
			return err
		}
		sig := hexutil.MustDecode(body.Signature)
		var claimed common.Address
		if body.Signer != "" {
			claimed = common.HexToAddress(body.Signer)
		}

		res, err := s.Requests.SubmitSignature(ctx, c.Param("id"), sig, claimed)
		if err != nil {
			log.Debug().Err(err).Str("request_id", c.Param("id")).Msg("Signature not accepted")
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, &types.SubmitSignatureResponse{
			Request:      types.FromRequest(res.Request),
			Verification: res.Verification,
		})
	}
}
