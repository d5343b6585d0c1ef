package requests

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

// GetVerificationRoute re-checks the stored signatures against the current roster.
func GetVerificationRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/requests/:id/verification", getVerificationHandler(s))
}

func getVerificationHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		summary, err := s.Requests.Verify(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}

		return util.ValidateAndReturn(c, http.StatusOK, summary)
	}
}
