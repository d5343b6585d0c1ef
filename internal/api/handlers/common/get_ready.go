package common

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

const readinessTimeout = 3 * time.Second

// GetReadyRoute is the readiness probe. It pings redis and the chain RPC when they are configured.
func GetReadyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/ready", getReadyHandler(s))
}

func getReadyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
		defer cancel()
		log := util.LogFromContext(ctx)

		if !s.Ready() {
			return c.String(http.StatusServiceUnavailable, "Not ready.")
		}
		if s.Redis != nil {
			if err := s.Redis.Ping(ctx).Err(); err != nil {
				log.Warn().Err(err).Msg("Readiness: redis unreachable")
				return c.String(http.StatusServiceUnavailable, "Redis unreachable.")
			}
		}
		if s.Eth != nil {
			if _, err := s.Eth.BlockNumber(ctx); err != nil {
				log.Warn().Err(err).Msg("Readiness: chain RPC unreachable")
				return c.String(http.StatusServiceUnavailable, "Chain RPC unreachable.")
			}
		}

		return c.String(http.StatusOK, "Ready.")
	}
}
