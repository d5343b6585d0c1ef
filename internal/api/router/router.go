package router

import (
	"strings"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/handlers"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/httperrors"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/middleware"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/auth"
)

func Init(s *api.Server) {
	s.Echo = echo.New()

	s.Echo.Debug = s.Config.Echo.Debug
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.HTTPErrorHandler = httperrors.HTTPErrorHandler

	s.Echo.Pre(echoMiddleware.RemoveTrailingSlash())
	s.Echo.Use(echoMiddleware.Recover())
	s.Echo.Use(echoMiddleware.RequestID())
	s.Echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Level: s.Config.Logger.RequestLevel,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/-/")
		},
	}))
	s.Echo.Use(echoMiddleware.BodyLimit("1M"))

	s.Router = &api.Router{
		Routes: nil,
		Root:   s.Echo.Group(""),
		// management endpoints are unauthenticated and meant for the cluster only
		Management: s.Echo.Group("/-"),
		APIV1:      s.Echo.Group("/api/v1", auth.Middleware(s.Auth)),
	}

	handlers.AttachAllRoutes(s)
}
