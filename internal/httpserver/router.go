package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/litenhq/liten-server/internal/handlers"
	"github.com/litenhq/liten-server/internal/token"
)

type Deps struct {
	AuthHandler *handlers.AuthHandler
	Tokens      *token.Issuer
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	auth := e.Group("/auth")

	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.Refresh)
	auth.POST("/logout", d.AuthHandler.Logout)
	auth.POST("/social/login", d.AuthHandler.SocialLogin)

	private := auth.Group("", handlers.RequireAuth(d.Tokens))
	private.GET("/me", d.AuthHandler.Me)
}
