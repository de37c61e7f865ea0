// Package router registers the HTTP surface on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/switchstack/switchstack-api/internal/handler"
	"github.com/switchstack/switchstack-api/internal/middleware"
	"github.com/switchstack/switchstack-api/internal/model"
)

// Guards are the middleware chains applied per route group.  Protect is
// required; nil limiters and caches are skipped.
type Guards struct {
	Protect   echo.MiddlewareFunc
	AuthLimit echo.MiddlewareFunc // signup and login
	Limit     echo.MiddlewareFunc // authenticated routes, keyed per user
	Cache     echo.MiddlewareFunc // admin user list
}

func chain(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// RegisterRoutes adds the liveness endpoints and routes unknown paths to the
// error handler as 404.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/", handler.Root)
	e.GET("/healthz", handler.Health)
	e.RouteNotFound("/*", func(echo.Context) error { return echo.ErrNotFound })
}

// RegisterUsers adds the account routes under /users.
func RegisterUsers(e *echo.Echo, a *handler.AuthHandler, g Guards) {
	users := e.Group("/users")
	users.POST("/signup", a.Signup, chain(g.AuthLimit)...)
	users.POST("/login", a.Login, chain(g.AuthLimit)...)
	users.GET("/logout", a.Logout)

	users.DELETE("/deleteMe", a.DeleteMe, chain(g.Protect, g.Limit)...)

	admin := middleware.RequireRole(model.RoleAdmin)
	users.GET("", a.ListUsers, chain(g.Protect, g.Limit, admin, g.Cache)...)
	users.POST("", a.CreateUser, chain(g.Protect, g.Limit, admin)...)
}

// RegisterEsps adds the device routes under /esps.
func RegisterEsps(e *echo.Echo, h *handler.EspHandler, g Guards) {
	session := chain(g.Protect, g.Limit)
	asUser := chain(g.Protect, g.Limit, middleware.RequireRole(model.RoleUser))
	asAdmin := chain(g.Protect, g.Limit, middleware.RequireRole(model.RoleAdmin))

	esps := e.Group("/esps")
	esps.GET("", h.List, asUser...)
	esps.POST("", h.Create, asAdmin...)
	esps.POST("/register", h.Register, asUser...)
	esps.GET("/:espId", h.Get, session...)
	esps.PATCH("/:espId", h.UpdateMeta, session...)
	esps.PATCH("/:espId/switch/:switchId", h.UpdateSwitch, session...)
	esps.PATCH("/:espId/switch/:switchId/state", h.SetState, session...)
}
