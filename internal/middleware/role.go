package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/switchstack/switchstack-api/internal/apperr"
	"github.com/switchstack/switchstack-api/internal/service"
)

// RequireRole lets the request through when the caller's role is one of
// roles.  It must run after Protect.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return apperr.Unauthorized("You are not logged in! Please log in to get access.")
			}
			if err := service.Authorize(id, roles...); err != nil {
				return err
			}
			return next(c)
		}
	}
}
