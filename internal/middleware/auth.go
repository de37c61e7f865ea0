package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/switchstack/switchstack-api/internal/model"
)

// CookieName is the session cookie set on signup and login.
const CookieName = "token"

// Authenticator resolves a raw session token to the caller's identity.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (model.Identity, error)
}

// Protect resolves the caller from the session cookie, falling back to an
// "Authorization: Bearer" header, and stores the identity on the context.
// Any failure aborts the request with the authenticator's error.
func Protect(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := auth.Authenticate(c.Request().Context(), tokenFrom(c))
			if err != nil {
				return err
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}

func tokenFrom(c echo.Context) string {
	if ck, err := c.Cookie(CookieName); err == nil && ck.Value != "" && ck.Value != "loggedout" {
		return ck.Value
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
