package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/switchstack/switchstack-api/internal/model"
)

const identityKey = "identity"

func setIdentity(c echo.Context, id model.Identity) { c.Set(identityKey, id) }

// IdentityFrom returns the identity Protect stored on the context.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(identityKey).(model.Identity)
	return id, ok
}

// userKey is the rate-limit component for the caller: the user id once
// authenticated, "anon" before.
func userKey(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok && id.UserID != 0 {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "anon"
}
