package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Root reports that the server is up.
func Root(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "active", "message": "Server is running"})
}

// Health is a plain-text probe for load balancers.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
