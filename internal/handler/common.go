package handler

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/switchstack/switchstack-api/internal/apperr"
	"github.com/switchstack/switchstack-api/internal/middleware"
	"github.com/switchstack/switchstack-api/internal/model"
)

// caller returns the identity resolved by middleware.Protect.
func caller(c echo.Context) (model.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return model.Identity{}, apperr.Unauthorized("You are not logged in! Please log in to get access.")
	}
	return id, nil
}

// bind decodes the body into req and runs the struct validator when one is
// registered on the echo instance.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperr.Invalid("Invalid request body")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(req)
}

func pathUint(c echo.Context, name string) (uint64, error) {
	raw := strings.TrimSpace(c.Param(name))
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, &apperr.CastError{Path: name, Value: raw}
	}
	return n, nil
}

// envelope is the success body shared by every endpoint.
type envelope struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	Results *int   `json:"results,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func success(data any) envelope { return envelope{Status: "success", Data: data} }

func list(n int, data any) envelope {
	return envelope{Status: "success", Results: &n, Data: data}
}
