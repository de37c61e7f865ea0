package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/switchstack/switchstack-api/internal/apperr"
)

// ErrorHandler is the only place that writes error responses.  Every error
// is classified by apperr.Translate; unclassified errors are logged and the
// client gets a generic message.  4xx responses carry status "fail", 5xx
// "error".
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg := classify(err, c, log)

		status := "fail"
		if code >= http.StatusInternalServerError {
			status = "error"
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, echo.Map{"status": status, "message": msg})
		}
		if werr != nil {
			log.Error("write error response", "err", werr)
		}
	}
}

func classify(err error, c echo.Context, log *slog.Logger) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			return http.StatusNotFound, fmt.Sprintf("Can't find %s on this server!", c.Request().URL.Path)
		case http.StatusBadRequest, http.StatusUnsupportedMediaType:
			return http.StatusBadRequest, "Invalid request body"
		}
		return he.Code, fmt.Sprint(he.Message)
	}

	appErr, known := apperr.Translate(err)
	if !known {
		log.Error("unhandled error",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"err", err,
		)
	}
	return appErr.Status(), appErr.Message
}
