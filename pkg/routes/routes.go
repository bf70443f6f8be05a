// Package routes holds shared HTTP plumbing for the route handlers.
package routes

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/logging"
)

// ErrorHandler renders errors with a single JSON shape and keeps the
// status codes the handlers chose.
func ErrorHandler(logger logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"

		var httpErr *httperror.HTTPError
		var echoErr *echo.HTTPError
		switch {
		case errors.As(err, &httpErr):
			status = httpErr.Code
			message = httpErr.Message
		case errors.As(err, &echoErr):
			status = echoErr.Code
			message = fmt.Sprintf("%v", echoErr.Message)
		}

		if status >= http.StatusInternalServerError {
			logger.WithContext(c.Request().Context()).WithError(err).Error("Request failed")
		}

		if err := c.JSON(status, map[string]string{"message": message}); err != nil {
			logger.WithError(err).Error("Failed to write error response")
		}
	}
}
