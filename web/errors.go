// ABOUTME: JSON error responses for the HTTP API
// ABOUTME: Maps echo and calendar sync errors onto status codes with an {"error": ...} body
package web

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	calsync "github.com/harperreed/vesta/sync"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor returns the HTTP status and client message for err.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, validationMessage(verrs)
	case errors.Is(err, calsync.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, calsync.ErrIntegrationNotFound):
		return http.StatusNotFound, "Google Calendar is not connected"
	case errors.Is(err, calsync.ErrSyncInProgress):
		return http.StatusConflict, "Calendar sync already in progress"
	case errors.Is(err, calsync.ErrWebhookValidation):
		return http.StatusBadRequest, "Missing required headers"
	case errors.Is(err, calsync.ErrChannelNotFound):
		return http.StatusNotFound, "Channel not found"
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

func validationMessage(verrs validator.ValidationErrors) string {
	if len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return "invalid " + fe.Field() + ": failed " + fe.Tag()
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, message := statusFor(err)
		if code >= http.StatusInternalServerError {
			logger.Error("api is returning an error",
				zap.String("route", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
		} else {
			logger.Debug("request rejected", zap.String("route", c.Path()), zap.Int("status", code), zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, errorResponse{Error: message})
	}
}
