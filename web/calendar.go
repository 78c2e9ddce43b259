// ABOUTME: Google Calendar integration endpoints
// ABOUTME: Connect, OAuth callback, disconnect, status, manual sync, direction and push webhook
package web

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/harperreed/vesta/cache"
	"github.com/harperreed/vesta/models"
	calsync "github.com/harperreed/vesta/sync"
)

// Callback failure reasons carried in the app redirect.
const (
	reasonOAuthFailed     = "oauth_failed"
	reasonInvalidCallback = "invalid_callback"
	reasonUnauthorized    = "unauthorized"
	reasonInvalidState    = "invalid_state"
	reasonExchangeFailed  = "token_exchange_failed"
	reasonCallbackFailed  = "callback_failed"
)

func (s *Server) handleConnect(c echo.Context) error {
	url, err := s.svc.ConnectURL(currentUser(c))
	if err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, url)
}

func (s *Server) redirectCallbackError(c echo.Context, reason string) error {
	return c.Redirect(http.StatusFound, s.cfg.AppRedirect("error", reason))
}

func (s *Server) handleCallback(c echo.Context) error {
	q := c.QueryParams()
	if providerErr := q.Get("error"); providerErr != "" {
		s.log.Info("oauth consent failed", zap.String("error", providerErr))
		return s.redirectCallbackError(c, reasonOAuthFailed)
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		return s.redirectCallbackError(c, reasonInvalidCallback)
	}

	userID, ok := headerUser(c)
	if !ok {
		return s.redirectCallbackError(c, reasonUnauthorized)
	}

	stateUser, err := s.svc.State.Verify(state)
	if err != nil || stateUser != userID {
		s.log.Warn("oauth state rejected", zap.String("user_id", userID.String()), zap.Error(err))
		return s.redirectCallbackError(c, reasonInvalidState)
	}

	if _, err := s.svc.HandleCallback(c.Request().Context(), code, state); err != nil {
		var exchangeErr *calsync.TokenExchangeError
		if errors.As(err, &exchangeErr) {
			s.log.Warn("oauth code exchange failed", zap.String("user_id", userID.String()), zap.Error(err))
			return s.redirectCallbackError(c, reasonExchangeFailed)
		}
		s.log.Error("oauth callback failed", zap.String("user_id", userID.String()), zap.Error(err))
		return s.redirectCallbackError(c, reasonCallbackFailed)
	}

	s.invalidateStatus(userID)
	s.log.Info("connected google calendar", zap.String("user_id", userID.String()))
	return c.Redirect(http.StatusFound, s.cfg.AppRedirect("success", "google_connected"))
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleDisconnect(c echo.Context) error {
	userID := currentUser(c)
	if err := s.svc.Disconnect(c.Request().Context(), userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to disconnect Google Calendar").SetInternal(err)
	}
	s.invalidateStatus(userID)
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "Google Calendar disconnected"})
}

func (s *Server) handleStatus(c echo.Context) error {
	userID := currentUser(c)
	uc, cached := cache.FromContext(c.Request().Context())

	if cached {
		var status calsync.CalendarStatus
		hit, err := uc.GetJSON(statusCacheKey, &status)
		if err != nil {
			s.log.Warn("failed to read status cache", zap.String("user_id", userID.String()), zap.Error(err))
		}
		if hit {
			return c.JSON(http.StatusOK, &status)
		}
	}

	status, err := s.svc.Status(userID)
	if err != nil {
		return err
	}

	if cached {
		if err := uc.SetJSON(statusCacheKey, status, s.cfg.StatusCacheTTL); err != nil {
			s.log.Warn("failed to write status cache", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleSync(c echo.Context) error {
	result := s.svc.Engine.SyncFromGoogle(c.Request().Context(), currentUser(c), models.TriggerManual)
	if result.Success {
		return c.JSON(http.StatusOK, result)
	}

	code, _ := statusFor(result.Err)
	return c.JSON(code, result)
}

type directionRequest struct {
	Direction string `json:"direction" validate:"required"`
}

func (s *Server) handleSetDirection(c echo.Context) error {
	var req directionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.validate.Struct(&req); err != nil {
		return err
	}

	direction, err := models.ParseSyncDirection(req.Direction)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	userID := currentUser(c)
	if err := s.svc.SetSyncDirection(userID, direction); err != nil {
		return err
	}
	s.invalidateStatus(userID)
	return c.JSON(http.StatusOK, map[string]any{"success": true, "syncDirection": direction})
}

func (s *Server) handleWebhook(c echo.Context) error {
	h := c.Request().Header
	err := s.svc.HandleNotification(calsync.Notification{
		ChannelID:     h.Get("X-Goog-Channel-ID"),
		ChannelToken:  h.Get("X-Goog-Channel-Token"),
		ResourceState: h.Get("X-Goog-Resource-State"),
		ResourceID:    h.Get("X-Goog-Resource-ID"),
		MessageNumber: h.Get("X-Goog-Message-Number"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// handleWebhookProbe answers reachability checks on the webhook URL.
func (s *Server) handleWebhookProbe(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
