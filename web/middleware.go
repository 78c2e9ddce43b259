// ABOUTME: Echo middleware for request logging, caller identity and the per-user cache
// ABOUTME: Identity comes from the X-User-ID header set by the fronting auth layer
package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/harperreed/vesta/cache"
	"github.com/harperreed/vesta/db"
)

const (
	headerUserID = "X-User-ID"
	ctxUserID    = "user_id"
)

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}

			logger.Info("request",
				zap.String("request_id", id),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("route", c.Path()),
				zap.Int("status", res.Status),
				zap.String("remote_ip", c.RealIP()),
				zap.Duration("response_time", time.Since(start)),
				zap.Int64("response_size", res.Size))
			return nil
		}
	}
}

// headerUser parses the caller identity header.
func headerUser(c echo.Context) (uuid.UUID, bool) {
	raw := c.Request().Header.Get(headerUserID)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// requireUser rejects requests without a valid identity and makes sure the
// user row exists.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, ok := headerUser(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		}
		if err := db.EnsureUser(s.db, userID); err != nil {
			return err
		}
		c.Set(ctxUserID, userID)
		return next(c)
	}
}

// withUserCache attaches the caller's cache view to the request context.
func (s *Server) withUserCache(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.cache != nil {
			req := c.Request()
			ctx := cache.NewContext(req.Context(), s.cache.ForUser(currentUser(c)))
			c.SetRequest(req.WithContext(ctx))
		}
		return next(c)
	}
}

func currentUser(c echo.Context) uuid.UUID {
	id, _ := c.Get(ctxUserID).(uuid.UUID)
	return id
}
