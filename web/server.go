// ABOUTME: HTTP API server for the calendar integration and appointments
// ABOUTME: Wires echo routes, middleware, the status cache and the error handler
package web

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harperreed/vesta/cache"
	"github.com/harperreed/vesta/config"
	calsync "github.com/harperreed/vesta/sync"
)

const statusCacheKey = "calendar_status"

type Server struct {
	echo     *echo.Echo
	svc      *calsync.Service
	db       *sql.DB
	cache    *cache.Store
	cfg      *config.Config
	log      *zap.Logger
	validate *validator.Validate
}

// NewServer builds the API. store may be nil, which disables status caching.
func NewServer(database *sql.DB, svc *calsync.Service, store *cache.Store, cfg *config.Config, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:     e,
		svc:      svc,
		db:       database,
		cache:    store,
		cfg:      cfg,
		log:      logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	svc.Engine.SetAfterSync(func(userID uuid.UUID, _ calsync.SyncResult) {
		s.invalidateStatus(userID)
	})

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	user := []echo.MiddlewareFunc{s.requireUser, s.withUserCache}

	cal := s.echo.Group("/api/google/calendar")
	cal.GET("/callback", s.handleCallback)
	cal.POST("/webhook", s.handleWebhook)
	cal.GET("/webhook", s.handleWebhookProbe)
	cal.GET("/connect", s.handleConnect, user...)
	cal.POST("/disconnect", s.handleDisconnect, user...)
	cal.GET("/status", s.handleStatus, user...)
	cal.POST("/sync", s.handleSync, user...)
	cal.PUT("/direction", s.handleSetDirection, user...)

	api := s.echo.Group("/api")
	api.GET("/appointments.ics", s.handleICalFeed, user...)
	api.GET("/appointments", s.handleListAppointments, user...)
	api.POST("/appointments", s.handleCreateAppointment, user...)
	api.PATCH("/appointments/:id", s.handleUpdateAppointment, user...)
	api.POST("/appointments/:id/cancel", s.handleCancelAppointment, user...)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) invalidateStatus(userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ForUser(userID).Delete(statusCacheKey); err != nil {
		s.log.Warn("failed to invalidate status cache", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
