// Package http serves the grievance intake conversation and tracking API.
package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/intake"
	"github.com/fyrsmithlabs/grievanced/internal/logging"
	"github.com/fyrsmithlabs/grievanced/internal/session"
	"github.com/fyrsmithlabs/grievanced/internal/store"
)

// Server provides HTTP endpoints for grievanced.
type Server struct {
	echo    *echo.Echo
	intake  *intake.Service
	store   store.Store
	ids     IDValidator
	metrics *HTTPMetrics
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// CallbackToken is the bearer token the legacy system presents on the
	// sync-status callback. Empty disables the callback.
	CallbackToken string
}

// IDValidator rejects malformed grievance identifiers before a lookup.
type IDValidator interface {
	Valid(id grievance.ID) bool
}

// Option configures a Server.
type Option func(*Server)

// WithIDValidator checks path identifiers against v.
func WithIDValidator(v IDValidator) Option {
	return func(s *Server) { s.ids = v }
}

// WithMetrics records OpenTelemetry request metrics through m.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new HTTP server.
func NewServer(svc *intake.Service, st store.Store, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("intake service cannot be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("grievance store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		intake: svc,
		store:  st,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if s.metrics != nil {
		e.Use(s.metrics.Middleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			err := next(c)
			if err != nil {
				// Resolve the status before logging it.
				c.Error(err)
			}

			status := c.Response().Status
			if ce := logger.Check(logging.LevelForStatus(status), "http request"); ce != nil {
				ce.Write(
					zap.String("method", req.Method),
					zap.String("route", c.Path()),
					zap.Int("status", status),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", requestID),
				)
			}
			return nil
		}
	})

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	v1.POST("/sessions", s.handleStartSession)
	v1.GET("/sessions/:id", s.handleCurrent)
	v1.POST("/sessions/:id/turns", s.handleTurn)
	v1.DELETE("/sessions/:id", s.handleEndSession)

	v1.GET("/grievances/:id", s.handleTrack)
	v1.GET("/grievances/:id/amendments", s.handleListAmendments)
	v1.POST("/grievances/:id/amendments", s.handleAmend)
	v1.POST("/grievances/:id/sync-status", s.handleSyncStatus, s.callbackAuth())
}

// callbackAuth checks the legacy system's bearer token.
func (s *Server) callbackAuth() echo.MiddlewareFunc {
	token := []byte(s.config.CallbackToken)
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Validator: func(key string, c echo.Context) (bool, error) {
			if len(token) == 0 {
				return false, nil
			}
			return subtle.ConstantTimeCompare([]byte(key), token) == 1, nil
		},
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStartSession(c echo.Context) error {
	sess, res, err := s.intake.Start(c.Request().Context())
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, SessionResponse{SessionID: sess.ID, Result: res})
}

func (s *Server) handleCurrent(c echo.Context) error {
	id := c.Param("id")
	res, err := s.intake.Current(c.Request().Context(), id)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{SessionID: id, Result: res})
}

func (s *Server) handleTurn(c echo.Context) error {
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid turn request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" && req.Signal == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text or signal is required")
	}

	id := c.Param("id")
	res, err := s.intake.HandleTurn(c.Request().Context(), id, intake.Turn{Text: req.Text, Signal: req.Signal})
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{SessionID: id, Result: res})
}

func (s *Server) handleEndSession(c echo.Context) error {
	if err := s.intake.End(c.Request().Context(), c.Param("id")); err != nil {
		return s.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTrack(c echo.Context) error {
	id, err := s.grievanceID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	t, err := s.store.Load(ctx, id)
	if err != nil {
		return s.httpError(c, err)
	}
	amendments, err := s.store.ListAmendments(ctx, id)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, newTrackingResponse(t, amendments))
}

func (s *Server) handleListAmendments(c echo.Context) error {
	id, err := s.grievanceID(c)
	if err != nil {
		return err
	}
	amendments, err := s.store.ListAmendments(c.Request().Context(), id)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, amendments)
}

func (s *Server) handleAmend(c echo.Context) error {
	id, err := s.grievanceID(c)
	if err != nil {
		return err
	}
	var req AmendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := logging.WithGrievanceID(c.Request().Context(), string(id))
	a, err := s.store.AddAmendment(ctx, id, req.Note)
	if err != nil {
		return s.httpError(c, err)
	}
	s.logger.Info("amendment added", zap.String("grievance_id", string(id)), zap.Int64("amendment_id", a.ID))
	return c.JSON(http.StatusCreated, a)
}

func (s *Server) handleSyncStatus(c echo.Context) error {
	id, err := s.grievanceID(c)
	if err != nil {
		return err
	}
	var req SyncStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	status := grievance.SyncStatus(req.Status)
	if status != grievance.SyncSynced && status != grievance.SyncFailed {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be synced or failed")
	}
	if err := s.store.UpdateSyncStatus(c.Request().Context(), id, status, req.LegacyRef); err != nil {
		return s.httpError(c, err)
	}
	s.logger.Info("legacy sync status received",
		zap.String("grievance_id", string(id)),
		zap.String("status", string(status)),
	)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) grievanceID(c echo.Context) (grievance.ID, error) {
	id := grievance.ID(c.Param("id"))
	if s.ids != nil && !s.ids.Valid(id) {
		return "", echo.NewHTTPError(http.StatusBadRequest, "malformed grievance id")
	}
	return id, nil
}

// httpError maps domain errors to HTTP errors. Unexpected errors are logged
// and reported without detail.
func (s *Server) httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrEnded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrEmptyNote), errors.Is(err, store.ErrInvalidSyncStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	}
	s.logger.Error("request failed",
		zap.String("route", c.Path()),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Error(err),
	)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
