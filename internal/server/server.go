package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/SignalScanner/internal/signals"
	"github.com/Alias1177/SignalScanner/internal/trading/performance"
	"github.com/Alias1177/SignalScanner/models"
)

// Scanner is the part of the scan loop the control surface reads and drives
type Scanner interface {
	Status() models.ScannerStatus
	Active() []*models.Prediction
	Sentiment(symbol string) int
	Outcomes() []models.Outcome
	ForceRescan() bool
}

// WeightStore reads and updates the live indicator weights
type WeightStore interface {
	Weights() signals.Weights
	SetWeights(w signals.Weights) (signals.Weights, error)
}

// OutcomeHistory serves persisted outcomes for the stats endpoint
type OutcomeHistory interface {
	Outcomes(ctx context.Context, since time.Time) ([]models.Outcome, error)
}

type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// /healthz fails once this many source errors pile up after the last good cycle
	HealthMaxErrors int64
	// or when the last good cycle is older than this
	HealthStaleAfter time.Duration
}

type Option func(*Config)

func WithAddr(host string, port int) Option {
	return func(c *Config) {
		c.Host = host
		c.Port = port
	}
}

func WithTimeouts(read, write, shutdown time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

func WithHealth(maxErrors int64, staleAfter time.Duration) Option {
	return func(c *Config) {
		c.HealthMaxErrors = maxErrors
		c.HealthStaleAfter = staleAfter
	}
}

// Deps are the services behind the routes; only Scanner is required
type Deps struct {
	Scanner Scanner
	Weights WeightStore
	History OutcomeHistory
	Metrics http.Handler
	Now     func() time.Time
}

// Server is the HTTP control surface
type Server struct {
	echo     *echo.Echo
	cfg      Config
	deps     Deps
	validate *validator.Validate
	logger   zerolog.Logger
}

func New(deps Deps, opts ...Option) (*Server, error) {
	if deps.Scanner == nil {
		return nil, errors.New("server: scanner is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	cfg := Config{
		Host:             "0.0.0.0",
		Port:             8080,
		ReadTimeout:      10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		HealthMaxErrors:  10,
		HealthStaleAfter: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(),
		logger:   log.With().Str("component", "http").Logger(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.Use(recoverer(s.logger))
	e.Use(requestLogging(s.logger))
	s.echo = e

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics))
	}

	g := s.echo.Group("/api")
	g.GET("/predictions", s.predictions)
	g.GET("/status", s.status)
	g.GET("/sentiment/:symbol", s.sentiment)
	g.POST("/rescan", s.rescan)
	g.GET("/stats", s.stats)
	if s.deps.Weights != nil {
		g.GET("/weights", s.weights)
		g.PUT("/weights", s.updateWeights)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens in the background
func (s *Server) Start() {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
}

// Stop shuts the server down, waiting at most ShutdownTimeout
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// Response is the envelope of every API reply
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c echo.Context, code int, data any) error {
	return c.JSON(code, Response{Status: code, Message: http.StatusText(code), Data: data})
}

func (s *Server) predictions(c echo.Context) error {
	return respond(c, http.StatusOK, s.deps.Scanner.Active())
}

func (s *Server) status(c echo.Context) error {
	return respond(c, http.StatusOK, s.deps.Scanner.Status())
}

type sentimentResponse struct {
	Symbol    string `json:"symbol"`
	CardCount int    `json:"card_count"`
}

func (s *Server) sentiment(c echo.Context) error {
	symbol := models.NormalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		return respond(c, http.StatusBadRequest, "symbol is required")
	}
	return respond(c, http.StatusOK, sentimentResponse{Symbol: symbol, CardCount: s.deps.Scanner.Sentiment(symbol)})
}

func (s *Server) rescan(c echo.Context) error {
	if !s.deps.Scanner.ForceRescan() {
		return respond(c, http.StatusConflict, "scan already in progress")
	}
	return respond(c, http.StatusAccepted, "scan started")
}

type statsRequest struct {
	Days int `query:"days" default:"30" validate:"gte=1,lte=365"`
}

func (s *Server) stats(c echo.Context) error {
	var req statsRequest
	if err := s.bind(c, &req); err != nil {
		return respond(c, http.StatusBadRequest, err.Error())
	}
	since := s.deps.Now().Add(-time.Duration(req.Days) * 24 * time.Hour)

	var outcomes []models.Outcome
	if s.deps.History != nil {
		var err error
		outcomes, err = s.deps.History.Outcomes(c.Request().Context(), since)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to load outcomes")
			return respond(c, http.StatusInternalServerError, nil)
		}
	} else {
		for _, o := range s.deps.Scanner.Outcomes() {
			if !o.ClosedAt.Before(since) {
				outcomes = append(outcomes, o)
			}
		}
	}
	return respond(c, http.StatusOK, performance.Calculate(outcomes))
}

func (s *Server) weights(c echo.Context) error {
	return respond(c, http.StatusOK, s.deps.Weights.Weights())
}

type weightsRequest struct {
	Weights map[string]float64 `json:"weights" validate:"required,min=1"`
}

func (s *Server) updateWeights(c echo.Context) error {
	var req weightsRequest
	if err := s.bind(c, &req); err != nil {
		return respond(c, http.StatusBadRequest, err.Error())
	}
	override := make(signals.Weights, len(req.Weights))
	for name, w := range req.Weights {
		override[strings.ToUpper(name)] = w
	}
	merged, err := s.deps.Weights.SetWeights(override)
	if err != nil {
		if errors.Is(err, signals.ErrInvalidWeights) {
			return respond(c, http.StatusBadRequest, err.Error())
		}
		return err
	}
	return respond(c, http.StatusOK, merged)
}

// bind reads the request, fills defaults and validates the result
func (s *Server) bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return fmt.Errorf("%v", he.Message)
		}
		return err
	}
	if err := defaults.Set(req); err != nil {
		return err
	}
	return s.validate.StructCtx(c.Request().Context(), req)
}

type healthResponse struct {
	Healthy bool                 `json:"healthy"`
	Reason  string               `json:"reason,omitempty"`
	Scanner models.ScannerStatus `json:"scanner"`
}

func (s *Server) health(c echo.Context) error {
	status := s.deps.Scanner.Status()
	reason := s.unhealthy(status)
	if reason != "" {
		return c.JSON(http.StatusServiceUnavailable, healthResponse{Reason: reason, Scanner: status})
	}
	return c.JSON(http.StatusOK, healthResponse{Healthy: true, Scanner: status})
}

func (s *Server) unhealthy(status models.ScannerStatus) string {
	now := s.deps.Now()
	switch {
	case !status.IsRunning:
		return "scanner not running"
	case s.cfg.HealthMaxErrors > 0 && status.ErrorsSinceSuccess > s.cfg.HealthMaxErrors:
		return fmt.Sprintf("%d source errors since last successful scan", status.ErrorsSinceSuccess)
	case s.cfg.HealthStaleAfter <= 0:
		return ""
	case status.LastSuccessfulScan.IsZero():
		if now.Sub(status.StartedAt) > s.cfg.HealthStaleAfter {
			return "no successful scan since start"
		}
	case now.Sub(status.LastSuccessfulScan) > s.cfg.HealthStaleAfter:
		return fmt.Sprintf("last successful scan %s ago", now.Sub(status.LastSuccessfulScan).Round(time.Second))
	}
	return ""
}
