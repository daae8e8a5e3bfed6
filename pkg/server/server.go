package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/joeychilson/emojicoach/pkg/chart"
	"github.com/joeychilson/emojicoach/pkg/predict"
)

//go:embed templates
var templatesFS embed.FS

const (
	title       = "TweetEval Emoji Reaction Coach"
	description = "Type any tweet-like text and get the top-k emoji reactions!"
)

var examples = []string{"Sunny days!", "That movie was amazing."}

// Predictor ranks emoji reactions for a text
type Predictor interface {
	Reactions(ctx context.Context, text string, k int) ([]predict.Reaction, error)
}

// Config holds configuration for the HTTP server
type Config struct {
	// Addr is the listen address, e.g. ":7860"
	Addr string
	// MaxConcurrent caps simultaneous inferences (0 = CPU count)
	MaxConcurrent int
	// ShutdownTimeout bounds graceful shutdown (0 = 10s)
	ShutdownTimeout time.Duration
}

// Server serves the web form, JSON API, chart, health and metrics endpoints
type Server struct {
	config    Config
	predictor Predictor
	sem       *semaphore.Weighted
	engine    *gin.Engine
	metrics   *metrics
	ready     atomic.Bool
	logger    *zap.Logger
}

// New creates a server around a shared predictor
func New(predictor Predictor, cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = runtime.NumCPU()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		config:    cfg,
		predictor: predictor,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		metrics:   newMetrics(prometheus.NewRegistry()),
		logger:    logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	engine.SetHTMLTemplate(tmpl)

	engine.GET("/", s.index)
	engine.POST("/", s.index)
	engine.POST("/api/predict", s.apiPredict)
	engine.GET("/api/chart.png", s.chart)
	engine.GET("/healthz", s.health)
	engine.GET("/readyz", s.readiness)
	engine.GET("/metrics", gin.WrapH(s.metrics.handler()))
	s.engine = engine

	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// SetReady marks the server ready to take predictions
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Run listens on the configured address until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", s.config.Addr), zap.Int("maxConcurrent", s.config.MaxConcurrent))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.SetReady(false)
	s.logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}

// reactions runs a prediction within the concurrency limit and records metrics
func (s *Server) reactions(ctx context.Context, text string, k int) ([]predict.Reaction, error) {
	if err := predict.ValidateK(k); err != nil {
		s.metrics.predictions.WithLabelValues(outcomeInvalid).Inc()
		return nil, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.metrics.predictions.WithLabelValues(outcomeRejected).Inc()
		return nil, errBusy
	}
	defer s.sem.Release(1)

	s.metrics.inflight.Inc()
	defer s.metrics.inflight.Dec()

	start := time.Now()
	reactions, err := s.predictor.Reactions(ctx, text, k)
	s.metrics.latency.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.predictions.WithLabelValues(outcomeError).Inc()
		return nil, err
	}
	s.metrics.predictions.WithLabelValues(outcomeOK).Inc()
	return reactions, nil
}

var errBusy = errors.New("server busy, please retry")

// statusFor maps prediction errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, predict.ErrInvalidK):
		return http.StatusBadRequest
	case errors.Is(err, errBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseK reads k from a form or query value, defaulting when absent
func parseK(raw string) (int, error) {
	if raw == "" {
		return predict.DefaultK, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", predict.ErrInvalidK, raw)
	}
	return k, nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) readiness(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) chart(c *gin.Context) {
	k, err := parseK(c.Query("k"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reactions, err := s.reactions(c.Request.Context(), c.Query("text"), k)
	if err != nil {
		s.logError(c, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	bars := make([]chart.Bar, len(reactions))
	for i, r := range reactions {
		bars[i] = chart.Bar{Label: fmt.Sprintf("%2d %s", r.Class, r.Label), Value: r.Score}
	}

	c.Header("Content-Type", "image/png")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := chart.WritePNG(c.Writer, bars, chart.DefaultOptions()); err != nil {
		s.logError(c, err)
	}
}

func (s *Server) logError(c *gin.Context, err error) {
	logger := s.logger
	if l, ok := c.Get(loggerKey); ok {
		logger = l.(*zap.Logger)
	}
	logger.Warn("Prediction failed", zap.Error(err))
}
