// Package server exposes health, metrics, diagnostics and the manual
// briefing trigger over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/newsbrief/internal/app"
	"github.com/deusflow/newsbrief/internal/logger"
	"github.com/deusflow/newsbrief/internal/scheduler"
)

// Scheduler is the part of the briefing scheduler the API uses.
type Scheduler interface {
	Trigger(ov app.Overrides) (scheduler.TriggerResult, error)
	State() scheduler.State
	NextRun() time.Time
	LastRun() time.Time
}

// DiagnosticsSource returns the latest run diagnostics.
type DiagnosticsSource interface {
	Snapshot() app.DiagnosticsSnapshot
}

// UsageSource reports AI request usage against the daily budget.
type UsageSource interface {
	AIUsage() map[string]interface{}
}

type Server struct {
	sched  Scheduler
	diag   DiagnosticsSource
	usage  UsageSource
	router *gin.Engine
	http   *http.Server
	log    *slog.Logger
}

// New creates the server. Call Start to listen on addr. usage may be nil.
func New(addr string, sched Scheduler, diag DiagnosticsSource, usage UsageSource) *Server {
	router := gin.New()
	s := &Server{
		sched:  sched,
		diag:   diag,
		usage:  usage,
		router: router,
		log:    logger.With("http"),
	}
	router.Use(gin.Recovery(), s.requestLog)

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", s.handleMetrics)

	api := router.Group("/api")
	{
		api.GET("/diagnostics", s.handleDiagnostics)
		api.POST("/briefing", s.handleTrigger)
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("🌐 HTTP server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}
