package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/newsbrief/internal/app"
	"github.com/deusflow/newsbrief/internal/metrics"
	"github.com/deusflow/newsbrief/internal/scheduler"
)

func (s *Server) handleHealth(c *gin.Context) {
	stats := metrics.Global.GetStats()

	status, code := "ok", http.StatusOK
	if !metrics.Global.Healthy() {
		status, code = "error", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	stats := metrics.Global.GetStats()
	if s.usage != nil {
		if usage := s.usage.AIUsage(); usage != nil {
			stats["ai_usage"] = usage
		}
	}
	c.JSON(http.StatusOK, stats)
}

type schedulerStatus struct {
	State   scheduler.State `json:"state"`
	NextRun *time.Time      `json:"next_run,omitempty"`
	LastRun *time.Time      `json:"last_run,omitempty"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) handleDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"scheduler": schedulerStatus{
			State:   s.sched.State(),
			NextRun: optionalTime(s.sched.NextRun()),
			LastRun: optionalTime(s.sched.LastRun()),
		},
		"briefing": s.diag.Snapshot(),
	})
}

// handleTrigger starts a briefing. The body is optional JSON overrides.
func (s *Server) handleTrigger(c *gin.Context) {
	var ov app.Overrides
	if err := c.ShouldBindJSON(&ov); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ov.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.sched.Trigger(ov)
	if errors.Is(err, scheduler.ErrStopped) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.log.Info("📣 Briefing triggered", "result", result)
	c.JSON(http.StatusAccepted, gin.H{"result": result})
}
