package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsbrief/internal/app"
	"github.com/deusflow/newsbrief/internal/metrics"
	"github.com/deusflow/newsbrief/internal/news"
	"github.com/deusflow/newsbrief/internal/scheduler"
)

type fakeScheduler struct {
	triggers []app.Overrides
	result   scheduler.TriggerResult
	err      error
	state    scheduler.State
	next     time.Time
}

func (f *fakeScheduler) Trigger(ov app.Overrides) (scheduler.TriggerResult, error) {
	if f.err != nil {
		return "", f.err
	}
	f.triggers = append(f.triggers, ov)
	return f.result, nil
}

func (f *fakeScheduler) State() scheduler.State { return f.state }
func (f *fakeScheduler) NextRun() time.Time     { return f.next }
func (f *fakeScheduler) LastRun() time.Time     { return time.Time{} }

type fakeDiagnostics struct {
	snap app.DiagnosticsSnapshot
}

func (f fakeDiagnostics) Snapshot() app.DiagnosticsSnapshot { return f.snap }

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestTrigger_StartedWithoutBody(t *testing.T) {
	sched := &fakeScheduler{result: scheduler.Started, state: scheduler.Idle}
	s := New(":0", sched, fakeDiagnostics{}, nil)

	w := do(t, s, http.MethodPost, "/api/briefing", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.JSONEq(t, `{"result":"started"}`, w.Body.String())
	require.Len(t, sched.triggers, 1)
	require.Equal(t, app.Overrides{}, sched.triggers[0])
}

func TestTrigger_QueuedWithOverrides(t *testing.T) {
	sched := &fakeScheduler{result: scheduler.Queued, state: scheduler.Running}
	s := New(":0", sched, fakeDiagnostics{}, nil)

	w := do(t, s, http.MethodPost, "/api/briefing", `{"max_per_category":4,"media_players":["media_player.office"],"preroll_ms":0}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.JSONEq(t, `{"result":"queued"}`, w.Body.String())

	ov := sched.triggers[0]
	require.Equal(t, 4, ov.MaxPerCategory)
	require.Equal(t, []string{"media_player.office"}, ov.MediaPlayers)
	require.NotNil(t, ov.PrerollMS)
	require.Equal(t, 0, *ov.PrerollMS)
}

func TestTrigger_RejectsBadInput(t *testing.T) {
	sched := &fakeScheduler{result: scheduler.Started}
	s := New(":0", sched, fakeDiagnostics{}, nil)

	w := do(t, s, http.MethodPost, "/api/briefing", `{"max_per_category":50}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/briefing", `{not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, sched.triggers)
}

func TestTrigger_Stopped(t *testing.T) {
	s := New(":0", &fakeScheduler{err: scheduler.ErrStopped}, fakeDiagnostics{}, nil)
	w := do(t, s, http.MethodPost, "/api/briefing", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDiagnostics(t *testing.T) {
	next := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	sched := &fakeScheduler{state: scheduler.Idle, next: next}
	diag := fakeDiagnostics{snap: app.DiagnosticsSnapshot{
		LastRunID: "run-1",
		Result:    app.ResultDelivered,
		Script:    &news.Script{Body: "Good morning, hello.", Source: news.SourceAI, Backend: "gemini"},
		CategoryErrors: map[string]app.CategoryError{
			"Sports": {Error: "fetch Sports: network"},
		},
	}}
	s := New(":0", sched, diag, nil)

	w := do(t, s, http.MethodGet, "/api/diagnostics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Scheduler struct {
			State   string     `json:"state"`
			NextRun *time.Time `json:"next_run"`
			LastRun *time.Time `json:"last_run"`
		} `json:"scheduler"`
		Briefing app.DiagnosticsSnapshot `json:"briefing"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "idle", body.Scheduler.State)
	require.True(t, next.Equal(*body.Scheduler.NextRun))
	require.Nil(t, body.Scheduler.LastRun)
	require.Equal(t, "run-1", body.Briefing.LastRunID)
	require.Equal(t, "Good morning, hello.", body.Briefing.Script.Body)
	require.Equal(t, "fetch Sports: network", body.Briefing.CategoryErrors["Sports"].Error)
}

type fakeUsage map[string]interface{}

func (f fakeUsage) AIUsage() map[string]interface{} { return f }

func TestHealthAndMetrics(t *testing.T) {
	s := New(":0", &fakeScheduler{}, fakeDiagnostics{}, fakeUsage{"total_used": 3, "gemini_limit": 50})

	metrics.Global.SetLastRun()
	w := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)

	metrics.Global.SetError("all delivery targets failed")
	w = do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "all delivery targets failed")
	metrics.Global.SetLastRun()

	w = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Contains(t, stats, "runs_started")
	require.Contains(t, stats, "deliveries")
	require.Equal(t, map[string]any{"total_used": float64(3), "gemini_limit": float64(50)}, stats["ai_usage"])
}

func TestMetrics_WithoutUsage(t *testing.T) {
	s := New(":0", &fakeScheduler{}, fakeDiagnostics{}, nil)
	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "ai_usage")
}
