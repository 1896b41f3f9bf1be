package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	RunsStarted        int64
	RunsFailed         int64
	RunsNothingToBrief int64
	CategoryFailures   int64
	ExtractionFailures int64
	DuplicatesFiltered int64
	AIScripts          int64
	FallbackScripts    int64
	Deliveries         int64
	DeliveryFailures   int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) add(field *int64, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += n
}

func (m *Metrics) IncrementRunsStarted() { m.add(&m.RunsStarted, 1) }
func (m *Metrics) IncrementRunsFailed() { m.add(&m.RunsFailed, 1) }
func (m *Metrics) IncrementNothingToBrief() { m.add(&m.RunsNothingToBrief, 1) }
func (m *Metrics) IncrementCategoryFailures() { m.add(&m.CategoryFailures, 1) }
func (m *Metrics) IncrementExtractionFailures() { m.add(&m.ExtractionFailures, 1) }
func (m *Metrics) AddDuplicatesFiltered(n int) { m.add(&m.DuplicatesFiltered, int64(n)) }
func (m *Metrics) IncrementAIScripts() { m.add(&m.AIScripts, 1) }
func (m *Metrics) IncrementFallbackScripts() { m.add(&m.FallbackScripts, 1) }
func (m *Metrics) IncrementDeliveries() { m.add(&m.Deliveries, 1) }
func (m *Metrics) IncrementDeliveryFailures() { m.add(&m.DeliveryFailures, 1) }

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

// Healthy reports whether the last run finished without a run-level error.
func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"runs_started":               m.RunsStarted,
		"runs_failed":                m.RunsFailed,
		"runs_nothing_to_brief":      m.RunsNothingToBrief,
		"category_failures":          m.CategoryFailures,
		"extraction_failures":        m.ExtractionFailures,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"ai_scripts":                 m.AIScripts,
		"fallback_scripts":           m.FallbackScripts,
		"deliveries":                 m.Deliveries,
		"delivery_failures":          m.DeliveryFailures,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
