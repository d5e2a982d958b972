package benchmark

import (
	"time"

	"github.com/mwiater/mockbench/internal/appconfig"
	"github.com/mwiater/mockbench/internal/query"
)

// Summary holds the statistics of one configuration. Timing fields only
// cover successful queries and are zero when SuccessCount is zero.
type Summary struct {
	QueryCount       int      `json:"queryCount"`
	SuccessCount     int      `json:"successCount"`
	Total            float64  `json:"totalSeconds"`
	Average          float64  `json:"averageSeconds"`
	Min              float64  `json:"minSeconds"`
	Max              float64  `json:"maxSeconds"`
	Median           float64  `json:"medianSeconds"`
	StdDev           float64  `json:"stddevSeconds"`
	QueriesPerMinute float64  `json:"queriesPerMinute"`
	APIAverage       *float64 `json:"apiAverageSeconds,omitempty"`
	OverheadAverage  *float64 `json:"overheadAverageSeconds,omitempty"`
}

// HasTimings reports whether average, min and max are meaningful.
func (s Summary) HasTimings() bool {
	return s.SuccessCount > 0
}

// FailedCount returns the number of failed queries.
func (s Summary) FailedCount() int {
	return s.QueryCount - s.SuccessCount
}

// SuccessRate returns the percentage of successful queries.
func (s Summary) SuccessRate() float64 {
	if s.QueryCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.QueryCount) * 100
}

// ConfigResult is the outcome of benchmarking one preset.
type ConfigResult struct {
	Preset    appconfig.Preset `json:"preset"`
	StartedAt time.Time        `json:"startedAt"`
	Results   []query.Result   `json:"results"`
	Summary   Summary          `json:"summary"`
}

// Skipped names a preset whose queries never ran.
type Skipped struct {
	Preset appconfig.Preset `json:"preset"`
	Reason string           `json:"reason"`
}

// Run is the outcome of a whole benchmark run.
type Run struct {
	StartedAt      time.Time      `json:"startedAt"`
	FinishedAt     time.Time      `json:"finishedAt"`
	Queries        []string       `json:"queries"`
	Configurations []ConfigResult `json:"configurations"`
	Skipped        []Skipped      `json:"skipped,omitempty"`
}
