package benchmark

import (
	"testing"

	"github.com/mwiater/mockbench/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(elapsed float64) query.Result { return query.Result{Success: true, ElapsedSeconds: elapsed} }

func failed(elapsed float64) query.Result {
	return query.Result{ElapsedSeconds: elapsed, Error: "timeout"}
}

func TestSummarizeExcludesFailures(t *testing.T) {
	s := Summarize([]query.Result{ok(2), failed(10), ok(1), ok(3), failed(0.01)})

	assert.Equal(t, 5, s.QueryCount)
	assert.Equal(t, 3, s.SuccessCount)
	assert.Equal(t, 2, s.FailedCount())
	assert.InDelta(t, 6.0, s.Total, 1e-9)
	assert.InDelta(t, 2.0, s.Average, 1e-9)
	assert.InDelta(t, 1.0, s.Min, 1e-9)
	assert.InDelta(t, 3.0, s.Max, 1e-9)
	assert.InDelta(t, 2.0, s.Median, 1e-9)
	assert.InDelta(t, 1.0, s.StdDev, 1e-9)
	assert.InDelta(t, 30.0, s.QueriesPerMinute, 1e-9)
	assert.InDelta(t, 60.0, s.SuccessRate(), 1e-9)
	assert.Nil(t, s.APIAverage)
}

func TestSummarizeNoSuccesses(t *testing.T) {
	s := Summarize([]query.Result{failed(1), failed(2)})

	assert.False(t, s.HasTimings())
	assert.Equal(t, Summary{QueryCount: 2}, s)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, Summary{}, s)
	assert.Zero(t, s.SuccessRate())
}

func TestSummarizeEvenMedianAndSingleStdDev(t *testing.T) {
	s := Summarize([]query.Result{ok(4), ok(1), ok(3), ok(2)})
	assert.InDelta(t, 2.5, s.Median, 1e-9)

	single := Summarize([]query.Result{ok(1.5)})
	assert.Zero(t, single.StdDev)
	assert.InDelta(t, 1.5, single.Min, 1e-9)
	assert.InDelta(t, 1.5, single.Max, 1e-9)
}

func TestSummarizeAPITime(t *testing.T) {
	api := 0.5
	withAPI := ok(2)
	withAPI.APISeconds = &api
	failedWithAPI := failed(1)
	failedWithAPI.APISeconds = &api

	s := Summarize([]query.Result{withAPI, ok(4), failedWithAPI})
	require.NotNil(t, s.APIAverage)
	require.NotNil(t, s.OverheadAverage)
	assert.InDelta(t, 0.5, *s.APIAverage, 1e-9)
	assert.InDelta(t, 1.5, *s.OverheadAverage, 1e-9)
}
