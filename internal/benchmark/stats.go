package benchmark

import (
	"math"
	"sort"

	"github.com/mwiater/mockbench/internal/query"
)

// Summarize computes the statistics of a configuration over its successful queries.
func Summarize(results []query.Result) Summary {
	s := Summary{QueryCount: len(results)}

	var times []float64
	var apiSum, overheadSum float64
	var apiCount int
	for _, r := range results {
		if !r.Success {
			continue
		}
		times = append(times, r.ElapsedSeconds)
		if r.APISeconds != nil {
			apiSum += *r.APISeconds
			overheadSum += r.ElapsedSeconds - *r.APISeconds
			apiCount++
		}
	}

	s.SuccessCount = len(times)
	if s.SuccessCount == 0 {
		return s
	}

	s.Min = times[0]
	s.Max = times[0]
	for _, t := range times {
		s.Total += t
		if t < s.Min {
			s.Min = t
		}
		if t > s.Max {
			s.Max = t
		}
	}

	count := float64(s.SuccessCount)
	s.Average = s.Total / count
	s.Median = median(times)
	if s.SuccessCount > 1 {
		var sq float64
		for _, t := range times {
			sq += (t - s.Average) * (t - s.Average)
		}
		s.StdDev = math.Sqrt(sq / (count - 1))
	}
	if s.Average > 0 {
		s.QueriesPerMinute = 60 / s.Average
	}

	if apiCount > 0 {
		api := apiSum / float64(apiCount)
		overhead := overheadSum / float64(apiCount)
		s.APIAverage = &api
		s.OverheadAverage = &overhead
	}
	return s
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
