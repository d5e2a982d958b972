// Package report writes the flat text report and the JSON export of a run.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mwiater/mockbench/internal/appconfig"
	"github.com/mwiater/mockbench/internal/benchmark"
	"github.com/mwiater/mockbench/internal/util"
)

const (
	rule     = "============================================================"
	wideRule = "================================================================================"
	thinRule = "--------------------------------------------------------------------------------"

	queryWidth = 36
)

// Report appends human-readable blocks to a text file.
type Report struct {
	Path string
}

// New truncates path and writes the run header.
func New(path string, presets []appconfig.Preset, queries []string) (*Report, error) {
	var b strings.Builder
	fmt.Fprintln(&b, "Mock Engine Benchmark Results")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Queries per configuration: %d\n", len(queries))
	fmt.Fprintln(&b, "Configurations:")
	for _, p := range presets {
		fmt.Fprintf(&b, "  - %s\n", p)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return nil, fmt.Errorf("create report %s: %w", path, err)
	}
	return &Report{Path: path}, nil
}

// AppendConfiguration appends the summary block of one configuration.
func (r *Report) AppendConfiguration(res benchmark.ConfigResult) error {
	s := res.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintf(&b, "Configuration: %s (prefill=%d, decode=%d)\n", res.Preset.Name, res.Preset.Prefill, res.Preset.Decode)
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "Successful queries: %d/%d\n", s.SuccessCount, s.QueryCount)

	if !s.HasTimings() {
		fmt.Fprintln(&b, "Result: all queries failed")
	} else {
		fmt.Fprintf(&b, "Average time:  %.3fs\n", s.Average)
		fmt.Fprintf(&b, "Min time:      %.3fs\n", s.Min)
		fmt.Fprintf(&b, "Max time:      %.3fs\n", s.Max)
		fmt.Fprintf(&b, "Total time:    %.3fs\n", s.Total)
		fmt.Fprintf(&b, "Median time:   %.3fs\n", s.Median)
		fmt.Fprintf(&b, "Std deviation: %.3fs\n", s.StdDev)
		fmt.Fprintf(&b, "Queries/min:   %.1f\n", s.QueriesPerMinute)
		if s.APIAverage != nil && s.OverheadAverage != nil {
			fmt.Fprintf(&b, "API time:      %.3fs\n", *s.APIAverage)
			fmt.Fprintf(&b, "Overhead:      %.3fs\n", *s.OverheadAverage)
		}
	}

	for _, q := range res.Results {
		name := util.TruncateRunes(q.Query, queryWidth)
		if q.Success {
			fmt.Fprintf(&b, "  [%d] %-*s %.3fs\n", q.Index, queryWidth+1, name, q.ElapsedSeconds)
		} else {
			fmt.Fprintf(&b, "  [%d] %-*s FAILED (%s)\n", q.Index, queryWidth+1, name, q.Error)
		}
	}
	return r.append(b.String())
}

// AppendComparison appends a table of every configuration with timings,
// the fastest configuration and its speedup over the slowest.
func (r *Report) AppendComparison(results []benchmark.ConfigResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nBENCHMARK COMPARISON\n%s\n", wideRule, wideRule)
	fmt.Fprintf(&b, "%-15s %-10s %-10s %-12s %-12s %s\n", "Config", "Prefill", "Decode", "Avg Time", "Total Time", "Success")
	fmt.Fprintln(&b, thinRule)
	for _, res := range results {
		s := res.Summary
		if !s.HasTimings() {
			fmt.Fprintf(&b, "%-15s %-10d %-10d %-12s %-12s %d/%d\n", res.Preset.Name, res.Preset.Prefill, res.Preset.Decode, "-", "-", s.SuccessCount, s.QueryCount)
			continue
		}
		fmt.Fprintf(&b, "%-15s %-10d %-10d %-12s %-12s %d/%d\n", res.Preset.Name, res.Preset.Prefill, res.Preset.Decode,
			fmt.Sprintf("%.3fs", s.Average), fmt.Sprintf("%.3fs", s.Total), s.SuccessCount, s.QueryCount)
	}

	c, ok := Compare(results)
	if !ok {
		fmt.Fprintln(&b, "\nNo configuration completed a query.")
	} else {
		fmt.Fprintf(&b, "\nFastest config: %s (avg: %.3fs)\n", c.Fastest.Preset.Name, c.Fastest.Summary.Average)
		fmt.Fprintf(&b, "Speedup: %.2fx faster than slowest (%s)\n", c.Speedup, c.Slowest.Preset.Name)
	}
	return r.append(b.String())
}

// Print copies the report file to w.
func (r *Report) Print(w io.Writer) error {
	f, err := os.Open(r.Path)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("print report: %w", err)
	}
	return nil
}

func (r *Report) append(text string) error {
	f, err := os.OpenFile(r.Path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("append report: %w", err)
	}
	return f.Close()
}

// Comparison ranks the configurations that have timings by average time.
type Comparison struct {
	Fastest benchmark.ConfigResult
	Slowest benchmark.ConfigResult
	Speedup float64
}

// Compare returns the fastest and slowest configurations. ok is false when
// no configuration has a successful query.
func Compare(results []benchmark.ConfigResult) (c Comparison, ok bool) {
	for _, res := range results {
		if !res.Summary.HasTimings() {
			continue
		}
		if !ok {
			c.Fastest, c.Slowest, ok = res, res, true
			continue
		}
		if res.Summary.Average < c.Fastest.Summary.Average {
			c.Fastest = res
		}
		if res.Summary.Average > c.Slowest.Summary.Average {
			c.Slowest = res
		}
	}
	if ok && c.Fastest.Summary.Average > 0 {
		c.Speedup = c.Slowest.Summary.Average / c.Fastest.Summary.Average
	}
	return c, ok
}

// ExportJSON writes run to path as indented JSON.
func ExportJSON(path string, run benchmark.Run) error {
	data, err := sonic.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export %s: %w", path, err)
	}
	return nil
}
