// Package benchmark drives the per-configuration benchmark loop.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mwiater/mockbench/internal/appconfig"
	"github.com/mwiater/mockbench/internal/logging"
	"github.com/mwiater/mockbench/internal/query"
	"github.com/mwiater/mockbench/internal/server"
	"github.com/mwiater/mockbench/internal/speed"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✅")
	failMark = color.New(color.FgRed).Sprint("❌")
	warnMark = color.New(color.FgYellow).Sprint("⚠️")
)

const separator = "============================================================"

// SpeedTarget writes a configuration's rates where the server reads them.
type SpeedTarget interface {
	Apply(s speed.Speeds) error
}

// Stopper releases a started server.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Lifecycle starts the server and frees its port.
type Lifecycle interface {
	Start(ctx context.Context) (Stopper, error)
	Release(ctx context.Context) error
}

// Recorder persists a finished configuration.
type Recorder interface {
	AppendConfiguration(res ConfigResult) error
}

// APIClock reports the server-side time of the last query.
type APIClock interface {
	Mark() error
	LastAPISeconds() (float64, bool, error)
}

// SkipError marks a configuration that could not be benchmarked. The run
// continues with the next configuration.
type SkipError struct {
	Preset appconfig.Preset
	Stage  string
	Err    error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("configuration %s skipped (%s): %v", e.Preset.Name, e.Stage, e.Err)
}

func (e *SkipError) Unwrap() error { return e.Err }

// Runner benchmarks each preset in turn against a freshly started server.
type Runner struct {
	Presets    []appconfig.Preset
	Queries    []string
	Speeds     SpeedTarget
	Server     Lifecycle
	Client     query.Client
	Recorder   Recorder
	Probe      func(ctx context.Context) error
	APIClock   APIClock
	QueryDelay time.Duration
	Out        io.Writer
}

// Run benchmarks every preset. Skipped configurations are collected in the
// returned Run; a fatal error stops the loop and is returned with the
// results gathered so far.
func (r *Runner) Run(ctx context.Context) (Run, error) {
	run := Run{StartedAt: time.Now(), Queries: append([]string(nil), r.Queries...)}
	defer func() { run.FinishedAt = time.Now() }()

	for _, preset := range r.Presets {
		if err := ctx.Err(); err != nil {
			run.FinishedAt = time.Now()
			return run, err
		}

		res, err := r.RunConfiguration(ctx, preset)
		var skip *SkipError
		switch {
		case errors.As(err, &skip):
			logging.LogEvent("%v", skip)
			fmt.Fprintf(r.out(), "%s %v\n", failMark, skip)
			run.Skipped = append(run.Skipped, Skipped{Preset: preset, Reason: skip.Error()})
		case err != nil:
			if res.Results != nil {
				run.Configurations = append(run.Configurations, res)
			}
			run.FinishedAt = time.Now()
			return run, err
		default:
			run.Configurations = append(run.Configurations, res)
		}
	}
	run.FinishedAt = time.Now()
	return run, nil
}

// RunConfiguration benchmarks a single preset: apply speeds, restart the
// server, run every query, record the summary and stop the server.
func (r *Runner) RunConfiguration(ctx context.Context, preset appconfig.Preset) (res ConfigResult, err error) {
	out := r.out()
	fmt.Fprintf(out, "\n%s\n🔧 Testing configuration: %s\n%s\n", separator, preset, separator)

	if err := r.Speeds.Apply(speed.Speeds{Prefill: preset.Prefill, Decode: preset.Decode}); err != nil {
		return res, &SkipError{Preset: preset, Stage: "apply speeds", Err: err}
	}
	fmt.Fprintf(out, "%s Updated speeds: PREFILL=%d, DECODE=%d\n", okMark, preset.Prefill, preset.Decode)

	if err := r.Server.Release(ctx); err != nil {
		return res, fmt.Errorf("free server port before %s: %w", preset.Name, err)
	}

	fmt.Fprintln(out, "🚀 Starting mock server...")
	handle, err := r.Server.Start(ctx)
	if err != nil {
		if relErr := r.Server.Release(context.WithoutCancel(ctx)); relErr != nil {
			return res, fmt.Errorf("free server port after failed start of %s: %w", preset.Name, relErr)
		}
		return res, &SkipError{Preset: preset, Stage: "start server", Err: err}
	}
	defer func() {
		fmt.Fprintln(out, "🛑 Stopping mock server...")
		if stopErr := handle.Stop(context.WithoutCancel(ctx)); stopErr != nil && err == nil {
			err = fmt.Errorf("stop server after %s: %w", preset.Name, stopErr)
		}
	}()
	fmt.Fprintf(out, "%s Server ready\n", okMark)

	if r.Probe != nil {
		if err := r.Probe(ctx); err != nil {
			return res, &SkipError{Preset: preset, Stage: "health check", Err: err}
		}
	}

	res = ConfigResult{Preset: preset, StartedAt: time.Now(), Results: make([]query.Result, 0, len(r.Queries))}
	res.Results, err = r.runQueries(ctx, preset)
	res.Summary = Summarize(res.Results)
	if err != nil {
		return res, err
	}
	printSummary(out, preset, res.Summary)

	if r.Recorder != nil {
		if err := r.Recorder.AppendConfiguration(res); err != nil {
			return res, fmt.Errorf("record %s: %w", preset.Name, err)
		}
	}
	return res, nil
}

func (r *Runner) runQueries(ctx context.Context, preset appconfig.Preset) ([]query.Result, error) {
	out := r.out()
	n := len(r.Queries)
	results := make([]query.Result, 0, n)

	fmt.Fprintf(out, "Running %d queries with %s config...\n", n, preset.Name)
	for i, q := range r.Queries {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		fmt.Fprintf(out, "  [%d/%d] Running: '%s'... ", i+1, n, q)
		if r.APIClock != nil {
			if err := r.APIClock.Mark(); err != nil {
				logging.LogDebug("mark server log: %v", err)
			}
		}

		logging.LogQuery("start", preset.Name, q, nil)
		qr := r.Client.Run(ctx, q)
		qr.Index = i + 1
		if qr.Success && r.APIClock != nil {
			if v, ok, err := r.APIClock.LastAPISeconds(); err != nil {
				logging.LogDebug("read server log: %v", err)
			} else if ok {
				qr.APISeconds = &v
			}
		}
		logging.LogQuery("done", preset.Name, q, qr)

		if qr.Success {
			fmt.Fprintf(out, "%s %.3fs\n", okMark, qr.ElapsedSeconds)
		} else {
			fmt.Fprintf(out, "%s Failed (%s)\n", failMark, qr.Error)
		}
		results = append(results, qr)

		if i < n-1 {
			if err := sleep(ctx, r.QueryDelay); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

func printSummary(out io.Writer, preset appconfig.Preset, s Summary) {
	fmt.Fprintf(out, "\n📊 Results for %s:\n", preset.Name)
	if !s.HasTimings() {
		fmt.Fprintf(out, "  %s All queries failed (0/%d)\n", warnMark, s.QueryCount)
		return
	}
	lines := []string{
		fmt.Sprintf("  Average time:  %.3fs", s.Average),
		fmt.Sprintf("  Min time:      %.3fs", s.Min),
		fmt.Sprintf("  Max time:      %.3fs", s.Max),
		fmt.Sprintf("  Total time:    %.3fs", s.Total),
		fmt.Sprintf("  Success rate:  %.1f%% (%d/%d)", s.SuccessRate(), s.SuccessCount, s.QueryCount),
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ServerLifecycle adapts a server.Controller to the Lifecycle interface.
func ServerLifecycle(c *server.Controller) Lifecycle {
	return controllerLifecycle{c}
}

type controllerLifecycle struct {
	c *server.Controller
}

func (l controllerLifecycle) Start(ctx context.Context) (Stopper, error) {
	h, err := l.c.Start(ctx)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (l controllerLifecycle) Release(ctx context.Context) error {
	return l.c.Release(ctx)
}
