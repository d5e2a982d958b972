package mockbench

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/mwiater/mockbench/internal/appconfig"
	"github.com/mwiater/mockbench/internal/benchmark"
	"github.com/mwiater/mockbench/internal/logging"
	"github.com/mwiater/mockbench/internal/report"
	"github.com/mwiater/mockbench/internal/server"
	"github.com/mwiater/mockbench/internal/speed"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✅")
	failMark = color.New(color.FgRed).Sprint("❌")
	warnMark = color.New(color.FgYellow).Sprint("⚠️")
)

// errReported marks an error whose message was already printed.
var errReported = errors.New("reported")

type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }

func (e reportedError) Unwrap() []error { return []error{e.err, errReported} }

func reported(err error) error { return reportedError{err: err} }

// newRunner is replaced in tests.
var newRunner = func(cfg *appconfig.Config, rec benchmark.Recorder, out io.Writer) runner {
	return benchmark.NewRunner(cfg, rec, out)
}

type runner interface {
	Run(ctx context.Context) (benchmark.Run, error)
}

// runBenchmark checks the environment, benchmarks every preset and writes
// the report. The speed target is restored from its backup on every path.
func runBenchmark(ctx context.Context, cfg *appconfig.Config, out io.Writer) (err error) {
	if cfg == nil {
		return errors.New("configuration is not initialized")
	}

	fmt.Fprintln(out, "🚀 Mock Engine Benchmark Tool")
	fmt.Fprintln(out, "============================================================")

	if err := checkEnvironment(*cfg, out); err != nil {
		return err
	}

	backup, err := speed.Backup(cfg.TargetFile)
	if err != nil {
		return fmt.Errorf("back up %s: %w", cfg.TargetFile, err)
	}
	logging.LogEvent("backed up %s to %s", cfg.TargetFile, backup)
	defer func() {
		restored, restoreErr := speed.Restore(cfg.TargetFile)
		switch {
		case restoreErr != nil:
			logging.LogError(restoreErr, "restore %s", cfg.TargetFile)
			if err == nil {
				err = fmt.Errorf("restore %s: %w", cfg.TargetFile, restoreErr)
			}
		case restored:
			fmt.Fprintf(out, "♻️  Restored %s\n", cfg.TargetFile)
		}
	}()

	rep, err := report.New(cfg.ReportPath, cfg.Presets, cfg.Queries)
	if err != nil {
		return err
	}

	run, runErr := newRunner(cfg, rep, out).Run(ctx)
	if runErr != nil {
		logging.LogError(runErr, "benchmark aborted")
		fmt.Fprintf(out, "\n%s Benchmark aborted: %v\n", failMark, runErr)
		if errors.Is(runErr, server.ErrPortBusy) {
			fmt.Fprintf(out, "   Port %d is still in use; stop whatever is listening there and rerun.\n", cfg.Port)
		}
	}

	for _, s := range run.Skipped {
		fmt.Fprintf(out, "%s Skipped %s: %s\n", warnMark, s.Preset.Name, s.Reason)
	}

	if err := rep.AppendComparison(run.Configurations); err != nil {
		return errors.Join(runErr, err)
	}
	if cfg.ExportPath != "" {
		if err := report.ExportJSON(cfg.ExportPath, run); err != nil {
			return errors.Join(runErr, err)
		}
		fmt.Fprintf(out, "💾 Results saved to: %s\n", cfg.ExportPath)
	}

	fmt.Fprintln(out)
	if err := rep.Print(out); err != nil {
		return errors.Join(runErr, err)
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, report.RenderComparison(run.Configurations))
	fmt.Fprintf(out, "\n📄 Report written to: %s\n", cfg.ReportPath)

	if runErr != nil {
		return reported(runErr)
	}
	fmt.Fprintln(out, "\n✨ Benchmark complete!")
	return nil
}

// checkEnvironment prints the outcome of the environment check.
func checkEnvironment(cfg appconfig.Config, out io.Writer) error {
	if err := benchmark.CheckEnvironment(cfg); err != nil {
		fmt.Fprintf(out, "%s Error: %v\n", failMark, err)
		return reported(err)
	}
	fmt.Fprintf(out, "%s Environment check passed\n", okMark)
	if server.Listening(cfg.Addr()) {
		fmt.Fprintf(out, "%s Something is already listening on %s; it will be stopped before the first configuration.\n", warnMark, cfg.Addr())
	}
	return nil
}
