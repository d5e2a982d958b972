// Package query runs benchmark prompts through the external client CLI.
package query

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/mwiater/mockbench/internal/util"
)

const (
	// EnvBaseURL points the client at the local server.
	EnvBaseURL = "OPENAI_BASE_URL"
	// EnvAPIKey is the key the client presents to the local server.
	EnvAPIKey = "OPENAI_API_KEY"

	stderrTail = 200
)

// Result is the outcome of a single query.
type Result struct {
	Index          int      `json:"index"`
	Query          string   `json:"query"`
	ElapsedSeconds float64  `json:"elapsedSeconds"`
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
	OutputBytes    int      `json:"outputBytes"`
	APISeconds     *float64 `json:"apiSeconds,omitempty"`
}

// Client sends one prompt and reports how it went.
type Client interface {
	Run(ctx context.Context, prompt string) Result
}

// CLIClient invokes an external command as `Command Args... prompt`.
type CLIClient struct {
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration
}

// ClientEnv returns the variables that point the client at baseURL.
func ClientEnv(baseURL, apiKey string) []string {
	return []string{EnvBaseURL + "=" + baseURL, EnvAPIKey + "=" + apiKey}
}

// Run executes the client and measures wall-clock time around it. A nonzero
// exit status or a timeout marks the result as failed.
func (c *CLIClient) Run(ctx context.Context, prompt string) Result {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.Args...), prompt)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Seconds()

	res := Result{Query: prompt, ElapsedSeconds: elapsed, OutputBytes: stdout.Len()}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Error = "timeout"
	case err != nil:
		res.Error = describeFailure(err, stderr.String())
	default:
		res.Success = true
	}
	return res
}

func describeFailure(err error, stderr string) string {
	msg := err.Error()
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		msg = fmt.Sprintf("exit status %d", ee.ExitCode())
	}
	stderr = util.OneLine(stderr)
	if stderr == "" {
		return msg
	}
	return msg + ": " + util.TailRunes(stderr, stderrTail)
}
