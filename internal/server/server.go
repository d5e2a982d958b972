// Package server owns the lifecycle of the mock inference server process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/mwiater/mockbench/internal/logging"
)

var (
	// ErrNotReady is returned when the server does not accept connections in time.
	ErrNotReady = errors.New("server not ready")
	// ErrPortBusy is returned when the port is still bound after teardown.
	ErrPortBusy = errors.New("port still bound after teardown")
)

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = time.Second
	dialTimeout    = 500 * time.Millisecond
	portFreeWait   = 2 * time.Second
)

// Controller starts and tears down the server process.
type Controller struct {
	Command      []string
	Dir          string
	Env          []string
	Host         string
	Port         int
	LogPath      string
	StartTimeout time.Duration
	StopGrace    time.Duration
	Settle       time.Duration

	// KillListeners force-kills whatever listens on port. Defaults to an lsof lookup.
	KillListeners func(ctx context.Context, port int) error
}

// Addr returns host:port of the server.
func (c *Controller) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Handle is a running server process. Stop must be called exactly once the
// caller is done with it; extra calls are no-ops.
type Handle struct {
	ctrl    *Controller
	cmd     *exec.Cmd
	logFile *os.File
	done    chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

// Start launches the server in its own process group and waits until its
// port accepts connections. On failure the process is stopped before returning.
func (c *Controller) Start(ctx context.Context) (*Handle, error) {
	if len(c.Command) == 0 || c.Command[0] == "" {
		return nil, fmt.Errorf("server command is empty")
	}

	cmd := exec.Command(c.Command[0], c.Command[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	setProcessGroup(cmd)

	h := &Handle{ctrl: c, cmd: cmd, done: make(chan struct{})}
	if c.LogPath != "" {
		if dir := filepath.Dir(c.LogPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create server log dir: %w", err)
			}
		}
		f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open server log: %w", err)
		}
		h.logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		h.closeLog()
		return nil, fmt.Errorf("start server: %w", err)
	}
	logging.LogDebug("server started: cmd=%v pid=%d", c.Command, cmd.Process.Pid)

	go func() {
		h.waitErr = cmd.Wait()
		close(h.done)
	}()

	if err := WaitReady(ctx, c.Addr(), c.StartTimeout, h.done); err != nil {
		if stopErr := h.Stop(context.Background()); stopErr != nil {
			logging.LogDebug("cleanup after failed start: %v", stopErr)
		}
		return nil, err
	}
	return h, nil
}

// PID returns the process id of the server.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Exited reports whether the server process has terminated.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Stop terminates the process group, escalating to SIGKILL after the grace
// period, and then releases the port.
func (h *Handle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		h.stopErr = h.stop(ctx)
	})
	return h.stopErr
}

func (h *Handle) stop(ctx context.Context) error {
	pid := h.cmd.Process.Pid
	if !h.Exited() {
		if err := terminateGroup(h.cmd); err != nil {
			logging.LogDebug("terminate pid %d: %v", pid, err)
		}
		select {
		case <-h.done:
		case <-time.After(h.ctrl.StopGrace):
			logging.LogDebug("server pid %d ignored SIGTERM for %s, killing", pid, h.ctrl.StopGrace)
			_ = killGroup(h.cmd)
			<-h.done
		case <-ctx.Done():
			_ = killGroup(h.cmd)
			<-h.done
		}
	}
	h.closeLog()
	logging.LogDebug("server stopped: pid=%d exit=%v", pid, h.waitErr)
	return h.ctrl.Release(ctx)
}

func (h *Handle) closeLog() {
	if h.logFile != nil {
		_ = h.logFile.Close()
		h.logFile = nil
	}
}

// Release force-kills anything still listening on the port, waits for the
// settle delay and verifies the port is free. It is a no-op when nothing runs.
func (c *Controller) Release(ctx context.Context) error {
	kill := c.KillListeners
	if kill == nil {
		kill = killPortListeners
	}
	if err := kill(ctx, c.Port); err != nil {
		logging.LogDebug("kill listeners on port %d: %v", c.Port, err)
	}

	if err := sleep(ctx, c.Settle); err != nil {
		return err
	}

	if !waitPortFree(ctx, c.Addr(), portFreeWait) {
		return fmt.Errorf("%w: %s", ErrPortBusy, c.Addr())
	}
	return nil
}

// WaitReady polls addr with exponential backoff until a TCP connection
// succeeds, the timeout elapses, ctx ends or exited is closed.
func WaitReady(ctx context.Context, addr string, timeout time.Duration, exited <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := net.Dialer{Timeout: dialTimeout}
	delay := initialBackoff
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s not listening after %s", ErrNotReady, addr, timeout)
		case <-exited:
			return fmt.Errorf("%w: process exited before %s was listening", ErrNotReady, addr)
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

// Listening reports whether addr currently accepts TCP connections.
func Listening(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func waitPortFree(ctx context.Context, addr string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	delay := initialBackoff
	for {
		if !Listening(addr) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if err := sleep(ctx, delay); err != nil {
			return false
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
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
