//go:build unix

package server

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newTestController(port int, command ...string) (*Controller, *[]int) {
	var killed []int
	return &Controller{
		Command:      command,
		Host:         "127.0.0.1",
		Port:         port,
		StartTimeout: 2 * time.Second,
		StopGrace:    500 * time.Millisecond,
		Settle:       0,
		KillListeners: func(ctx context.Context, port int) error {
			killed = append(killed, port)
			return nil
		},
	}, &killed
}

func TestWaitReadySucceedsWhenListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = WaitReady(context.Background(), ln.Addr().String(), time.Second, nil)
	assert.NoError(t, err)
	assert.True(t, Listening(ln.Addr().String()))
}

func TestWaitReadyTimesOut(t *testing.T) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(freePort(t)))

	start := time.Now()
	err := WaitReady(context.Background(), addr, 300*time.Millisecond, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitReadyStopsWhenProcessExits(t *testing.T) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(freePort(t)))
	exited := make(chan struct{})
	close(exited)

	err := WaitReady(context.Background(), addr, 10*time.Second, exited)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.Contains(t, err.Error(), "exited")
}

func TestStartFailsWhenServerNeverListens(t *testing.T) {
	ctrl, killed := newTestController(freePort(t), "sh", "-c", "exit 3")

	h, err := ctrl.Start(context.Background())
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.Equal(t, []int{ctrl.Port}, *killed, "failed start must still release the port")
}

func TestStartRejectsEmptyCommand(t *testing.T) {
	ctrl, _ := newTestController(freePort(t))
	_, err := ctrl.Start(context.Background())
	assert.Error(t, err)
}

func TestStartAndStop(t *testing.T) {
	// the listener stands in for the server socket; the child just has to stay alive
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	ctrl, killed := newTestController(port, "sh", "-c", "sleep 30")
	h, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Greater(t, h.PID(), 0)
	assert.False(t, h.Exited())

	err = h.Stop(context.Background())
	assert.True(t, errors.Is(err, ErrPortBusy), "port held by the listener must be reported, got %v", err)
	assert.True(t, h.Exited())
	assert.Equal(t, []int{port}, *killed)

	// Stop is idempotent
	assert.Equal(t, err, h.Stop(context.Background()))

	require.NoError(t, ln.Close())
	assert.NoError(t, ctrl.Release(context.Background()))
}

func TestStopEscalatesToKill(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	ctrl, _ := newTestController(port, "sh", "-c", "trap '' TERM; while true; do sleep 1; done")
	ctrl.StopGrace = 200 * time.Millisecond
	h, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	start := time.Now()
	require.NoError(t, h.Stop(context.Background()))
	assert.True(t, h.Exited())
	assert.Less(t, time.Since(start), 5*time.Second)
}
