//go:build windows

package server

import (
	"context"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func terminateGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func killGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

// TODO: look up listeners with netstat -ano so stray servers are freed on Windows too.
func killPortListeners(ctx context.Context, port int) error {
	return nil
}
