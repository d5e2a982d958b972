package benchmark

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/mwiater/mockbench/internal/appconfig"
)

// MissingError reports a prerequisite that is not available.
type MissingError struct {
	Kind string
	Name string
	Err  error
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("required %s %q not found: %v", e.Kind, e.Name, e.Err)
}

func (e *MissingError) Unwrap() error { return e.Err }

// CheckEnvironment verifies the client command is on PATH and that the
// server script and speed target exist. It returns the first missing item.
func CheckEnvironment(cfg appconfig.Config) error {
	if _, err := exec.LookPath(cfg.ClientCommand); err != nil {
		return &MissingError{Kind: "command", Name: cfg.ClientCommand, Err: err}
	}
	if cfg.ServerDir == "" && len(cfg.ServerCommand) > 0 {
		if _, err := exec.LookPath(cfg.ServerCommand[0]); err != nil {
			return &MissingError{Kind: "command", Name: cfg.ServerCommand[0], Err: err}
		}
	}

	files := []string{cfg.ServerScript}
	if cfg.TargetFile != cfg.ServerScript {
		files = append(files, cfg.TargetFile)
	}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return &MissingError{Kind: "file", Name: f, Err: err}
		}
		if info.IsDir() {
			return &MissingError{Kind: "file", Name: f, Err: fmt.Errorf("is a directory")}
		}
	}
	return nil
}
