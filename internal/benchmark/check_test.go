package benchmark

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mwiater/mockbench/internal/appconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkConfig(t *testing.T) appconfig.Config {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "mock_engine.py")
	require.NoError(t, os.WriteFile(script, []byte("PREFILL_TOKENS_PER_SEC = 1\nDECODE_TOKENS_PER_SEC = 1\n"), 0o644))

	cfg := appconfig.Config{
		ClientCommand: "sh",
		ServerScript:  script,
		ServerCommand: []string{"sh", script},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestCheckEnvironmentOK(t *testing.T) {
	require.NoError(t, CheckEnvironment(checkConfig(t)))
}

func TestCheckEnvironmentMissingClient(t *testing.T) {
	cfg := checkConfig(t)
	cfg.ClientCommand = "definitely-not-a-real-client-binary"

	err := CheckEnvironment(cfg)
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "command", missing.Kind)
	assert.Equal(t, "definitely-not-a-real-client-binary", missing.Name)
}

func TestCheckEnvironmentMissingScript(t *testing.T) {
	cfg := checkConfig(t)
	cfg.ServerScript = filepath.Join(t.TempDir(), "absent.py")

	err := CheckEnvironment(cfg)
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "file", missing.Kind)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheckEnvironmentSeparateTarget(t *testing.T) {
	cfg := checkConfig(t)
	cfg.TargetFile = t.TempDir()

	err := CheckEnvironment(cfg)
	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, cfg.TargetFile, missing.Name)
}

func TestCheckEnvironmentMissingServerCommand(t *testing.T) {
	cfg := checkConfig(t)
	cfg.ServerCommand = []string{"no-such-interpreter-xyz", cfg.ServerScript}

	var missing *MissingError
	require.ErrorAs(t, CheckEnvironment(cfg), &missing)
	assert.Equal(t, "no-such-interpreter-xyz", missing.Name)
}
