package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Len(t, cfg.Presets, 4)
	require.Len(t, cfg.Queries, 10)
	assert.Equal(t, "qwen", cfg.ClientCommand)
	assert.Equal(t, []string{"-p"}, cfg.ClientArgs)
	assert.Equal(t, []string{"python3", "mock_engine.py"}, cfg.ServerCommand)
	assert.Equal(t, "mock_engine.py", cfg.TargetFile)
	assert.Equal(t, "http://localhost:8000/v1", cfg.BaseURL)
	assert.Equal(t, "mock-key", cfg.APIKey)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr())
	assert.Equal(t, 10*time.Second, cfg.QueryTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.QueryDelay())
	assert.Equal(t, 2*time.Second, cfg.StopGrace())
	assert.Equal(t, "mockbench.log", cfg.LogFilePath())
	require.NoError(t, cfg.Validate())

	var fast Preset
	for _, p := range cfg.Presets {
		if p.Name == "Fast_100K" {
			fast = p
		}
	}
	assert.Equal(t, Preset{Name: "Fast_100K", Prefill: 100000, Decode: 100000}, fast)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		ClientCommand:    "mycli",
		ServerCommand:    []string{"./dist/mockengine"},
		Port:             9100,
		QueryDelayMillis: -1,
		SettleMillis:     -1,
		Presets:          []Preset{{Name: "Only", Prefill: 1, Decode: 2}},
	}
	cfg.ApplyDefaults()

	assert.Equal(t, "mycli", cfg.ClientCommand)
	assert.Empty(t, cfg.ClientArgs)
	assert.Equal(t, []string{"./dist/mockengine"}, cfg.ServerCommand)
	assert.Equal(t, "http://localhost:9100/v1", cfg.BaseURL)
	assert.Equal(t, time.Duration(0), cfg.QueryDelay())
	assert.Equal(t, time.Duration(0), cfg.Settle())
	assert.Len(t, cfg.Presets, 1)
}

func TestValidateRejectsBadPresets(t *testing.T) {
	cfg := Default()
	cfg.Presets = []Preset{{Name: "A", Prefill: 1, Decode: 1}, {Name: "A", Prefill: 2, Decode: 2}}
	assert.Error(t, cfg.Validate())

	cfg.Presets = []Preset{{Name: "", Prefill: 1, Decode: 1}}
	assert.Error(t, cfg.Validate())

	cfg.Presets = []Preset{{Name: "Zero", Prefill: 0, Decode: 1}}
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.DecodeName = cfg.PrefillName
	assert.Error(t, cfg.Validate())
}

func TestValidateJSON(t *testing.T) {
	valid := `{
  "clientCommand": "qwen",
  "port": 8000,
  "presets": [{"name": "Fast_100K", "prefill": 100000, "decode": 100000}]
}`
	require.NoError(t, ValidateJSON([]byte(valid)))

	err := ValidateJSON([]byte(`{"presets": [{"name": "x", "prefill": 0, "decode": 1}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")

	assert.Error(t, ValidateJSON([]byte(`{"unknownKey": true}`)))
	assert.Error(t, ValidateJSON([]byte(`{"port": 70000}`)))
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"debug": true}`), 0o644))
	require.NoError(t, ValidateFile(good))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"port": "eight"}`), 0o644))
	err := ValidateFile(bad)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), bad))

	yml := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("port: eight\n"), 0o644))
	assert.NoError(t, ValidateFile(yml))
}

func TestShowConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	ShowConfig(&buf, "", &cfg)

	out := buf.String()
	assert.Contains(t, out, "No config file loaded")
	assert.Contains(t, out, "127.0.0.1:8000")
	assert.Contains(t, out, "Fast_100K")

	buf.Reset()
	ShowConfig(&buf, "config/config.json", nil)
	assert.Contains(t, buf.String(), "configuration is not initialized")
}
