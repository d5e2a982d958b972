// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// defaultQueryTimeout bounds a single client invocation.
	defaultQueryTimeout = 10 * time.Second
	// defaultQueryDelay is the pause between two consecutive queries.
	defaultQueryDelay = 100 * time.Millisecond
	// defaultStartTimeout bounds the wait for the server port to accept connections.
	defaultStartTimeout = 15 * time.Second
	// defaultStopGrace is how long a terminated server may take before it is killed.
	defaultStopGrace = 2 * time.Second
	// defaultSettle is the pause after teardown before the port is re-checked.
	defaultSettle = 500 * time.Millisecond
	defaultPort   = 8000
)

// Config represents the top-level application configuration.
type Config struct {
	Debug   bool   `json:"debug" mapstructure:"debug"`
	LogFile string `json:"logFile,omitempty" mapstructure:"logFile"`

	ReportPath string `json:"reportPath,omitempty" mapstructure:"reportPath"`
	ExportPath string `json:"export,omitempty" mapstructure:"export"`

	ClientCommand string   `json:"clientCommand,omitempty" mapstructure:"clientCommand"`
	ClientArgs    []string `json:"clientArgs,omitempty" mapstructure:"clientArgs"`
	BaseURL       string   `json:"baseURL,omitempty" mapstructure:"baseURL"`
	APIKey        string   `json:"apiKey,omitempty" mapstructure:"apiKey"`

	ServerScript  string   `json:"serverScript,omitempty" mapstructure:"serverScript"`
	ServerCommand []string `json:"serverCommand,omitempty" mapstructure:"serverCommand"`
	ServerDir     string   `json:"serverDir,omitempty" mapstructure:"serverDir"`
	ServerLog     string   `json:"serverLog,omitempty" mapstructure:"serverLog"`
	Host          string   `json:"host,omitempty" mapstructure:"host"`
	Port          int      `json:"port,omitempty" mapstructure:"port"`
	HealthCheck   bool     `json:"healthCheck" mapstructure:"healthCheck"`

	TargetFile  string `json:"targetFile,omitempty" mapstructure:"targetFile"`
	PrefillName string `json:"prefillName,omitempty" mapstructure:"prefillName"`
	DecodeName  string `json:"decodeName,omitempty" mapstructure:"decodeName"`

	QueryTimeoutSeconds int `json:"queryTimeout,omitempty" mapstructure:"queryTimeout"`
	QueryDelayMillis    int `json:"queryDelayMs,omitempty" mapstructure:"queryDelayMs"`
	StartTimeoutSeconds int `json:"startTimeout,omitempty" mapstructure:"startTimeout"`
	StopGraceSeconds    int `json:"stopGrace,omitempty" mapstructure:"stopGrace"`
	SettleMillis        int `json:"settleMs,omitempty" mapstructure:"settleMs"`

	Presets []Preset `json:"presets,omitempty" mapstructure:"presets"`
	Queries []string `json:"queries,omitempty" mapstructure:"queries"`

	ConfigPath string `json:"-" mapstructure:"-"`
}

// Preset is one (prefill, decode, name) triple under test.
type Preset struct {
	Name    string `json:"name" mapstructure:"name"`
	Prefill int    `json:"prefill" mapstructure:"prefill"`
	Decode  int    `json:"decode" mapstructure:"decode"`
}

func (p Preset) String() string {
	return fmt.Sprintf("%s (prefill=%d, decode=%d)", p.Name, p.Prefill, p.Decode)
}

// DefaultPresets returns the four configurations benchmarked when the config omits them.
func DefaultPresets() []Preset {
	return []Preset{
		{Name: "Slow", Prefill: 500, Decode: 25},
		{Name: "Baseline", Prefill: 1000, Decode: 50},
		{Name: "Fast_100K", Prefill: 100000, Decode: 100000},
		{Name: "Instant", Prefill: 10000000, Decode: 10000000},
	}
}

// DefaultQueries returns the fixed query set sent to the client for every configuration.
func DefaultQueries() []string {
	return []string{
		"search for class definitions",
		"find function declarations",
		"grep for import statements",
		"search for variable declarations",
		"find test functions",
		"grep for class methods",
		"search for error handlers",
		"find utility functions",
		"grep for constants",
		"search for API endpoints",
	}
}

// Default returns a Config populated with every default value.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every zero-valued field with its default.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.ReportPath) == "" {
		c.ReportPath = "benchmark_results.txt"
	}
	if strings.TrimSpace(c.ClientCommand) == "" {
		c.ClientCommand = "qwen"
		if len(c.ClientArgs) == 0 {
			c.ClientArgs = []string{"-p"}
		}
	}
	if strings.TrimSpace(c.ServerScript) == "" {
		c.ServerScript = "mock_engine.py"
	}
	if len(c.ServerCommand) == 0 {
		c.ServerCommand = []string{"python3", c.ServerScript}
	}
	if strings.TrimSpace(c.Host) == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port <= 0 {
		c.Port = defaultPort
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = fmt.Sprintf("http://localhost:%d/v1", c.Port)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		c.APIKey = "mock-key"
	}
	if strings.TrimSpace(c.TargetFile) == "" {
		c.TargetFile = c.ServerScript
	}
	if strings.TrimSpace(c.PrefillName) == "" {
		c.PrefillName = "PREFILL_TOKENS_PER_SEC"
	}
	if strings.TrimSpace(c.DecodeName) == "" {
		c.DecodeName = "DECODE_TOKENS_PER_SEC"
	}
	if len(c.Presets) == 0 {
		c.Presets = DefaultPresets()
	}
	if len(c.Queries) == 0 {
		c.Queries = DefaultQueries()
	}
}

// Validate reports configuration values that cannot produce a meaningful run.
func (c Config) Validate() error {
	if len(c.ServerCommand) == 0 || strings.TrimSpace(c.ServerCommand[0]) == "" {
		return fmt.Errorf("serverCommand must name an executable")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range (1..65535)", c.Port)
	}
	seen := make(map[string]struct{}, len(c.Presets))
	for _, p := range c.Presets {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("preset with prefill=%d decode=%d has no name", p.Prefill, p.Decode)
		}
		if p.Prefill <= 0 || p.Decode <= 0 {
			return fmt.Errorf("preset %q: rates must be positive", p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("preset %q defined twice", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	if c.PrefillName == c.DecodeName {
		return fmt.Errorf("prefillName and decodeName must differ")
	}
	return nil
}

// Addr returns the host:port the server is expected to listen on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// QueryTimeout returns the per-query timeout, falling back to the default if not specified.
func (c Config) QueryTimeout() time.Duration {
	if c.QueryTimeoutSeconds <= 0 {
		return defaultQueryTimeout
	}
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// QueryDelay returns the pause between queries. A negative value disables it.
func (c Config) QueryDelay() time.Duration {
	if c.QueryDelayMillis < 0 {
		return 0
	}
	if c.QueryDelayMillis == 0 {
		return defaultQueryDelay
	}
	return time.Duration(c.QueryDelayMillis) * time.Millisecond
}

// StartTimeout returns how long to wait for the server to accept connections.
func (c Config) StartTimeout() time.Duration {
	if c.StartTimeoutSeconds <= 0 {
		return defaultStartTimeout
	}
	return time.Duration(c.StartTimeoutSeconds) * time.Second
}

// StopGrace returns how long a terminated server may take to exit before it is killed.
func (c Config) StopGrace() time.Duration {
	if c.StopGraceSeconds <= 0 {
		return defaultStopGrace
	}
	return time.Duration(c.StopGraceSeconds) * time.Second
}

// Settle returns the pause after teardown before the port is checked again.
func (c Config) Settle() time.Duration {
	if c.SettleMillis < 0 {
		return 0
	}
	if c.SettleMillis == 0 {
		return defaultSettle
	}
	return time.Duration(c.SettleMillis) * time.Millisecond
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "mockbench.log"
}
