// Package mockengine implements an OpenAI-compatible server that answers
// with canned reasoning traces after a simulated inference delay.
package mockengine

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.yaml.in/yaml/v3"
)

// DefaultConfigPath is where the engine looks for its speed settings.
const DefaultConfigPath = "servers/mockengine/mockengine.yml"

// Config holds the process settings, read from the environment.
type Config struct {
	Host            string        `env:"MOCKENGINE_HOST" envDefault:"127.0.0.1"`
	Port            int           `env:"MOCKENGINE_PORT" envDefault:"8000"`
	ConfigPath      string        `env:"MOCKENGINE_CONFIG" envDefault:"servers/mockengine/mockengine.yml"`
	ShutdownTimeout time.Duration `env:"MOCKENGINE_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	Debug           bool          `env:"MOCKENGINE_DEBUG"`
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadConfig parses the MOCKENGINE_* environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("MOCKENGINE_PORT %d out of range", cfg.Port)
	}
	return cfg, nil
}

// Engine holds the simulated inference characteristics. The benchmark
// harness rewrites the two rate lines of the YAML file between runs.
type Engine struct {
	PrefillTokensPerSec int     `yaml:"PREFILL_TOKENS_PER_SEC"`
	DecodeTokensPerSec  int     `yaml:"DECODE_TOKENS_PER_SEC"`
	BaseLatencyMillis   int     `yaml:"BASE_LATENCY_MS"`
	MaxDelaySeconds     float64 `yaml:"MAX_DELAY_SECONDS"`
	Model               string  `yaml:"MODEL"`
}

// DefaultEngine matches the rates of the reference engine.
func DefaultEngine() Engine {
	return Engine{
		PrefillTokensPerSec: 1000,
		DecodeTokensPerSec:  50,
		MaxDelaySeconds:     2.0,
		Model:               "qwen-coder",
	}
}

// LoadEngine reads the YAML engine file. Keys missing from the file keep
// their defaults.
func LoadEngine(path string) (Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, fmt.Errorf("read engine config: %w", err)
	}

	e := DefaultEngine()
	if err := yaml.Unmarshal(data, &e); err != nil {
		return Engine{}, fmt.Errorf("parse engine config %s: %w", path, err)
	}
	if err := e.Validate(); err != nil {
		return Engine{}, fmt.Errorf("engine config %s: %w", path, err)
	}
	return e, nil
}

// Validate rejects rates that cannot produce a delay.
func (e Engine) Validate() error {
	switch {
	case e.PrefillTokensPerSec <= 0:
		return fmt.Errorf("PREFILL_TOKENS_PER_SEC must be positive, got %d", e.PrefillTokensPerSec)
	case e.DecodeTokensPerSec <= 0:
		return fmt.Errorf("DECODE_TOKENS_PER_SEC must be positive, got %d", e.DecodeTokensPerSec)
	case e.BaseLatencyMillis < 0:
		return fmt.Errorf("BASE_LATENCY_MS must not be negative, got %d", e.BaseLatencyMillis)
	case e.MaxDelaySeconds < 0:
		return fmt.Errorf("MAX_DELAY_SECONDS must not be negative, got %g", e.MaxDelaySeconds)
	case strings.TrimSpace(e.Model) == "":
		return fmt.Errorf("MODEL must not be empty")
	}
	return nil
}

// MaxDelay is the cap on any simulated delay. Zero disables the cap.
func (e Engine) MaxDelay() time.Duration {
	return time.Duration(e.MaxDelaySeconds * float64(time.Second))
}

// PrefillDelay is the time spent reading promptTokens plus the base latency.
func (e Engine) PrefillDelay(promptTokens int) time.Duration {
	d := time.Duration(e.BaseLatencyMillis) * time.Millisecond
	d += time.Duration(float64(promptTokens) / float64(e.PrefillTokensPerSec) * float64(time.Second))
	return e.capped(d)
}

// Delay is the total simulated time to answer, capped at MaxDelay.
func (e Engine) Delay(promptTokens, completionTokens int) time.Duration {
	d := time.Duration(e.BaseLatencyMillis) * time.Millisecond
	d += time.Duration(float64(promptTokens) / float64(e.PrefillTokensPerSec) * float64(time.Second))
	d += time.Duration(float64(completionTokens) / float64(e.DecodeTokensPerSec) * float64(time.Second))
	return e.capped(d)
}

func (e Engine) capped(d time.Duration) time.Duration {
	if limit := e.MaxDelay(); limit > 0 && d > limit {
		return limit
	}
	return d
}
