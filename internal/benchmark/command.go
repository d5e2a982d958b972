package benchmark

import (
	"context"
	"io"

	"github.com/mwiater/mockbench/internal/appconfig"
	"github.com/mwiater/mockbench/internal/logging"
	"github.com/mwiater/mockbench/internal/query"
	"github.com/mwiater/mockbench/internal/server"
	"github.com/mwiater/mockbench/internal/speed"
)

// NewRunner builds a Runner from cfg that drives the real server process and
// client binary. rec receives every finished configuration.
func NewRunner(cfg *appconfig.Config, rec Recorder, out io.Writer) *Runner {
	ctrl := &server.Controller{
		Command:      cfg.ServerCommand,
		Dir:          cfg.ServerDir,
		Host:         cfg.Host,
		Port:         cfg.Port,
		LogPath:      cfg.ServerLog,
		StartTimeout: cfg.StartTimeout(),
		StopGrace:    cfg.StopGrace(),
		Settle:       cfg.Settle(),
	}

	r := &Runner{
		Presets: cfg.Presets,
		Queries: cfg.Queries,
		Speeds: speed.File{
			Path:  cfg.TargetFile,
			Names: speed.Names{Prefill: cfg.PrefillName, Decode: cfg.DecodeName},
		},
		Server: ServerLifecycle(ctrl),
		Client: &query.CLIClient{
			Command: cfg.ClientCommand,
			Args:    cfg.ClientArgs,
			Env:     query.ClientEnv(cfg.BaseURL, cfg.APIKey),
			Timeout: cfg.QueryTimeout(),
		},
		Recorder:   rec,
		QueryDelay: cfg.QueryDelay(),
		Out:        out,
	}

	if cfg.ServerLog != "" {
		r.APIClock = &query.LogTail{Path: cfg.ServerLog}
	}
	if cfg.HealthCheck {
		baseURL, apiKey := cfg.BaseURL, cfg.APIKey
		r.Probe = func(ctx context.Context) error {
			models, err := query.Probe(ctx, baseURL, apiKey)
			if err != nil {
				return err
			}
			logging.LogDebug("server reports models %v", models)
			return nil
		}
	}
	return r
}
