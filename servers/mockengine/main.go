// main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwiater/mockbench/internal/logging"
	"github.com/mwiater/mockbench/internal/mockengine"
)

func main() {
	if err := run(); err != nil {
		logging.LogError(err, "mock engine")
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := mockengine.LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := logging.Init("", cfg.Debug); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Close()

	engine, err := mockengine.LoadEngine(cfg.ConfigPath)
	if err != nil {
		return err
	}
	return mockengine.Serve(ctx, cfg, engine, logging.Logger())
}
