package appconfig

import (
	"fmt"
	"io"

	"github.com/k0kubun/pp"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	if cfg == nil {
		fmt.Fprintln(out, "configuration is not initialized")
		return
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Debug:          %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Client:         %s %v\n", cfg.ClientCommand, cfg.ClientArgs)
	fmt.Fprintf(out, "  Server:         %v (script %s)\n", cfg.ServerCommand, cfg.ServerScript)
	fmt.Fprintf(out, "  Listen:         %s\n", cfg.Addr())
	fmt.Fprintf(out, "  Base URL:       %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  Target file:    %s (%s, %s)\n", cfg.TargetFile, cfg.PrefillName, cfg.DecodeName)
	fmt.Fprintf(out, "  Query timeout:  %s\n", cfg.QueryTimeout())
	fmt.Fprintf(out, "  Start timeout:  %s\n", cfg.StartTimeout())
	fmt.Fprintf(out, "  Report:         %s\n", cfg.ReportPath)
	fmt.Fprintln(out, "  Presets:")
	pp.ColoringEnabled = false
	pp.Fprintln(out, cfg.Presets)
}
