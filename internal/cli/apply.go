package mockbench

import (
	"fmt"
	"io"

	"github.com/mwiater/mockbench/internal/appconfig"
	"github.com/mwiater/mockbench/internal/speed"
	"github.com/spf13/cobra"
)

var (
	applyPrefill int
	applyDecode  int
	applyPreset  string
)

// applyCmd rewrites the speed target without starting the server.
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Write prefill/decode rates into the speed target file",
	Long: `Rewrite the prefill and decode assignments of the configured target file.
Either pass both --prefill and --decode or name a configured --preset.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := resolveSpeeds(GetConfig(), applyPreset, applyPrefill, applyDecode)
		if err != nil {
			return err
		}
		return runApply(GetConfig(), s, cmd.OutOrStdout())
	},
}

func init() {
	applyCmd.Flags().IntVar(&applyPrefill, "prefill", 0, "prefill tokens per second")
	applyCmd.Flags().IntVar(&applyDecode, "decode", 0, "decode tokens per second")
	applyCmd.Flags().StringVar(&applyPreset, "preset", "", "use the rates of a configured preset")
	applyCmd.MarkFlagsMutuallyExclusive("preset", "prefill")
	applyCmd.MarkFlagsMutuallyExclusive("preset", "decode")
	applyCmd.MarkFlagsRequiredTogether("prefill", "decode")
	rootCmd.AddCommand(applyCmd)
}

func resolveSpeeds(cfg *appconfig.Config, preset string, prefill, decode int) (speed.Speeds, error) {
	if preset != "" {
		for _, p := range cfg.Presets {
			if p.Name == preset {
				return speed.Speeds{Prefill: p.Prefill, Decode: p.Decode}, nil
			}
		}
		return speed.Speeds{}, fmt.Errorf("unknown preset %q", preset)
	}
	if prefill <= 0 || decode <= 0 {
		return speed.Speeds{}, fmt.Errorf("--prefill and --decode must both be positive (or use --preset)")
	}
	return speed.Speeds{Prefill: prefill, Decode: decode}, nil
}

func runApply(cfg *appconfig.Config, s speed.Speeds, out io.Writer) error {
	target := speed.File{
		Path:  cfg.TargetFile,
		Names: speed.Names{Prefill: cfg.PrefillName, Decode: cfg.DecodeName},
	}
	if err := target.Apply(s); err != nil {
		return err
	}
	got, err := target.Read()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s Updated speeds: PREFILL=%d, DECODE=%d (%s)\n", okMark, got.Prefill, got.Decode, cfg.TargetFile)
	return nil
}
