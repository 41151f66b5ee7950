package cli

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wireloop/internal/config"
	"wireloop/internal/models"
	"wireloop/internal/reporter"
	"wireloop/internal/runloop"
	"wireloop/internal/telemetry"
)

// RunOptions holds the "run" subcommand's own flags, layered over the
// loaded config.Config.
type RunOptions struct {
	Interface  string
	PcapInput  string
	PcapOutput string
	WatchDir   string
	NoWatchdog bool
}

// NewRunCommand builds "wireloop run".
func NewRunCommand(root *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the run loop against a live interface or trace file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunLoop(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Interface, "interface", "i", "", "live capture interface")
	cmd.Flags().StringVarP(&opts.PcapInput, "read", "r", "", "trace file to replay")
	cmd.Flags().StringVarP(&opts.PcapOutput, "write", "w", "", "trace file to write every seen packet to")
	cmd.Flags().StringVar(&opts.WatchDir, "watch-dir", "", "directory to watch for new trace files")
	cmd.Flags().BoolVar(&opts.NoWatchdog, "no-watchdog", false, "disable the liveness watchdog")

	return cmd
}

func runRunLoop(ctx context.Context, root *RootOptions, opts *RunOptions) error {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Interface != "" {
		cfg.Interface = opts.Interface
	}
	if opts.PcapInput != "" {
		cfg.PcapInput = opts.PcapInput
	}
	if opts.PcapOutput != "" {
		cfg.PcapOutput = opts.PcapOutput
	}
	if opts.WatchDir != "" {
		cfg.WatchDir = opts.WatchDir
	}
	if opts.NoWatchdog {
		cfg.DoWatchdog = false
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if root.Verbose {
		level = zerolog.DebugLevel
	}
	rep := reporter.New(os.Stderr, level)

	metrics, err := telemetry.New(os.Stderr, 30*time.Second)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize metrics", err)
	}
	defer metrics.Shutdown(ctx)

	runner := runloop.New(cfg, rep, metrics)
	runner.Session.OnPacketSeen(func(t float64, info models.PacketInfo) {
		rep.Debug("packet seen", map[string]any{
			"protocol": info.Protocol,
			"src":      info.SrcAddr,
			"dst":      info.DstAddr,
			"info":     info.Info,
			"flow_id":  info.FlowID,
		})
	})
	if err := runner.Init(); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize run loop", err)
	}

	if err := runner.Run(ctx); err != nil {
		return WrapExitError(ExitRunFailure, "run loop exited abnormally", err)
	}
	return nil
}
