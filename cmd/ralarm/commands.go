package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ralarm/internal/config"
	"ralarm/internal/logger"
	"ralarm/internal/processor"
	"ralarm/internal/series"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 5 * time.Second

type options struct {
	configPath  string
	logLevel    string
	alarmName   string
	metricsAddr string
	output      string
	hold        bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "ralarm",
		Short: "Evaluate M-out-of-N threshold alarms over recorded time series",
		Long: `ralarm replays recorded metric observations through threshold alarms
configured in YAML and reports the OK/ALARM state after every period.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "ralarm.yaml", "path to the alarm config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	replayCmd := &cobra.Command{
		Use:   "replay [--alarm NAME FILE | NAME=FILE...]",
		Short: "Replay CSV observations through configured alarms",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts, args)
		},
	}
	replayCmd.Flags().StringVarP(&opts.alarmName, "alarm", "a", "", "alarm to replay FILE through")
	replayCmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics, /health and /stats on this address")
	replayCmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	replayCmd.Flags().BoolVar(&opts.hold, "hold", false, "keep the metrics listener up after the replay until interrupted")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and list its alarms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the ralarm version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ralarm %s\n", version)
		},
	}

	rootCmd.AddCommand(replayCmd, checkCmd, versionCmd)
	return rootCmd
}

// loadConfig reads the config file and initializes the logger on the
// command's error stream.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	logger.InitWithWriter(cfg.LogLevel, cmd.ErrOrStderr())
	return cfg, nil
}

func runReplay(cmd *cobra.Command, opts *options, args []string) error {
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}

	inputs, err := readInputs(opts.alarmName, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := processor.New(cfg)
	if err := p.Start(); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := p.Shutdown(sctx); err != nil {
			log := logger.WithComponent("cli")
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	reports, err := p.Run(ctx, inputs)
	if err != nil {
		return err
	}
	if err := writeReports(cmd.OutOrStdout(), opts.output, reports); err != nil {
		return err
	}

	if opts.hold && p.Addr() != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "serving metrics on %s, interrupt to exit\n", p.Addr())
		<-ctx.Done()
	}
	return nil
}

// readInputs resolves the positional arguments. With --alarm exactly one
// file is expected; otherwise every argument is NAME=FILE.
func readInputs(alarmName string, args []string) ([]processor.Input, error) {
	if alarmName != "" {
		if len(args) != 1 {
			return nil, errors.New("--alarm takes exactly one file")
		}
		s, err := readSeries(args[0])
		if err != nil {
			return nil, err
		}
		return []processor.Input{{Alarm: alarmName, Series: s}}, nil
	}

	inputs := make([]processor.Input, 0, len(args))
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("argument %q: want NAME=FILE or --alarm NAME FILE", arg)
		}
		s, err := readSeries(path)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, processor.Input{Alarm: name, Series: s})
	}
	return inputs, nil
}

func readSeries(path string) (*series.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dps, err := series.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return series.FromPairs(dps), nil
}

func runCheck(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, def := range cfg.Alarms {
		c, err := def.Build()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", def.Name, c)
		if def.Description != "" {
			fmt.Fprintf(out, "  %s\n", def.Description)
		}
	}
	fmt.Fprintf(out, "%s: ok, %d alarm(s)\n", opts.configPath, len(cfg.Alarms))
	return nil
}
