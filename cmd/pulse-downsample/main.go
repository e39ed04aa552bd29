package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rcourtman/pulse-downsample/internal/config"
	"github.com/rcourtman/pulse-downsample/internal/logging"
	"github.com/rcourtman/pulse-downsample/internal/pipeline"
	"github.com/rcourtman/pulse-downsample/internal/sampler"
	"github.com/rcourtman/pulse-downsample/internal/sink"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	flagConfig     string
	flagWindows    string
	flagOutPattern string
	flagLogLevel   string
	flagLogFormat  string
	flagLogFile    string

	flagSampleOut      string
	flagSampleInterval time.Duration
	flagSampleOnce     bool
	flagSampleDisk     string
)

var rootCmd = &cobra.Command{
	Use:   "pulse-downsample [flags] LOGFILE...",
	Short: "Downsample metric sample logs into trailing-window summaries",
	Long: `pulse-downsample reads append-only system metric logs (one sample per line)
and writes one downsampled summary file per configured trailing time window,
deriving CPU utilization fractions and network rates from consecutive samples.`,
	Version:       Version,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownsample(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pulse-downsample %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Collect system metric samples into a log file",
	Long: `sample appends one 24-field metric line per tick to the output log,
in exactly the schema the downsampler reads. The first line of a sampler
process records an interval of zero, which downstream processing treats
as a restart marker.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSample(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: json, console, auto")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Append logs to this file")

	rootCmd.Flags().StringVar(&flagWindows, "windows", "", `Colon-separated window specs, e.g. "1hour:1day:3day:30day"`)
	rootCmd.Flags().StringVar(&flagOutPattern, "out", "", `Output filename pattern: Go time layout with "{window}" placeholder`)

	sampleCmd.Flags().StringVar(&flagSampleOut, "out", "metrics.log", "Sample log file to append to")
	sampleCmd.Flags().DurationVar(&flagSampleInterval, "interval", 10*time.Second, "Sampling interval")
	sampleCmd.Flags().BoolVar(&flagSampleOnce, "once", false, "Collect a single sample, then exit")
	sampleCmd.Flags().StringVar(&flagSampleDisk, "disk-path", "/", "Mount point to report disk usage for")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(sampleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig merges the config file, environment, and flags. Flags win.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, err
	}

	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if flagLogFile != "" {
		cfg.LogFile = flagLogFile
	}
	return cfg, nil
}

func runDownsample(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("windows") {
		cfg.Windows = flagWindows
	}
	if cmd.Flags().Changed("out") {
		cfg.OutPattern = flagOutPattern
	}

	logger := logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "downsample",
		FilePath:  cfg.LogFile,
	})
	defer logging.Shutdown()

	// Window specs are validated before any file I/O begins.
	windows, err := sink.ParseWindows(cfg.Windows)
	if err != nil {
		return err
	}

	now := time.Now()
	return pipeline.Run(pipeline.Options{
		Inputs:  args,
		Windows: windows,
		Now:     now,
		Open:    sink.FilePattern(cfg.OutPattern, now),
		Logger:  logger,
	})
}

func runSample(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "sampler",
		FilePath:  cfg.LogFile,
	})
	defer logging.Shutdown()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = sampler.Run(ctx, sampler.RunConfig{
		OutPath:  flagSampleOut,
		Interval: flagSampleInterval,
		Once:     flagSampleOnce,
		DiskPath: flagSampleDisk,
		Logger:   logger,
	})
	if err != nil {
		log.Error().Err(err).Msg("Sampler failed")
	}
	return err
}
