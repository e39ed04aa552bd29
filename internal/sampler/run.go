package sampler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// RunConfig controls the sampling loop.
type RunConfig struct {
	// OutPath is the log file samples are appended to.
	OutPath string

	// Interval is the sampling cadence.
	Interval time.Duration

	// Once collects and appends a single sample, then returns.
	Once bool

	// DiskPath is the mount point whose usage is reported. Defaults to "/".
	DiskPath string

	Logger zerolog.Logger
}

// Run appends one sample line per tick until the context is cancelled. Each
// line is written and synced individually so a crash loses at most the
// in-flight sample.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("sampling interval must be positive, got %s", cfg.Interval)
	}

	out, err := os.OpenFile(cfg.OutPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open sample log %s: %w", cfg.OutPath, err)
	}
	defer out.Close()

	s := Sampler{DiskPath: cfg.DiskPath}
	tick := func() error {
		sample, err := s.Collect(ctx)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, FormatLine(sample)); err != nil {
			return fmt.Errorf("append sample to %s: %w", cfg.OutPath, err)
		}
		return out.Sync()
	}

	if err := tick(); err != nil {
		return err
	}
	if cfg.Once {
		return nil
	}

	cfg.Logger.Info().
		Str("out", cfg.OutPath).
		Dur("interval", cfg.Interval).
		Msg("Sampler started")

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cfg.Logger.Info().Msg("Sampler stopped")
			return nil
		case <-ticker.C:
			if err := tick(); err != nil {
				return err
			}
		}
	}
}
