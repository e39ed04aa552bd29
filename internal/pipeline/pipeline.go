// Package pipeline wires the downsampling run: select input files, stream
// samples in timestamp order, fold them through the delta engine, and fan
// each record out to every window it belongs to. A run is single-threaded
// and run-to-completion; the first fatal error aborts it.
package pipeline

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rcourtman/pulse-downsample/internal/downsample"
	"github.com/rcourtman/pulse-downsample/internal/samplelog"
	"github.com/rcourtman/pulse-downsample/internal/sink"
	"github.com/rs/zerolog"
)

// Options configures a single run.
type Options struct {
	// Inputs are the candidate log files; the selector decides which are
	// actually streamed.
	Inputs []string

	// Windows are the parsed output windows.
	Windows []sink.WindowSpec

	// Now anchors every window threshold for the whole run.
	Now time.Time

	// Open opens the destination for one window label.
	Open sink.OpenFunc

	Logger zerolog.Logger
}

// Run executes one downsampling pass. Output destinations are opened eagerly
// and closed on every exit path. Consecutive samples with a zero total CPU
// time delta are logged and skipped rather than aborting the run.
func Run(opts Options) (err error) {
	logger := opts.Logger.With().Str("run_id", uuid.NewString()).Logger()

	minThreshold := sink.MinThreshold(opts.Windows, opts.Now)

	selected, err := samplelog.Select(opts.Inputs, minThreshold)
	if err != nil {
		return err
	}
	logger.Info().
		Int("candidates", len(opts.Inputs)).
		Int("selected", len(selected)).
		Int64("min_threshold_ms", minThreshold).
		Msg("Input files selected")

	fan, err := sink.Open(opts.Windows, opts.Now, opts.Open)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := fan.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var engine downsample.Engine
	processed := 0
	skipped := 0

	err = samplelog.Stream(selected, func(s samplelog.Sample) error {
		rec, perr := engine.Process(s)
		if perr != nil {
			if errors.Is(perr, downsample.ErrZeroCPUDelta) {
				skipped++
				logger.Warn().
					Int64("timestamp_ms", s.Timestamp).
					Msg("Skipping sample with zero CPU time delta")
				return nil
			}
			return perr
		}
		if rec == nil {
			return nil
		}
		processed++
		return fan.Write(rec)
	})
	if err != nil {
		return err
	}

	event := logger.Info().
		Int("records", processed).
		Int("skipped", skipped)
	for label, count := range fan.Counts() {
		event = event.Int64("window_"+label, count)
	}
	event.Msg("Downsampling complete")

	return nil
}
