package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rcourtman/pulse-downsample/internal/downsample"
)

// Header is the fixed first line of every output file.
const Header = "timestamp load1 load5 load15 cpu_user cpu_system cpu_nice cpu_idle mem_total mem_used swap_total swap_used disk_total disk_used disk_avail net_in net_out\n"

const recordFormat = "%d %.3f %.3f %.3f %.3f %.3f %.3f %.3f %d %d %d %d %d %d %d %.3f %.3f\n"

// OpenFunc opens the destination for one window label.
type OpenFunc func(label string) (io.WriteCloser, error)

// Window is one open output destination with its fixed threshold.
type Window struct {
	Label     string
	Threshold int64 // ms; records with Timestamp >= Threshold are written

	dst     io.WriteCloser
	written int64
}

// FanOut writes each record to every window whose threshold it satisfies.
// Destinations are opened eagerly before streaming begins and are always
// released through Close, whether the run ends normally or on error.
type FanOut struct {
	windows []*Window
}

// Open computes each window's threshold from now, opens every destination,
// and writes the header line. If any open or header write fails, destinations
// opened so far are closed before the error is returned.
func Open(specs []WindowSpec, now time.Time, open OpenFunc) (*FanOut, error) {
	f := &FanOut{windows: make([]*Window, 0, len(specs))}

	for _, spec := range specs {
		dst, err := open(spec.Label)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open window %s: %w", spec.Label, err)
		}
		w := &Window{
			Label:     spec.Label,
			Threshold: spec.Threshold(now),
			dst:       dst,
		}
		f.windows = append(f.windows, w)

		if _, err := io.WriteString(dst, Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header for window %s: %w", spec.Label, err)
		}
	}

	return f, nil
}

// Write disperses one record to every window whose threshold is at or before
// the record's timestamp. A record may land in zero, some, or all windows.
func (f *FanOut) Write(rec *downsample.Record) error {
	for _, w := range f.windows {
		if rec.Timestamp < w.Threshold {
			continue
		}
		if _, err := fmt.Fprintf(w.dst, recordFormat,
			rec.Timestamp,
			rec.Load1, rec.Load5, rec.Load15,
			rec.CPUUser, rec.CPUSystem, rec.CPUNice, rec.CPUIdle,
			rec.MemTotalMiB, rec.MemUsedMiB,
			rec.SwapTotalMiB, rec.SwapUsedMiB,
			rec.DiskTotalMiB, rec.DiskUsedMiB, rec.DiskAvailMiB,
			rec.NetInBps, rec.NetOutBps,
		); err != nil {
			return fmt.Errorf("write window %s: %w", w.Label, err)
		}
		w.written++
	}
	return nil
}

// Counts reports how many records each window received, keyed by label.
func (f *FanOut) Counts() map[string]int64 {
	counts := make(map[string]int64, len(f.windows))
	for _, w := range f.windows {
		counts[w.Label] = w.written
	}
	return counts
}

// Close releases every destination. Safe to call more than once.
func (f *FanOut) Close() error {
	var errs []error
	for _, w := range f.windows {
		if w.dst == nil {
			continue
		}
		if err := w.dst.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close window %s: %w", w.Label, err))
		}
		w.dst = nil
	}
	return errors.Join(errs...)
}

// FilePattern returns an OpenFunc that derives each window's filename from a
// Go time layout evaluated against now, with "{window}" replaced by the
// window label. Output is plain truncate-and-write: an aborted run can leave
// a truncated file behind, there is no atomic rename step.
func FilePattern(pattern string, now time.Time) OpenFunc {
	return func(label string) (io.WriteCloser, error) {
		name := strings.ReplaceAll(now.Format(pattern), "{window}", label)
		return os.Create(name)
	}
}
