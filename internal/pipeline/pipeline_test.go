package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rcourtman/pulse-downsample/internal/sink"
	"github.com/rs/zerolog"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func testOpener(opened map[string]*bufferCloser) sink.OpenFunc {
	return func(label string) (io.WriteCloser, error) {
		b := &bufferCloser{}
		opened[label] = b
		return b, nil
	}
}

// writeLines writes a log file of (timestamp, interval, user counter) rows;
// idle counters advance with the user counter so CPU deltas are never zero,
// and net counters advance linearly.
func writeLines(t *testing.T, dir, name string, rows [][3]int64) string {
	t.Helper()
	var b strings.Builder
	for i, row := range rows {
		ts, interval, user := row[0], row[1], row[2]
		fmt.Fprintf(&b, "%d %d 0.1 0.2 0.3 %d 0 0 %d 0 0 0 0 0 0 1048576 524288 0 0 2097152 1048576 1048576 %d %d\n",
			ts, interval, user, user*9, 1000*int64(i+1), 500*int64(i+1))
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	now := time.UnixMilli(1_700_000_000_000)

	hourAgo := now.UnixMilli() - 3_600_000
	old := writeLines(t, dir, "old.log", [][3]int64{
		{hourAgo - 7_200_000, 0, 100},
		{hourAgo - 7_190_000, 10_000, 200},
	})
	recent := writeLines(t, dir, "recent.log", [][3]int64{
		{hourAgo - 10_000, 10_000, 1000}, // becomes its segment's data points
		{hourAgo, 10_000, 1100},          // exactly at the hour threshold
		{hourAgo + 10_000, 10_000, 1200},
	})

	windows, err := sink.ParseWindows("1hour:1day")
	if err != nil {
		t.Fatal(err)
	}

	opened := map[string]*bufferCloser{}
	err = Run(Options{
		Inputs:  []string{recent, old},
		Windows: windows,
		Now:     now,
		Open:    testOpener(opened),
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// old.log: first line is a reset marker (interval 0) and is discarded;
	// the second line seeds the baseline. recent.log continues the same
	// stream: all three lines emit records. The 1hour window keeps the two
	// records at/after its threshold; the 1day window keeps all three.
	hourOut := opened["1hour"].String()
	dayOut := opened["1day"].String()

	if got := strings.Count(hourOut, "\n") - 1; got != 2 {
		t.Errorf("1hour window got %d records, want 2\n%s", got, hourOut)
	}
	if got := strings.Count(dayOut, "\n") - 1; got != 3 {
		t.Errorf("1day window got %d records, want 3\n%s", got, dayOut)
	}

	for label, buf := range opened {
		if !strings.HasPrefix(buf.String(), sink.Header) {
			t.Errorf("window %s missing header", label)
		}
		if !buf.closed {
			t.Errorf("window %s left open", label)
		}
	}
}

func TestRunSelectorDropsCoveredFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.UnixMilli(1_700_000_000_000)
	cutoff := now.UnixMilli() - 3_600_000

	// ancient.log ends long before the window and the next file starts
	// before the cutoff, so ancient.log is never opened for streaming.
	writeLines(t, dir, "ancient.log", [][3]int64{{cutoff - 9_000_000, 0, 1}})
	ancient := filepath.Join(dir, "ancient.log")
	covering := writeLines(t, dir, "covering.log", [][3]int64{
		{cutoff - 100_000, 0, 100}, // reset marker, discarded
		{cutoff - 50_000, 10_000, 200},
		{cutoff + 10_000, 10_000, 300},
	})

	windows, err := sink.ParseWindows("1hour")
	if err != nil {
		t.Fatal(err)
	}

	opened := map[string]*bufferCloser{}
	err = Run(Options{
		Inputs:  []string{ancient, covering},
		Windows: windows,
		Now:     now,
		Open:    testOpener(opened),
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got := strings.Count(opened["1hour"].String(), "\n") - 1; got != 1 {
		t.Errorf("1hour window got %d records, want 1", got)
	}
}

func TestRunZeroCPUDeltaIsSkipped(t *testing.T) {
	dir := t.TempDir()
	now := time.UnixMilli(1_700_000_000_000)
	base := now.UnixMilli() - 60_000

	// Second and third lines carry identical CPU counters.
	path := filepath.Join(dir, "flat.log")
	lines := fmt.Sprintf(
		"%d 10000 0.1 0.2 0.3 100 0 0 900 0 0 0 0 0 0 1048576 524288 0 0 2097152 1048576 1048576 1000 500\n"+
			"%d 10000 0.1 0.2 0.3 200 0 0 1800 0 0 0 0 0 0 1048576 524288 0 0 2097152 1048576 1048576 2000 1000\n"+
			"%d 10000 0.1 0.2 0.3 200 0 0 1800 0 0 0 0 0 0 1048576 524288 0 0 2097152 1048576 1048576 3000 1500\n"+
			"%d 10000 0.1 0.2 0.3 300 0 0 2700 0 0 0 0 0 0 1048576 524288 0 0 2097152 1048576 1048576 4000 2000\n",
		base, base+10_000, base+20_000, base+30_000)
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}

	windows, err := sink.ParseWindows("1hour")
	if err != nil {
		t.Fatal(err)
	}

	opened := map[string]*bufferCloser{}
	err = Run(Options{
		Inputs:  []string{path},
		Windows: windows,
		Now:     now,
		Open:    testOpener(opened),
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Four lines: baseline, one record, one skipped (zero delta), one record.
	if got := strings.Count(opened["1hour"].String(), "\n") - 1; got != 2 {
		t.Errorf("got %d records, want 2\n%s", got, opened["1hour"].String())
	}
}

func TestRunMalformedInputAbortsAndCloses(t *testing.T) {
	dir := t.TempDir()
	now := time.UnixMilli(1_700_000_000_000)

	path := filepath.Join(dir, "bad.log")
	content := fmt.Sprintf("%d 0 0.1 0.2 0.3 100 0 0 900 0 0 0 0 0 0 1 1 0 0 1 1 1 1 1\nnot a sample\n", now.UnixMilli()-1000)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	windows, err := sink.ParseWindows("1hour")
	if err != nil {
		t.Fatal(err)
	}

	opened := map[string]*bufferCloser{}
	err = Run(Options{
		Inputs:  []string{path},
		Windows: windows,
		Now:     now,
		Open:    testOpener(opened),
		Logger:  zerolog.Nop(),
	})
	if err == nil {
		t.Fatal("expected error for malformed input")
	}
	if !opened["1hour"].closed {
		t.Error("destination left open after abort")
	}
}

func TestRunDestinationOpenFailure(t *testing.T) {
	dir := t.TempDir()
	now := time.UnixMilli(1_700_000_000_000)
	path := writeLines(t, dir, "in.log", [][3]int64{{now.UnixMilli() - 1000, 0, 100}})

	windows, err := sink.ParseWindows("1hour:1day")
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("permission denied")
	opened := map[string]*bufferCloser{}
	err = Run(Options{
		Inputs:  []string{path},
		Windows: windows,
		Now:     now,
		Open: func(label string) (io.WriteCloser, error) {
			if label == "1day" {
				return nil, boom
			}
			b := &bufferCloser{}
			opened[label] = b
			return b, nil
		},
		Logger: zerolog.Nop(),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected open failure, got %v", err)
	}
	if !opened["1hour"].closed {
		t.Error("earlier destination not closed after open failure")
	}
}
