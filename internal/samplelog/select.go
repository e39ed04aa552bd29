package samplelog

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// FirstTimestamp reads only the first record's timestamp from a log file.
// Files are streamed end-to-end downstream, so this probe stays cheap: it
// decodes the leading field of the first non-empty line and nothing else.
func FirstTimestamp(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		first := strings.Fields(text)[0]
		ts, err := strconv.ParseInt(first, 10, 64)
		if err != nil {
			return 0, &ParseError{File: path, Line: line, Err: fmt.Errorf("field 1 (timestamp): invalid value %q", first)}
		}
		return ts, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	return 0, fmt.Errorf("probe %s: no samples", path)
}

// Select orders log files by their first timestamp and drops the leading
// files not needed to cover the earliest threshold. A file is dropped only
// when the next file in sorted order starts at or before minThreshold, so
// coverage of every requested window is preserved; the last file is always
// kept. The caller guarantees files do not overlap in time.
func Select(paths []string, minThreshold int64) ([]string, error) {
	type probed struct {
		path  string
		first int64
	}

	files := make([]probed, 0, len(paths))
	for _, path := range paths {
		first, err := FirstTimestamp(path)
		if err != nil {
			return nil, err
		}
		files = append(files, probed{path: path, first: first})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].first < files[j].first })

	start := 0
	for start+1 < len(files) && files[start+1].first <= minThreshold {
		start++
	}

	selected := make([]string, 0, len(files)-start)
	for _, f := range files[start:] {
		selected = append(selected, f.path)
	}
	return selected, nil
}

// Stream reads the given files in order and invokes fn once per decoded
// sample. The first parse or I/O error aborts the stream, as does the first
// error returned by fn.
func Stream(paths []string, fn func(Sample) error) error {
	for _, path := range paths {
		if err := streamFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func streamFile(path string, fn func(Sample) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		sample, err := ParseLine(text)
		if err != nil {
			return &ParseError{File: path, Line: line, Err: err}
		}
		if err := fn(sample); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
