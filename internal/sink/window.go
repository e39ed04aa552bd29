// Package sink parses window specifications and fans downsampled records out
// to one destination per trailing time window.
package sink

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit lengths for window specifications. A day is a flat 24 hours and a year
// a flat 365 days; windows are trailing spans, not calendar arithmetic.
var unitLengths = map[string]time.Duration{
	"hour": time.Hour,
	"day":  24 * time.Hour,
	"year": 365 * 24 * time.Hour,
}

// WindowSpec is one parsed window: its original spec text (used as the
// window's label) and the trailing span it covers.
type WindowSpec struct {
	Label  string
	Length time.Duration
}

// SpecError reports an unparseable window specification.
type SpecError struct {
	Spec   string
	Reason string
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("invalid window spec %q: %s", e.Spec, e.Reason)
}

// ParseWindows parses a colon-separated list of window specifications, each
// an integer magnitude followed by a unit from {hour, day, year}, e.g.
// "1hour:1day:3day:30day". Specs are validated before any file I/O happens.
func ParseWindows(spec string) ([]WindowSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, &SpecError{Spec: spec, Reason: "empty"}
	}

	parts := strings.Split(spec, ":")
	windows := make([]WindowSpec, 0, len(parts))
	for _, part := range parts {
		w, err := parseWindow(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// parseWindow tokenizes one spec into its leading digits and trailing unit
// word, then resolves the unit against the enumerated table.
func parseWindow(spec string) (WindowSpec, error) {
	if spec == "" {
		return WindowSpec{}, &SpecError{Spec: spec, Reason: "empty"}
	}

	split := len(spec)
	for i, r := range spec {
		if r < '0' || r > '9' {
			split = i
			break
		}
	}
	if split == 0 {
		return WindowSpec{}, &SpecError{Spec: spec, Reason: "missing magnitude"}
	}
	if split == len(spec) {
		return WindowSpec{}, &SpecError{Spec: spec, Reason: "missing unit"}
	}

	magnitude, err := strconv.ParseInt(spec[:split], 10, 64)
	if err != nil {
		return WindowSpec{}, &SpecError{Spec: spec, Reason: "magnitude out of range"}
	}
	if magnitude <= 0 {
		return WindowSpec{}, &SpecError{Spec: spec, Reason: "magnitude must be positive"}
	}

	unit := spec[split:]
	length, ok := unitLengths[unit]
	if !ok {
		return WindowSpec{}, &SpecError{Spec: spec, Reason: fmt.Sprintf("unknown unit %q", unit)}
	}

	return WindowSpec{Label: spec, Length: time.Duration(magnitude) * length}, nil
}

// Threshold computes the fixed cutoff for a window: records at or after this
// timestamp belong to the window. It is computed once per run and never
// recomputed as processing time elapses.
func (w WindowSpec) Threshold(now time.Time) int64 {
	return now.UnixMilli() - w.Length.Milliseconds()
}

// MinThreshold returns the earliest threshold across the given windows, i.e.
// the oldest timestamp any window still needs.
func MinThreshold(windows []WindowSpec, now time.Time) int64 {
	min := int64(0)
	for i, w := range windows {
		t := w.Threshold(now)
		if i == 0 || t < min {
			min = t
		}
	}
	return min
}
