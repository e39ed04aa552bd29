package main

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

// chdir stands in for t.Chdir, which needs Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestRootCommandEndToEnd(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	// A restart marker, the sample that re-seeds the baseline, then one
	// normal sample: exactly one record comes out.
	now := time.Now().UnixMilli()
	lines := fmt.Sprintf(
		"%d 0 0.1 0.2 0.3 100 0 0 900 0 0 0 0 0 0 1048576 524288 0 0 2097152 1048576 1048576 1000 500\n"+
			"%d 10000 0.1 0.2 0.3 200 0 0 1800 0 0 0 0 0 0 1048576 524288 0 0 2097152 1048576 1048576 2000 1000\n"+
			"%d 10000 0.1 0.2 0.3 300 0 0 2700 0 0 0 0 0 0 1048576 524288 0 0 2097152 1048576 1048576 3000 1500\n",
		now-20_000, now-10_000, now-5_000)
	if err := os.WriteFile("metrics.log", []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}

	rootCmd.SetArgs([]string{
		"--windows", "1hour:1day",
		"--out", "summary-{window}.txt",
		"--log-format", "json",
		"metrics.log",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	for _, name := range []string{"summary-1hour.txt", "summary-1day.txt"} {
		data, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("missing output %s: %v", name, err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 2 {
			t.Errorf("%s has %d lines, want header plus one record", name, len(lines))
		}
		if !strings.HasPrefix(lines[0], "timestamp ") {
			t.Errorf("%s missing header line", name)
		}
	}
}

func TestRootCommandRejectsBadWindowSpec(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	if err := os.WriteFile("metrics.log", []byte("1 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rootCmd.SetArgs([]string{"--windows", "5minute", "metrics.log"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for unknown window unit")
	}
	if !strings.Contains(err.Error(), "minute") {
		t.Errorf("error %q does not name the bad unit", err)
	}

	// The window string must be rejected before any output file is created.
	entries, readErr := os.ReadDir(".")
	if readErr != nil {
		t.Fatal(readErr)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "summary-") {
			t.Errorf("output file %s created despite invalid window spec", e.Name())
		}
	}
}
