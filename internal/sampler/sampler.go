// Package sampler collects one raw metric sample per tick and appends it to
// a log file in the exact 24-field schema the samplelog parser reads.
package sampler

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rcourtman/pulse-downsample/internal/samplelog"
	gocpu "github.com/shirou/gopsutil/v4/cpu"
	godisk "github.com/shirou/gopsutil/v4/disk"
	goload "github.com/shirou/gopsutil/v4/load"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gonet "github.com/shirou/gopsutil/v4/net"
	"golang.org/x/sync/errgroup"
)

// System call wrappers for testing
var (
	loadAvg       = goload.AvgWithContext
	cpuTimes      = gocpu.TimesWithContext
	virtualMemory = gomem.VirtualMemoryWithContext
	swapMemory    = gomem.SwapMemoryWithContext
	diskUsage     = godisk.UsageWithContext
	netIOCounters = gonet.IOCountersWithContext
)

// clockTicksPerSec converts gopsutil's CPU seconds into integer tick
// counters, matching the kernel's USER_HZ accounting.
const clockTicksPerSec = 100

// Sampler produces Samples for one host. It remembers the previous tick time
// so each sample carries the real interval since the last one; the first
// sample of a process carries interval 0, the restart marker downstream
// consumers use to re-baseline.
type Sampler struct {
	// DiskPath is the mount point whose usage is reported. Defaults to "/".
	DiskPath string

	lastTick time.Time
}

// Collect gathers a point-in-time sample. The subsystems are independent
// reads, so they are gathered concurrently under a shared timeout.
func (s *Sampler) Collect(ctx context.Context) (samplelog.Sample, error) {
	collectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	diskPath := s.DiskPath
	if diskPath == "" {
		diskPath = "/"
	}

	now := time.Now()
	var sample samplelog.Sample
	sample.Timestamp = now.UnixMilli()
	if !s.lastTick.IsZero() {
		sample.IntervalMS = now.Sub(s.lastTick).Milliseconds()
	}
	s.lastTick = now

	g, gctx := errgroup.WithContext(collectCtx)

	g.Go(func() error {
		avg, err := loadAvg(gctx)
		if err != nil {
			return fmt.Errorf("load average: %w", err)
		}
		sample.Load1 = avg.Load1
		sample.Load5 = avg.Load5
		sample.Load15 = avg.Load15
		return nil
	})

	g.Go(func() error {
		times, err := cpuTimes(gctx, false)
		if err != nil {
			return fmt.Errorf("cpu times: %w", err)
		}
		if len(times) == 0 {
			return fmt.Errorf("cpu times: no aggregate entry")
		}
		sample.CPU = toTicks(times[0])
		return nil
	})

	g.Go(func() error {
		mem, err := virtualMemory(gctx)
		if err != nil {
			return fmt.Errorf("memory stats: %w", err)
		}
		sample.MemTotal = mem.Total
		sample.MemUsed = mem.Used
		return nil
	})

	g.Go(func() error {
		swap, err := swapMemory(gctx)
		if err != nil {
			return fmt.Errorf("swap stats: %w", err)
		}
		sample.SwapTotal = swap.Total
		sample.SwapUsed = swap.Used
		return nil
	})

	g.Go(func() error {
		usage, err := diskUsage(gctx, diskPath)
		if err != nil {
			return fmt.Errorf("disk usage %s: %w", diskPath, err)
		}
		sample.DiskTotal = usage.Total
		sample.DiskUsed = usage.Used
		sample.DiskAvail = usage.Free
		return nil
	})

	g.Go(func() error {
		counters, err := netIOCounters(gctx, false)
		if err != nil {
			return fmt.Errorf("net counters: %w", err)
		}
		if len(counters) == 0 {
			return fmt.Errorf("net counters: no aggregate entry")
		}
		sample.NetRecv = counters[0].BytesRecv
		sample.NetSent = counters[0].BytesSent
		return nil
	})

	if err := g.Wait(); err != nil {
		return samplelog.Sample{}, err
	}
	return sample, nil
}

func toTicks(t gocpu.TimesStat) samplelog.CPUTimes {
	tick := func(seconds float64) uint64 {
		return uint64(math.Round(seconds * clockTicksPerSec))
	}
	return samplelog.CPUTimes{
		User:      tick(t.User),
		Nice:      tick(t.Nice),
		System:    tick(t.System),
		Idle:      tick(t.Idle),
		IOWait:    tick(t.Iowait),
		IRQ:       tick(t.Irq),
		SoftIRQ:   tick(t.Softirq),
		Steal:     tick(t.Steal),
		Guest:     tick(t.Guest),
		GuestNice: tick(t.GuestNice),
	}
}

// FormatLine encodes a sample as one log line, the inverse of
// samplelog.ParseLine. No trailing newline.
func FormatLine(s samplelog.Sample) string {
	fields := []string{
		strconv.FormatInt(s.Timestamp, 10),
		strconv.FormatInt(s.IntervalMS, 10),
		strconv.FormatFloat(s.Load1, 'f', 2, 64),
		strconv.FormatFloat(s.Load5, 'f', 2, 64),
		strconv.FormatFloat(s.Load15, 'f', 2, 64),
		strconv.FormatUint(s.CPU.User, 10),
		strconv.FormatUint(s.CPU.Nice, 10),
		strconv.FormatUint(s.CPU.System, 10),
		strconv.FormatUint(s.CPU.Idle, 10),
		strconv.FormatUint(s.CPU.IOWait, 10),
		strconv.FormatUint(s.CPU.IRQ, 10),
		strconv.FormatUint(s.CPU.SoftIRQ, 10),
		strconv.FormatUint(s.CPU.Steal, 10),
		strconv.FormatUint(s.CPU.Guest, 10),
		strconv.FormatUint(s.CPU.GuestNice, 10),
		strconv.FormatUint(s.MemTotal, 10),
		strconv.FormatUint(s.MemUsed, 10),
		strconv.FormatUint(s.SwapTotal, 10),
		strconv.FormatUint(s.SwapUsed, 10),
		strconv.FormatUint(s.DiskTotal, 10),
		strconv.FormatUint(s.DiskUsed, 10),
		strconv.FormatUint(s.DiskAvail, 10),
		strconv.FormatUint(s.NetRecv, 10),
		strconv.FormatUint(s.NetSent, 10),
	}
	return strings.Join(fields, " ")
}
