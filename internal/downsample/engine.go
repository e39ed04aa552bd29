// Package downsample folds raw cumulative samples into per-interval records:
// CPU utilization fractions and network rates derived from consecutive
// counter values, sizes reduced to whole mebibytes.
package downsample

import (
	"errors"
	"fmt"

	"github.com/rcourtman/pulse-downsample/internal/samplelog"
)

// ErrZeroCPUDelta is returned when two consecutive samples carry identical
// total CPU time, which leaves the utilization fractions undefined. Callers
// decide whether to skip the record or abort the run.
var ErrZeroCPUDelta = errors.New("zero total cpu time delta between samples")

const bytesPerMiB = 1024 * 1024

// Record is one downsampled data point.
type Record struct {
	Timestamp int64 // milliseconds since epoch

	Load1  float64
	Load5  float64
	Load15 float64

	// Utilization fractions in [0,1] over the interval since the previous sample.
	CPUUser   float64
	CPUSystem float64
	CPUNice   float64
	CPUIdle   float64

	MemTotalMiB  uint64
	MemUsedMiB   uint64
	SwapTotalMiB uint64
	SwapUsedMiB  uint64
	DiskTotalMiB uint64
	DiskUsedMiB  uint64
	DiskAvailMiB uint64

	NetInBps  float64 // bytes per second
	NetOutBps float64
}

// Engine derives per-interval records from a stream of cumulative samples.
// It holds exactly one piece of state, the previous sample, and must be fed
// samples in non-decreasing timestamp order. The zero value is ready to use.
type Engine struct {
	prev *samplelog.Sample
}

// cpuBuckets collapses the raw counters into the four reported categories
// plus the total, following standard OS CPU time accounting: user and nice
// exclude guest time (the kernel folds guest into them), system picks up
// interrupt time, idle picks up iowait.
type cpuBuckets struct {
	user   int64
	nice   int64
	system int64
	idle   int64
	total  int64
}

func bucketize(c samplelog.CPUTimes) cpuBuckets {
	b := cpuBuckets{
		user:   int64(c.User) - int64(c.Guest),
		nice:   int64(c.Nice) - int64(c.GuestNice),
		system: int64(c.System) + int64(c.IRQ) + int64(c.SoftIRQ),
		idle:   int64(c.Idle) + int64(c.IOWait),
	}
	b.total = b.user + b.nice + b.system + b.idle + int64(c.Steal) + int64(c.Guest) + int64(c.GuestNice)
	return b
}

// Process consumes one sample and returns the derived record, or nil when the
// sample only (re)establishes the baseline. An interval of zero is the
// sampler's restart marker: its counters do not continue the previous series,
// so the sample is discarded entirely and the one after it seeds the new
// baseline. The previous-sample slot is updated on every call that has a
// comparison baseline, including the ErrZeroCPUDelta path.
func (e *Engine) Process(s samplelog.Sample) (*Record, error) {
	if s.IntervalMS == 0 {
		e.prev = nil
		return nil, nil
	}
	if s.IntervalMS < 0 {
		return nil, fmt.Errorf("negative interval %dms at timestamp %d", s.IntervalMS, s.Timestamp)
	}
	if e.prev == nil {
		cur := s
		e.prev = &cur
		return nil, nil
	}

	prev := *e.prev
	cur := s
	e.prev = &cur

	curCPU := bucketize(s.CPU)
	prevCPU := bucketize(prev.CPU)
	deltaTotal := curCPU.total - prevCPU.total
	if deltaTotal == 0 {
		return nil, ErrZeroCPUDelta
	}

	intervalSec := float64(s.IntervalMS) / 1000.0

	rec := &Record{
		Timestamp: s.Timestamp,
		Load1:     s.Load1,
		Load5:     s.Load5,
		Load15:    s.Load15,

		CPUUser:   float64(curCPU.user-prevCPU.user) / float64(deltaTotal),
		CPUSystem: float64(curCPU.system-prevCPU.system) / float64(deltaTotal),
		CPUNice:   float64(curCPU.nice-prevCPU.nice) / float64(deltaTotal),
		CPUIdle:   float64(curCPU.idle-prevCPU.idle) / float64(deltaTotal),

		MemTotalMiB:  s.MemTotal / bytesPerMiB,
		MemUsedMiB:   s.MemUsed / bytesPerMiB,
		SwapTotalMiB: s.SwapTotal / bytesPerMiB,
		SwapUsedMiB:  s.SwapUsed / bytesPerMiB,
		DiskTotalMiB: s.DiskTotal / bytesPerMiB,
		DiskUsedMiB:  s.DiskUsed / bytesPerMiB,
		DiskAvailMiB: s.DiskAvail / bytesPerMiB,

		// Rates use the interval recorded in the sample itself, not wall
		// clock time at processing, so replaying old logs stays correct.
		NetInBps:  float64(int64(s.NetRecv)-int64(prev.NetRecv)) / intervalSec,
		NetOutBps: float64(int64(s.NetSent)-int64(prev.NetSent)) / intervalSec,
	}

	return rec, nil
}

// Reset clears the held baseline so the next sample starts a fresh segment.
func (e *Engine) Reset() {
	e.prev = nil
}
