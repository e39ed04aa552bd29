// Package samplelog reads the append-only metric logs produced by the
// sampler: one sample per line, 24 whitespace-separated numeric fields in a
// fixed order. Files are internally time-ordered and never overlap each other.
package samplelog

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldCount is the number of whitespace-separated fields on a sample line.
const FieldCount = 24

// CPUTimes holds the cumulative CPU time counters in /proc/stat order.
// All counters are monotonically non-decreasing between sampler restarts.
type CPUTimes struct {
	User      uint64
	Nice      uint64
	System    uint64
	Idle      uint64
	IOWait    uint64
	IRQ       uint64
	SoftIRQ   uint64
	Steal     uint64
	Guest     uint64
	GuestNice uint64
}

// Sample is one decoded log line.
type Sample struct {
	Timestamp  int64 // milliseconds since epoch
	IntervalMS int64 // ms since the previous sample; 0 marks a sampler restart

	Load1  float64
	Load5  float64
	Load15 float64

	CPU CPUTimes

	MemTotal uint64 // bytes
	MemUsed  uint64

	SwapTotal uint64
	SwapUsed  uint64

	DiskTotal uint64
	DiskUsed  uint64
	DiskAvail uint64

	NetRecv uint64 // cumulative bytes received
	NetSent uint64 // cumulative bytes sent
}

// ParseError reports a malformed sample line with its source location.
// Any parse failure is fatal for the run; there is no partial-line recovery.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("malformed sample line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed sample in %s line %d: %v", e.File, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseLine decodes one raw log line into a Sample.
func ParseLine(line string) (Sample, error) {
	fields := strings.Fields(line)
	if len(fields) != FieldCount {
		return Sample{}, fmt.Errorf("expected %d fields, got %d", FieldCount, len(fields))
	}

	p := fieldParser{fields: fields}

	var s Sample
	s.Timestamp = p.int64(0, "timestamp")
	s.IntervalMS = p.int64(1, "interval")
	s.Load1 = p.float(2, "load1")
	s.Load5 = p.float(3, "load5")
	s.Load15 = p.float(4, "load15")
	s.CPU.User = p.uint64(5, "cpu_user")
	s.CPU.Nice = p.uint64(6, "cpu_nice")
	s.CPU.System = p.uint64(7, "cpu_system")
	s.CPU.Idle = p.uint64(8, "cpu_idle")
	s.CPU.IOWait = p.uint64(9, "cpu_iowait")
	s.CPU.IRQ = p.uint64(10, "cpu_irq")
	s.CPU.SoftIRQ = p.uint64(11, "cpu_softirq")
	s.CPU.Steal = p.uint64(12, "cpu_steal")
	s.CPU.Guest = p.uint64(13, "cpu_guest")
	s.CPU.GuestNice = p.uint64(14, "cpu_guest_nice")
	s.MemTotal = p.uint64(15, "mem_total")
	s.MemUsed = p.uint64(16, "mem_used")
	s.SwapTotal = p.uint64(17, "swap_total")
	s.SwapUsed = p.uint64(18, "swap_used")
	s.DiskTotal = p.uint64(19, "disk_total")
	s.DiskUsed = p.uint64(20, "disk_used")
	s.DiskAvail = p.uint64(21, "disk_avail")
	s.NetRecv = p.uint64(22, "net_recv")
	s.NetSent = p.uint64(23, "net_sent")

	if p.err != nil {
		return Sample{}, p.err
	}
	return s, nil
}

// fieldParser accumulates the first conversion error so ParseLine reads as a
// flat field list instead of 24 error checks.
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) int64(i int, name string) int64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(p.fields[i], 10, 64)
	if err != nil {
		p.err = fmt.Errorf("field %d (%s): invalid value %q", i+1, name, p.fields[i])
	}
	return v
}

func (p *fieldParser) uint64(i int, name string) uint64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(p.fields[i], 10, 64)
	if err != nil {
		p.err = fmt.Errorf("field %d (%s): invalid value %q", i+1, name, p.fields[i])
	}
	return v
}

func (p *fieldParser) float(i int, name string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(p.fields[i], 64)
	if err != nil {
		p.err = fmt.Errorf("field %d (%s): invalid value %q", i+1, name, p.fields[i])
	}
	return v
}
