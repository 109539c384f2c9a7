// Package device abstracts the memory-query capabilities of
// accelerator devices behind the Querier interface.
//
// A Querier answers three questions about a device: how much memory is
// free and present in total, what the allocator counters currently
// read, and whether the peak counters can be zeroed.
// Concrete backends exist for the cuda family (NVML) and the amdgpu
// family (sysfs). Backend selection is the caller's job; nothing in
// this package probes the environment for installed drivers.
package device

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Type identifies a device family, which determines the query backend
// and the set of allocator counters the family reports.
type Type string

const (
	TypeCUDA   Type = "cuda"
	TypeAMDGPU Type = "amdgpu"
)

// Allocator-statistics keys reported by every family. Families may
// report extras on top: the cuda family adds bar1_used and bar1_total,
// the amdgpu family adds gtt_used, gtt_total, vis_vram_used and
// vis_vram_total.
const (
	StatActive       = "active"
	StatActivePeak   = "active_peak"
	StatReserved     = "reserved"
	StatReservedPeak = "reserved_peak"
)

// Device identifies a single accelerator: a family type tag plus an
// optional index. Immutable after construction.
type Device struct {
	Type Type

	// Index selects a device within the family. Negative means the
	// family's default device.
	Index int
}

func (d Device) String() string {
	if d.Index < 0 {
		return string(d.Type)
	}
	return fmt.Sprintf("%s:%d", d.Type, d.Index)
}

// Parse parses a device string such as "cuda", "cuda:1" or "amdgpu:0".
// A missing index selects the family default. The type tag is not
// validated against known families; backend selection decides what is
// actually supported.
func Parse(s string) (Device, error) {
	typ, idx, hasIdx := strings.Cut(s, ":")
	if typ == "" {
		return Device{}, fmt.Errorf("empty device type in %q", s)
	}
	dev := Device{Type: Type(typ), Index: -1}
	if hasIdx {
		n, err := strconv.Atoi(idx)
		if err != nil || n < 0 {
			return Device{}, fmt.Errorf("invalid device index %q in %q", idx, s)
		}
		dev.Index = n
	}
	return dev, nil
}

// Querier is the memory-query capability of a device family. All
// methods are safe for concurrent use; memory queries are inherently
// race-tolerant snapshots.
type Querier interface {
	// MemoryInfo returns free and total device memory in bytes.
	MemoryInfo(dev Device) (free, total uint64, err error)

	// AllocatorStats returns the named allocator counters for the
	// device. Keys are family-specific; the Stat* constants are
	// reported by every backend.
	AllocatorStats(dev Device) (map[string]uint64, error)

	// ResetPeakStats zeroes the peak-tracking counters so the next
	// monitoring episode starts from a clean high-water mark.
	ResetPeakStats(dev Device) error
}

// deviceIndex resolves a device reference to a concrete index,
// mapping "family default" to index 0.
func deviceIndex(dev Device) int {
	if dev.Index < 0 {
		return 0
	}
	return dev.Index
}

// peakSet tracks per-device high-water marks for backends whose native
// API reports only current values.
type peakSet struct {
	mu    sync.Mutex
	byDev map[int]map[string]uint64
}

// observe folds value into the tracked peak for (index, key) and
// returns the resulting peak.
func (p *peakSet) observe(index int, key string, value uint64) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.byDev == nil {
		p.byDev = make(map[int]map[string]uint64)
	}
	peaks := p.byDev[index]
	if peaks == nil {
		peaks = make(map[string]uint64)
		p.byDev[index] = peaks
	}
	if value > peaks[key] {
		peaks[key] = value
	}
	return peaks[key]
}

// reset drops all tracked peaks for the device index.
func (p *peakSet) reset(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byDev, index)
}
