//go:build linux && cgo

package device

import (
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// NVML is a Querier for the cuda device family backed by NVIDIA's NVML
// library. NVML reports only current memory figures, so allocation
// peaks are tracked here and zeroed by ResetPeakStats.
type NVML struct {
	mu          sync.RWMutex
	initialized bool
	peaks       peakSet
}

// NewNVML creates a new NVML querier. Call Init before use.
func NewNVML() *NVML {
	return &NVML{}
}

// Init initializes the NVML library.
func (n *NVML) Init() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.initialized {
		return fmt.Errorf("already initialized")
	}

	ret := nvml.Init()
	if ret != nvml.SUCCESS {
		return fmt.Errorf("failed to initialize NVML: %v", nvml.ErrorString(ret))
	}

	n.initialized = true
	return nil
}

// Shutdown shuts down the NVML library.
func (n *NVML) Shutdown() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.initialized {
		return fmt.Errorf("not initialized")
	}

	ret := nvml.Shutdown()
	if ret != nvml.SUCCESS {
		return fmt.Errorf("failed to shutdown NVML: %v", nvml.ErrorString(ret))
	}

	n.initialized = false
	return nil
}

// MemoryInfo returns free and total memory for the device.
func (n *NVML) MemoryInfo(dev Device) (uint64, uint64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	handle, err := n.handle(dev)
	if err != nil {
		return 0, 0, err
	}

	memory, ret := handle.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return 0, 0, fmt.Errorf("failed to get memory info: %v", nvml.ErrorString(ret))
	}

	return memory.Free, memory.Total, nil
}

// AllocatorStats returns current and peak allocation counters for the
// device. Active is the memory in use by processes, reserved is
// everything the driver has taken out of the free pool.
func (n *NVML) AllocatorStats(dev Device) (map[string]uint64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	handle, err := n.handle(dev)
	if err != nil {
		return nil, err
	}

	memory, ret := handle.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to get memory info: %v", nvml.ErrorString(ret))
	}

	index := deviceIndex(dev)
	active := memory.Used
	reserved := memory.Total - memory.Free

	stats := map[string]uint64{
		StatActive:       active,
		StatActivePeak:   n.peaks.observe(index, StatActive, active),
		StatReserved:     reserved,
		StatReservedPeak: n.peaks.observe(index, StatReserved, reserved),
	}

	// BAR1 aperture figures are not available on all GPUs.
	if bar1, ret := handle.GetBAR1MemoryInfo(); ret == nvml.SUCCESS {
		stats["bar1_used"] = bar1.Bar1Used
		stats["bar1_total"] = bar1.Bar1Total
	}

	return stats, nil
}

// ResetPeakStats zeroes the tracked allocation peaks for the device.
func (n *NVML) ResetPeakStats(dev Device) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.initialized {
		return fmt.Errorf("not initialized")
	}

	n.peaks.reset(deviceIndex(dev))
	return nil
}

func (n *NVML) handle(dev Device) (nvml.Device, error) {
	if !n.initialized {
		return nil, fmt.Errorf("not initialized")
	}

	handle, ret := nvml.DeviceGetHandleByIndex(deviceIndex(dev))
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to get device handle: %v", nvml.ErrorString(ret))
	}

	return handle, nil
}

// IsNVMLAvailable checks if NVML can be initialized on this system.
func IsNVMLAvailable() bool {
	ret := nvml.Init()
	if ret != nvml.SUCCESS {
		return false
	}
	nvml.Shutdown()
	return true
}
