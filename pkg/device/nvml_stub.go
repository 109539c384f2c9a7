//go:build !(linux && cgo)

package device

import "fmt"

// NVML is a stub for platforms without NVML support (non-Linux or CGO
// disabled). Every operation fails; IsNVMLAvailable reports false.
type NVML struct{}

// NewNVML creates a stub NVML querier.
func NewNVML() *NVML {
	return &NVML{}
}

func (n *NVML) Init() error {
	return fmt.Errorf("NVML is not supported on this platform")
}

func (n *NVML) Shutdown() error {
	return fmt.Errorf("not initialized")
}

func (n *NVML) MemoryInfo(dev Device) (uint64, uint64, error) {
	return 0, 0, fmt.Errorf("not initialized")
}

func (n *NVML) AllocatorStats(dev Device) (map[string]uint64, error) {
	return nil, fmt.Errorf("not initialized")
}

func (n *NVML) ResetPeakStats(dev Device) error {
	return fmt.Errorf("not initialized")
}

// IsNVMLAvailable checks if NVML can be initialized on this system.
func IsNVMLAvailable() bool {
	return false
}
