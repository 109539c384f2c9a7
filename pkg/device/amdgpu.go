package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	drmClassPath      = "class/drm"
	vramTotalFilename = "mem_info_vram_total"
	vramUsedFilename  = "mem_info_vram_used"
	gttTotalFilename  = "mem_info_gtt_total"
	gttUsedFilename   = "mem_info_gtt_used"
	visVramTotalFile  = "mem_info_vis_vram_total"
	visVramUsedFile   = "mem_info_vis_vram_used"
)

// AMDGPU is a Querier for the amdgpu device family, reading the kernel
// driver's memory counters from sysfs. Like NVML, the driver exposes
// only current figures, so peaks are tracked in the backend.
type AMDGPU struct {
	sysfsRoot string
	peaks     peakSet
}

// NewAMDGPU creates an AMDGPU querier reading from /sys.
func NewAMDGPU() *AMDGPU {
	return NewAMDGPUWithRoot("/sys")
}

// NewAMDGPUWithRoot creates an AMDGPU querier reading from an
// alternate sysfs root. Used by tests.
func NewAMDGPUWithRoot(root string) *AMDGPU {
	return &AMDGPU{sysfsRoot: root}
}

// MemoryInfo returns free and total VRAM for the device.
func (a *AMDGPU) MemoryInfo(dev Device) (uint64, uint64, error) {
	dir := a.devicePath(dev)

	total, err := readSysfsUint(filepath.Join(dir, vramTotalFilename))
	if err != nil {
		return 0, 0, fmt.Errorf("read vram total: %w", err)
	}
	used, err := readSysfsUint(filepath.Join(dir, vramUsedFilename))
	if err != nil {
		return 0, 0, fmt.Errorf("read vram used: %w", err)
	}
	if used > total {
		used = total
	}

	return total - used, total, nil
}

// AllocatorStats returns current and peak memory counters for the
// device. Active is VRAM in use, reserved adds GTT (system memory
// mapped for the GPU) on top. GTT and visible-VRAM figures are
// reported as family extras.
func (a *AMDGPU) AllocatorStats(dev Device) (map[string]uint64, error) {
	dir := a.devicePath(dev)

	vramUsed, err := readSysfsUint(filepath.Join(dir, vramUsedFilename))
	if err != nil {
		return nil, fmt.Errorf("read vram used: %w", err)
	}

	index := deviceIndex(dev)
	stats := map[string]uint64{
		StatActive:     vramUsed,
		StatActivePeak: a.peaks.observe(index, StatActive, vramUsed),
	}

	reserved := vramUsed
	gttUsed, err := readSysfsUint(filepath.Join(dir, gttUsedFilename))
	if err == nil {
		reserved += gttUsed
		stats["gtt_used"] = gttUsed
	}
	stats[StatReserved] = reserved
	stats[StatReservedPeak] = a.peaks.observe(index, StatReserved, reserved)

	// Optional counters; older kernels may not expose them.
	if gttTotal, err := readSysfsUint(filepath.Join(dir, gttTotalFilename)); err == nil {
		stats["gtt_total"] = gttTotal
	}
	if visUsed, err := readSysfsUint(filepath.Join(dir, visVramUsedFile)); err == nil {
		stats["vis_vram_used"] = visUsed
	}
	if visTotal, err := readSysfsUint(filepath.Join(dir, visVramTotalFile)); err == nil {
		stats["vis_vram_total"] = visTotal
	}

	return stats, nil
}

// ResetPeakStats zeroes the tracked memory peaks for the device.
func (a *AMDGPU) ResetPeakStats(dev Device) error {
	a.peaks.reset(deviceIndex(dev))
	return nil
}

func (a *AMDGPU) devicePath(dev Device) string {
	card := "card" + strconv.Itoa(deviceIndex(dev))
	return filepath.Join(a.sysfsRoot, drmClassPath, card, "device")
}

func readSysfsUint(path string) (uint64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return value, nil
}
