package device

import "sync"

// Fake is a scripted Querier for testing. Free-memory readings are
// served from a fixed sequence (the last value repeats once the
// sequence is exhausted), allocator stats are whatever was last set,
// and every capability supports failure injection.
type Fake struct {
	mu         sync.Mutex
	total      uint64
	free       []uint64
	pos        int
	stats      map[string]uint64
	memErr     error
	statsErr   error
	resetErr   error
	memQueries int
	peakResets int
}

// NewFake creates a fake querier with the given total memory and
// scripted free-memory sequence. With no sequence, every reading
// reports the full total as free.
func NewFake(total uint64, free ...uint64) *Fake {
	return &Fake{total: total, free: free}
}

// MemoryInfo serves the next scripted free-memory reading.
func (f *Fake) MemoryInfo(dev Device) (uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.memErr != nil {
		return 0, 0, f.memErr
	}

	f.memQueries++
	if len(f.free) == 0 {
		return f.total, f.total, nil
	}
	free := f.free[f.pos]
	if f.pos < len(f.free)-1 {
		f.pos++
	}
	return free, f.total, nil
}

// AllocatorStats returns a copy of the configured stats map.
func (f *Fake) AllocatorStats(dev Device) (map[string]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.statsErr != nil {
		return nil, f.statsErr
	}

	stats := make(map[string]uint64, len(f.stats))
	for k, v := range f.stats {
		stats[k] = v
	}
	return stats, nil
}

// ResetPeakStats records the reset request.
func (f *Fake) ResetPeakStats(dev Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.resetErr != nil {
		return f.resetErr
	}

	f.peakResets++
	return nil
}

// SetStats replaces the allocator stats served by AllocatorStats.
func (f *Fake) SetStats(stats map[string]uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = stats
}

// SetFreeSequence replaces the scripted free-memory sequence and
// rewinds it to the beginning.
func (f *Fake) SetFreeSequence(free ...uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.free = free
	f.pos = 0
}

// SetMemoryInfoError makes MemoryInfo fail with err (nil clears).
func (f *Fake) SetMemoryInfoError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memErr = err
}

// SetAllocatorStatsError makes AllocatorStats fail with err (nil clears).
func (f *Fake) SetAllocatorStatsError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsErr = err
}

// SetResetError makes ResetPeakStats fail with err (nil clears).
func (f *Fake) SetResetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetErr = err
}

// MemoryQueries returns the number of successful MemoryInfo calls.
func (f *Fake) MemoryQueries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memQueries
}

// PeakResets returns the number of successful ResetPeakStats calls.
func (f *Fake) PeakResets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peakResets
}
