// Package memmon tracks accelerator device memory utilization over a
// session.
//
// A Monitor owns one background goroutine that samples free device
// memory while a monitoring episode is active, folding the readings
// into a running minimum. On demand it reports aggregate figures: the
// minimum free memory seen during the episode, current free and total
// memory, allocator counters, and the derived system peak (total minus
// minimum free, the worst-case memory pressure of the episode).
//
// Telemetry must never abort the host workload: if the device's
// capabilities cannot be probed at construction, the monitor disables
// itself permanently and all operations become cheap no-ops.
package memmon

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NavarchProject/memtrack/pkg/clock"
	"github.com/NavarchProject/memtrack/pkg/device"
)

// Aggregate keys written by the monitor itself. Allocator-statistics
// keys (device.StatActive and friends, plus family extras) are merged
// in on every Read.
const (
	KeyMinFree    = "min_free"
	KeyFree       = "free"
	KeyTotal      = "total"
	KeySystemPeak = "system_peak"
)

// Aggregates maps metric names to byte counts or counter values.
// Missing keys read as zero.
type Aggregates map[string]uint64

// Get returns the value for key, or zero if absent.
func (a Aggregates) Get(key string) uint64 {
	return a[key]
}

// Clone returns an independent copy of the aggregates.
func (a Aggregates) Clone() Aggregates {
	out := make(Aggregates, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// MiB converts a byte count to mebibytes, rounding up.
func MiB(bytes uint64) uint64 {
	return (bytes + 1<<20 - 1) >> 20
}

// Config holds monitor settings.
type Config struct {
	// PollRate is the sampling frequency in samples per second. A
	// non-positive rate still takes one baseline sample per episode
	// but skips the active polling loop.
	PollRate float64

	// Clock overrides the monitor's time source. Nil means the real
	// clock.
	Clock clock.Clock
}

// Monitor samples free device memory on a background goroutine and
// aggregates the results.
//
// State machine: a monitor is constructed Idle (goroutine parked on a
// closed gate, no CPU cost) or permanently Disabled if the capability
// probe fails. Monitor() opens the gate and starts a sampling episode;
// Stop() closes it and returns a final read. Read() may be called at
// any time, including mid-episode.
//
// The aggregate map and the running minimum are guarded by a single
// mutex: one uncontended lock per sample. The read path only ever
// reads min_free; the episode reset and the sampling loop are its only
// writers, so the minimum is never increased by a concurrent read.
type Monitor struct {
	dev     device.Device
	querier device.Querier
	clk     clock.Clock
	logger  *slog.Logger
	rate    float64

	disabled  bool
	gate      *gate
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	data    Aggregates
	loopErr error
}

// New creates a Monitor bound to the given device and query
// capability. It probes the capability once; on any probe failure
// (including a nil querier for an unrecognized device type) it logs a
// single warning and returns a permanently disabled monitor rather
// than an error, so missing telemetry never aborts the host workload.
// If logger is nil, slog.Default() is used.
func New(dev device.Device, querier device.Querier, cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	m := &Monitor{
		dev:     dev,
		querier: querier,
		clk:     clk,
		logger:  logger.With("component", "memmon", "device", dev.String()),
		rate:    cfg.PollRate,
		gate:    newGate(),
		done:    make(chan struct{}),
		data:    make(Aggregates),
	}

	if err := m.probe(); err != nil {
		m.logger.Warn("memory monitor disabled", "error", err)
		m.disabled = true
		return m
	}

	go m.run()
	return m
}

func (m *Monitor) probe() error {
	if m.querier == nil {
		return fmt.Errorf("unsupported device type %q", m.dev.Type)
	}
	if _, _, err := m.querier.MemoryInfo(m.dev); err != nil {
		return fmt.Errorf("memory info probe: %w", err)
	}
	if _, err := m.querier.AllocatorStats(m.dev); err != nil {
		return fmt.Errorf("allocator stats probe: %w", err)
	}
	return nil
}

// Device returns the device reference the monitor is bound to.
func (m *Monitor) Device() device.Device {
	return m.dev
}

// Disabled reports whether the construction-time capability probe
// failed. A disabled monitor ignores Monitor() and serves its (empty)
// aggregates from Read without touching the device.
func (m *Monitor) Disabled() bool {
	return m.disabled
}

// Monitor starts a sampling episode. No-op if the monitor is disabled
// or an episode is already active: a second call mid-episode does not
// reset the running minimum.
func (m *Monitor) Monitor() {
	if m.disabled {
		return
	}
	m.gate.Set()
}

// Stop ends the current sampling episode, if any, and returns a final
// read. Idempotent while idle.
func (m *Monitor) Stop() (Aggregates, error) {
	m.gate.Clear()
	return m.Read()
}

// Read returns the current aggregates. For an enabled monitor it
// performs a fresh query of memory info and allocator statistics,
// merges the counters into the aggregate map, and derives free, total
// and system_peak = total - min_free. min_free itself is left to the
// sampling loop: a read during an active episode can never increase
// it. The returned map is a snapshot copy.
//
// Runtime query failures are not swallowed: Read returns the query
// error, or the error that aborted the current episode's sampling
// loop.
func (m *Monitor) Read() (Aggregates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disabled {
		return m.data.Clone(), nil
	}
	if m.loopErr != nil {
		return nil, fmt.Errorf("sampling aborted: %w", m.loopErr)
	}

	free, total, err := m.querier.MemoryInfo(m.dev)
	if err != nil {
		return nil, fmt.Errorf("memory info: %w", err)
	}
	stats, err := m.querier.AllocatorStats(m.dev)
	if err != nil {
		return nil, fmt.Errorf("allocator stats: %w", err)
	}

	for k, v := range stats {
		m.data[k] = v
	}
	m.data[KeyFree] = free
	m.data[KeyTotal] = total
	m.data[KeySystemPeak] = total - m.data[KeyMinFree]

	return m.data.Clone(), nil
}

// DumpDebug writes a diagnostic view to w: the recorded aggregates in
// MiB (ceiling division), a raw allocator-statistics breakdown with
// peak counters indented, and a one-line memory summary. It queries
// the device directly and never alters the monitor's state.
func (m *Monitor) DumpDebug(w io.Writer) {
	m.mu.Lock()
	snap := m.data.Clone()
	m.mu.Unlock()

	fmt.Fprintf(w, "%s recorded data:\n", m.dev)
	for _, k := range sortedKeys(snap) {
		fmt.Fprintf(w, "  %s: %d MiB\n", k, MiB(snap[k]))
	}

	if m.disabled {
		return
	}

	if stats, err := m.querier.AllocatorStats(m.dev); err == nil {
		fmt.Fprintf(w, "%s raw allocator stats:\n", m.dev)
		for _, k := range sortedKeys(stats) {
			indent := "  "
			if strings.Contains(k, "peak") {
				indent = "\t"
			}
			fmt.Fprintf(w, "%s%s: %d MiB\n", indent, k, MiB(stats[k]))
		}
	}
	if free, total, err := m.querier.MemoryInfo(m.dev); err == nil {
		fmt.Fprintf(w, "%s memory summary: %d MiB free of %d MiB total\n",
			m.dev, MiB(free), MiB(total))
	}
}

// Close terminates the background goroutine. It never blocks waiting
// for an in-flight sample and is safe to call multiple times. The
// aggregates remain readable after Close.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

// run is the monitor's background goroutine. It parks on the gate
// while idle and owns all min_free writes during an episode.
func (m *Monitor) run() {
	for {
		select {
		case <-m.gate.opened():
		case <-m.done:
			return
		}

		if err := m.beginEpisode(); err != nil {
			m.abort(err)
			continue
		}

		if m.rate <= 0 {
			// Monitoring requested with sampling disabled: keep the
			// baseline, skip the active loop.
			m.gate.Clear()
			continue
		}

		interval := time.Duration(float64(time.Second) / m.rate)
		for m.gate.IsSet() {
			free, _, err := m.querier.MemoryInfo(m.dev)
			if err != nil {
				m.abort(err)
				break
			}

			m.mu.Lock()
			if free < m.data[KeyMinFree] {
				m.data[KeyMinFree] = free
			}
			m.mu.Unlock()

			t := m.clk.NewTimer(interval)
			select {
			case <-t.C():
			case <-m.done:
				t.Stop()
				return
			}
		}
	}
}

// beginEpisode resets the device's peak counters, clears the aggregate
// map and records the baseline free-memory sample as min_free.
func (m *Monitor) beginEpisode() error {
	if err := m.querier.ResetPeakStats(m.dev); err != nil {
		return fmt.Errorf("reset peak stats: %w", err)
	}
	free, _, err := m.querier.MemoryInfo(m.dev)
	if err != nil {
		return fmt.Errorf("baseline sample: %w", err)
	}

	m.mu.Lock()
	m.data = make(Aggregates)
	m.data[KeyMinFree] = free
	m.loopErr = nil
	m.mu.Unlock()
	return nil
}

// abort ends the episode after a device-query failure. The error is
// sticky until the next episode and surfaces from Read/Stop, since a
// failure mid-episode indicates a device fault the caller should see.
func (m *Monitor) abort(err error) {
	m.mu.Lock()
	m.loopErr = err
	m.mu.Unlock()

	m.gate.Clear()
	m.logger.Error("sampling episode aborted", "error", err)
}

func sortedKeys(a map[string]uint64) []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
