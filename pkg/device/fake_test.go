package device

import (
	"errors"
	"testing"
)

var fakeDev = Device{Type: "test", Index: 0}

func TestFake_FreeSequence(t *testing.T) {
	f := NewFake(1000, 800, 600, 900)

	want := []uint64{800, 600, 900, 900, 900}
	for i, w := range want {
		free, total, err := f.MemoryInfo(fakeDev)
		if err != nil {
			t.Fatalf("MemoryInfo %d failed: %v", i, err)
		}
		if total != 1000 {
			t.Errorf("total = %d, want 1000", total)
		}
		if free != w {
			t.Errorf("sample %d = %d, want %d", i, free, w)
		}
	}

	if f.MemoryQueries() != len(want) {
		t.Errorf("MemoryQueries = %d, want %d", f.MemoryQueries(), len(want))
	}
}

func TestFake_EmptySequenceReportsAllFree(t *testing.T) {
	f := NewFake(4096)

	free, total, err := f.MemoryInfo(fakeDev)
	if err != nil {
		t.Fatalf("MemoryInfo failed: %v", err)
	}
	if free != 4096 || total != 4096 {
		t.Errorf("got %d/%d, want 4096/4096", free, total)
	}
}

func TestFake_SetFreeSequenceRewinds(t *testing.T) {
	f := NewFake(1000, 800, 600)
	f.MemoryInfo(fakeDev)
	f.MemoryInfo(fakeDev)

	f.SetFreeSequence(500, 400)
	free, _, err := f.MemoryInfo(fakeDev)
	if err != nil {
		t.Fatalf("MemoryInfo failed: %v", err)
	}
	if free != 500 {
		t.Errorf("first sample after rewind = %d, want 500", free)
	}
}

func TestFake_ErrorInjection(t *testing.T) {
	f := NewFake(1000, 800)
	f.SetStats(map[string]uint64{StatActive: 10})

	errMem := errors.New("mem")
	errStats := errors.New("stats")
	errReset := errors.New("reset")

	f.SetMemoryInfoError(errMem)
	if _, _, err := f.MemoryInfo(fakeDev); !errors.Is(err, errMem) {
		t.Errorf("MemoryInfo error = %v", err)
	}
	if f.MemoryQueries() != 0 {
		t.Errorf("failed queries should not be counted, got %d", f.MemoryQueries())
	}

	f.SetAllocatorStatsError(errStats)
	if _, err := f.AllocatorStats(fakeDev); !errors.Is(err, errStats) {
		t.Errorf("AllocatorStats error = %v", err)
	}

	f.SetResetError(errReset)
	if err := f.ResetPeakStats(fakeDev); !errors.Is(err, errReset) {
		t.Errorf("ResetPeakStats error = %v", err)
	}
	if f.PeakResets() != 0 {
		t.Errorf("failed resets should not be counted, got %d", f.PeakResets())
	}

	// Clearing the errors restores normal operation.
	f.SetMemoryInfoError(nil)
	f.SetAllocatorStatsError(nil)
	f.SetResetError(nil)

	if _, _, err := f.MemoryInfo(fakeDev); err != nil {
		t.Errorf("MemoryInfo after clear failed: %v", err)
	}
	stats, err := f.AllocatorStats(fakeDev)
	if err != nil {
		t.Errorf("AllocatorStats after clear failed: %v", err)
	}
	if stats[StatActive] != 10 {
		t.Errorf("stats = %v", stats)
	}
	if err := f.ResetPeakStats(fakeDev); err != nil {
		t.Errorf("ResetPeakStats after clear failed: %v", err)
	}
	if f.PeakResets() != 1 {
		t.Errorf("PeakResets = %d, want 1", f.PeakResets())
	}
}

func TestFake_StatsAreCopied(t *testing.T) {
	f := NewFake(1000)
	f.SetStats(map[string]uint64{StatActive: 10})

	stats, err := f.AllocatorStats(fakeDev)
	if err != nil {
		t.Fatalf("AllocatorStats failed: %v", err)
	}
	stats[StatActive] = 99

	fresh, _ := f.AllocatorStats(fakeDev)
	if fresh[StatActive] != 10 {
		t.Error("mutating returned stats leaked into the fake")
	}
}
