package memmon

import (
	"testing"
	"time"
)

func TestGate_SetClear(t *testing.T) {
	g := newGate()

	if g.IsSet() {
		t.Fatal("new gate should be closed")
	}

	g.Set()
	if !g.IsSet() {
		t.Fatal("gate should be open after Set")
	}
	g.Set() // idempotent

	g.Clear()
	if g.IsSet() {
		t.Fatal("gate should be closed after Clear")
	}
	g.Clear() // idempotent
}

func TestGate_OpenedWakesWaiter(t *testing.T) {
	g := newGate()

	woke := make(chan struct{})
	go func() {
		<-g.opened()
		close(woke)
	}()

	select {
	case <-woke:
		t.Fatal("waiter woke before Set")
	case <-time.After(10 * time.Millisecond):
	}

	g.Set()
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter did not wake after Set")
	}

	// While open, waits fall through immediately.
	select {
	case <-g.opened():
	default:
		t.Fatal("opened() should be closed while the gate is open")
	}
}

func TestGate_ClearBlocksNewWaiters(t *testing.T) {
	g := newGate()
	g.Set()
	g.Clear()

	select {
	case <-g.opened():
		t.Fatal("waiter fell through a cleared gate")
	default:
	}
}
