package view

import (
	"testing"
	"time"
)

func TestDebouncerDropsCallsInsideWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	d := NewDebouncer(0)
	d.now = clock.Now

	runs := 0
	d.Do("modal:open", func() { runs++ })
	clock.Advance(100 * time.Millisecond)
	d.Do("modal:open", func() { runs++ })
	if !d.Allow("modal:close") {
		t.Fatalf("expected independent keys")
	}
	clock.Advance(250 * time.Millisecond)
	d.Do("modal:open", func() { runs++ })
	if runs != 2 {
		t.Fatalf("expected 2 runs, got %d", runs)
	}
}
