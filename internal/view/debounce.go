package view

import (
	"sync"
	"time"
)

const DefaultDebounceWindow = 300 * time.Millisecond

// Debouncer admits one call per key within a window. Calls inside the
// window are dropped, not delayed.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{window: window, last: map[string]time.Time{}, now: time.Now}
}

func (d *Debouncer) Allow(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if last, ok := d.last[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.last[key] = now
	return true
}

// Do runs fn unless a call for key was admitted within the window. It
// reports whether fn ran.
func (d *Debouncer) Do(key string, fn func()) bool {
	if !d.Allow(key) {
		return false
	}
	fn()
	return true
}
