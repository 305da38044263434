package view

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultLoadingTimeout = 12 * time.Second
	DefaultWatchdogTick   = time.Second
)

type LoadingOptions struct {
	Timeout time.Duration
	Tick    time.Duration
	// OnChange is called outside the lock whenever visibility flips.
	OnChange func(visible bool)
	Logger   Logger
	Now      func() time.Time
}

// LoadingIndicator tracks the blocking loading overlay. A watchdog
// force-hides it when it stays visible longer than Timeout, and Recover
// force-hides it when a tracked operation panics.
type LoadingIndicator struct {
	mu       sync.Mutex
	visible  bool
	inFlight int
	shownAt  time.Time
	timeout  time.Duration
	tick     time.Duration
	onChange func(bool)
	logger   Logger
	now      func() time.Time
}

func NewLoadingIndicator(opts LoadingOptions) *LoadingIndicator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultLoadingTimeout
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultWatchdogTick
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &LoadingIndicator{
		timeout:  timeout,
		tick:     tick,
		onChange: opts.OnChange,
		logger:   opts.Logger,
		now:      now,
	}
}

func (l *LoadingIndicator) Show() {
	l.mu.Lock()
	if l.visible {
		l.mu.Unlock()
		return
	}
	l.visible = true
	l.shownAt = l.now()
	l.mu.Unlock()
	l.notify(true)
}

func (l *LoadingIndicator) Hide() {
	l.mu.Lock()
	if !l.visible {
		l.mu.Unlock()
		return
	}
	l.visible = false
	l.mu.Unlock()
	l.notify(false)
}

func (l *LoadingIndicator) Visible() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visible
}

// ForceHide hides the indicator, forgets tracked operations and logs
// reason when it was visible.
func (l *LoadingIndicator) ForceHide(reason string) {
	l.mu.Lock()
	l.inFlight = 0
	was := l.visible
	l.visible = false
	l.mu.Unlock()
	if !was {
		return
	}
	l.logf("loading indicator force-hidden: %s", reason)
	l.notify(false)
}

// Recover must be deferred directly. It force-hides the indicator on panic
// and then re-panics.
func (l *LoadingIndicator) Recover() {
	if r := recover(); r != nil {
		l.ForceHide(fmt.Sprintf("panic: %v", r))
		panic(r)
	}
}

// Track shows the indicator for the duration of fn. Overlapping tracked
// operations keep it visible until the last one finishes.
func (l *LoadingIndicator) Track(fn func() error) error {
	l.begin()
	defer l.end()
	defer l.Recover()
	return fn()
}

func (l *LoadingIndicator) begin() {
	l.mu.Lock()
	l.inFlight++
	shown := !l.visible
	if shown {
		l.visible = true
		l.shownAt = l.now()
	}
	l.mu.Unlock()
	if shown {
		l.notify(true)
	}
}

func (l *LoadingIndicator) end() {
	l.mu.Lock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	hidden := l.inFlight == 0 && l.visible
	if hidden {
		l.visible = false
	}
	l.mu.Unlock()
	if hidden {
		l.notify(false)
	}
}

// Run is the watchdog loop. It returns when ctx is done.
func (l *LoadingIndicator) Run(ctx context.Context) {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.check()
		}
	}
}

func (l *LoadingIndicator) check() bool {
	l.mu.Lock()
	stuck := l.visible && l.now().Sub(l.shownAt) >= l.timeout
	l.mu.Unlock()
	if !stuck {
		return false
	}
	l.ForceHide(fmt.Sprintf("visible for more than %s", l.timeout))
	return true
}

func (l *LoadingIndicator) notify(visible bool) {
	if l.onChange != nil {
		l.onChange(visible)
	}
}

func (l *LoadingIndicator) logf(format string, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}
