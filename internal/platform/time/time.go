// Package time contains time related helpers
package time

import (
	"sync"
	"time"
)

var now = time.Now

// Timer measures elapsed wall time between Tic and Toc. It is diagnostic only
type Timer struct {
	mu    sync.Mutex
	start time.Time
	laps  map[string]time.Duration
}

// NewTimer returns a started Timer
func NewTimer() *Timer { return &Timer{start: now(), laps: map[string]time.Duration{}} }

// Tic resets the start instant
func (t *Timer) Tic() {
	t.mu.Lock()
	t.start = now()
	t.mu.Unlock()
}

// Toc returns the elapsed time since the last Tic
func (t *Timer) Toc() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now().Sub(t.start)
}

// Lap records the elapsed time since the last Tic under name and returns it
func (t *Timer) Lap(name string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := now().Sub(t.start)
	t.laps[name] = d
	return d
}

// Laps returns a copy of the recorded laps
func (t *Timer) Laps() map[string]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]time.Duration, len(t.laps))
	for k, v := range t.laps {
		out[k] = v
	}
	return out
}

var process = NewTimer()

// Tic resets the process-wide timer
func Tic() { process.Tic() }

// Toc returns the elapsed time on the process-wide timer
func Toc() time.Duration { return process.Toc() }
