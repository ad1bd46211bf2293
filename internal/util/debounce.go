package util

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of Trigger calls into a single call of fn, made
// once no Trigger has happened for the wait period. fn gets the last argument.
type Debouncer struct {
	mu      sync.Mutex
	wait    time.Duration
	fn      func(string)
	timer   *time.Timer
	arg     string
	gen     uint64
	stopped bool
}

func NewDebouncer(wait time.Duration, fn func(string)) *Debouncer {
	return &Debouncer{
		wait: wait,
		fn:   fn,
	}
}

func (d *Debouncer) Trigger(arg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.arg = arg
	d.gen++
	gen := d.gen

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// A newer Trigger owns the slot even if this timer could not be stopped in time.
	if d.stopped || gen != d.gen {
		d.mu.Unlock()

		return
	}
	arg := d.arg
	d.arg = ""
	d.mu.Unlock()

	d.fn(arg)
}

// Stop drops any pending call. Calls already running are not interrupted.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
