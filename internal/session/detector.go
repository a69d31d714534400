package session

import (
	"sync"
	"time"
)

// Detector fires once when a recording has been running for its timeout.
// Arming again restarts the countdown.
type Detector struct {
	timeout   time.Duration
	mu        sync.Mutex
	timer     *time.Timer
	onTimeout func()
}

func NewDetector(timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Detector{timeout: timeout}
}

func (d *Detector) OnTimeout(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onTimeout = callback
}

func (d *Detector) Arm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d.timeout, func() {
		d.mu.Lock()
		if d.timer != timer {
			d.mu.Unlock()
			return
		}
		callback := d.onTimeout
		d.timer = nil
		d.mu.Unlock()

		if callback != nil {
			callback()
		}
	})
	d.timer = timer
}

func (d *Detector) Disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Detector) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
