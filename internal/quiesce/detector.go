// Package quiesce infers the end of an incremental crawl from a quiet period.
//
// The host bundler has no "graph complete" callback, so every discovery event
// calls Touch, which replaces a single debounce timer. When the timer elapses
// the detector fires once. Firing again in the same build is a configuration
// error: the quiet period is too short for the machine or the build size.
package quiesce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultQuiet is the quiet period used when Config.Quiet is not positive.
const DefaultQuiet = time.Second

// ErrCompletedTwice reports a second completion within one build.
var ErrCompletedTwice = errors.New("quiesce: crawl completed twice")

// Config configures a Detector.
type Config struct {
	// Quiet is how long no Touch may happen before the crawl counts as done.
	Quiet time.Duration
	// OnFire is invoked exactly once, on the goroutine that fired.
	OnFire func()
	// OnFatal receives the double-fire error from the timer path.
	OnFatal func(error)
}

// Detector is a debounced single-fire trigger. Safe for concurrent use.
type Detector struct {
	quiet   time.Duration
	onFire  func()
	onFatal func(error)

	mu      sync.Mutex
	timer   *time.Timer
	touches uint64
	fired   bool
	err     error
	done    chan struct{}
}

// New creates an idle detector. Nothing happens until Touch, Arm or Fire.
func New(cfg Config) *Detector {
	quiet := cfg.Quiet
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Detector{
		quiet:   quiet,
		onFire:  cfg.OnFire,
		onFatal: cfg.OnFatal,
		done:    make(chan struct{}),
	}
}

// Quiet returns the configured quiet period.
func (d *Detector) Quiet() time.Duration { return d.quiet }

// Touch restarts the quiet period. The pending timer, if any, is replaced.
func (d *Detector) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.touches++
	d.resetLocked()
}

// Arm starts the quiet period unless a timer is pending or the detector fired.
func (d *Detector) Arm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fired || d.timer != nil {
		return
	}
	d.resetLocked()
}

// Fire completes the crawl now. A second completion returns ErrCompletedTwice.
func (d *Detector) Fire() error {
	_, err := d.fire(false, false)
	return err
}

// Settle fires unless the detector already fired. It reports whether this
// call was the one that fired.
func (d *Detector) Settle() bool {
	fired, _ := d.fire(false, true)
	return fired
}

// Fired reports whether the detector has fired.
func (d *Detector) Fired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fired
}

// Touches returns how many times Touch was called.
func (d *Detector) Touches() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.touches
}

// Done is closed when the detector fires.
func (d *Detector) Done() <-chan struct{} { return d.done }

// Err returns the double-fire error, if one happened.
func (d *Detector) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Wait blocks until the detector fires or ctx is done.
func (d *Detector) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels a pending timer without firing.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Detector) resetLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		if d.timer != t {
			// replaced after it had already started running
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		_, _ = d.fire(true, false)
	})
	d.timer = t
}

func (d *Detector) fire(fromTimer, settle bool) (bool, error) {
	d.mu.Lock()
	if d.fired && settle {
		d.mu.Unlock()
		return false, nil
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.fired {
		err := fmt.Errorf("%w: the quiet period of %v is too short for this machine or build size; increase [build].quiet_period", ErrCompletedTwice, d.quiet)
		if d.err == nil {
			d.err = err
		}
		onFatal := d.onFatal
		d.mu.Unlock()
		if fromTimer && onFatal != nil {
			onFatal(err)
		}
		return false, err
	}
	d.fired = true
	close(d.done)
	onFire := d.onFire
	d.mu.Unlock()

	if onFire != nil {
		onFire()
	}
	return true, nil
}
