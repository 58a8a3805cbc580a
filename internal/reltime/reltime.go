// Package reltime provides the monotonic relative-time source the item
// layer uses for expiry comparisons: a 32-bit seconds counter, optionally
// advanced once a second by a background goroutine, mirroring memcached's
// current_time global without requiring every caller to hit time.Now() on
// the hot path.
//
// Grounded in the teacher's internal/genring package, which stamped every
// generation with time.Time at creation and compared against a TTL; this
// package extracts that "cheap, coarse clock" idea into its own leaf
// component since the item layer needs it independently of any generation
// or arena concept.
//
// © 2025 itemkernel authors. MIT License.
package reltime

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic relative-time source. The zero value is not usable;
// construct with New.
type Clock struct {
	epoch time.Time
	now   atomic.Uint32
	stop  chan struct{}
}

// New constructs a Clock whose relative time 0 is the moment of
// construction, with its counter already primed to the current value.
func New() *Clock {
	c := &Clock{epoch: time.Now()}
	c.now.Store(uint32(time.Since(c.epoch).Seconds()))
	return c
}

// Now returns the current relative time in seconds since the clock's epoch.
func (c *Clock) Now() uint32 { return c.now.Load() }

// Refresh recomputes Now() from the wall clock. Safe to call from any
// goroutine; used both by the background ticker and directly by tests that
// want to avoid sleeping.
func (c *Clock) Refresh() {
	c.now.Store(uint32(time.Since(c.epoch).Seconds()))
}

// Set forces Now() to return v until the next Refresh or RunTicker tick.
// Exists so expiry-path tests can exercise exact boundary seconds (see
// spec scenario S2) without sleeping in wall-clock time; production code
// never calls it.
func (c *Clock) Set(v uint32) {
	c.now.Store(v)
}

// RunTicker starts a background goroutine that calls Refresh once per
// interval until the returned stop function is called. It is purely a
// convenience so callers don't pay time.Now()'s cost on every Get; it never
// inspects or mutates items (it is not a background expiry sweeper — the
// spec requires expiry to stay a lazy, read-path-only concern).
func (c *Clock) RunTicker(interval time.Duration) (stop func()) {
	if c.stop != nil {
		panic("reltime: ticker already running")
	}
	stopCh := make(chan struct{})
	c.stop = stopCh
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.Refresh()
			case <-stopCh:
				return
			}
		}
	}()
	return func() {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}
}
