package timectrl

import (
	"sync"
	"time"
)

// Clock supplies the epoch at which observer and target positions are
// resolved.
type Clock interface {
	// Now returns the current epoch.
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

// Now implements Clock.
func (System) Now() time.Time { return time.Now().UTC() }

// FixedClock returns a pinned epoch until it is moved explicitly. It is safe
// for concurrent use.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

// Fixed constructs a clock pinned at t.
func Fixed(t time.Time) *FixedClock {
	return &FixedClock{now: t.UTC()}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// SetTime pins the clock at t.
func (c *FixedClock) SetTime(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new epoch.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Parse returns a FixedClock for an RFC 3339 epoch, or System when epoch is
// empty.
func Parse(epoch string) (Clock, error) {
	if epoch == "" {
		return System{}, nil
	}
	t, err := time.Parse(time.RFC3339, epoch)
	if err != nil {
		return nil, err
	}
	return Fixed(t), nil
}
