package core

import (
	"context"
	"sync"
	"time"
)

// PendingEnroll links an in-flight server-initiated enroll command to the
// employee it is for, until the device's terminal response consumes it.
type PendingEnroll struct {
	EmployeeID int64
	SlotID     int
	BeganAt    time.Time
}

// ExpiredFunc is invoked when a pending enroll outlives the TTL without a
// terminal device response. Used to emit the enroll_timeout audit row.
type ExpiredFunc func(deviceID string, pending PendingEnroll)

// EnrollTracker is the single-slot-per-device pending-operation store.
// A device can only physically process one enrollment at a time, so a second
// Begin while one is pending is rejected rather than silently overwritten.
type EnrollTracker struct {
	mu       sync.Mutex
	pending  map[string]PendingEnroll
	ttl      time.Duration
	onExpire ExpiredFunc

	now func() time.Time // swapped out in tests
}

func NewEnrollTracker(ttl time.Duration, onExpire ExpiredFunc) *EnrollTracker {
	return &EnrollTracker{
		pending:  make(map[string]PendingEnroll),
		ttl:      ttl,
		onExpire: onExpire,
		now:      time.Now,
	}
}

// Begin records enroll intent for a device. Returns ErrEnrollInProgress while
// an unexpired record exists; an expired leftover is reaped in place.
func (t *EnrollTracker) Begin(deviceID string, employeeID int64, slotID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.pending[deviceID]; ok {
		if !t.expired(existing) {
			return ErrEnrollInProgress
		}
		t.expire(deviceID, existing)
	}

	t.pending[deviceID] = PendingEnroll{
		EmployeeID: employeeID,
		SlotID:     slotID,
		BeganAt:    t.now(),
	}
	return nil
}

// Resolve atomically removes and returns the pending record. A record past
// its TTL counts as absent (and fires the expiry callback), so the sweep
// interval is not a correctness window.
func (t *EnrollTracker) Resolve(deviceID string) (PendingEnroll, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[deviceID]
	if !ok {
		return PendingEnroll{}, false
	}
	if t.expired(p) {
		t.expire(deviceID, p)
		return PendingEnroll{}, false
	}

	delete(t.pending, deviceID)
	return p, true
}

// Cancel drops a pending record without firing the expiry callback, e.g.
// when the enroll command could not be published.
func (t *EnrollTracker) Cancel(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, deviceID)
}

// StartSweeper reaps abandoned records in the background until ctx is done.
func (t *EnrollTracker) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.sweep()
			}
		}
	}()
}

func (t *EnrollTracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for deviceID, p := range t.pending {
		if t.expired(p) {
			t.expire(deviceID, p)
		}
	}
}

// callers hold t.mu
func (t *EnrollTracker) expired(p PendingEnroll) bool {
	return t.now().Sub(p.BeganAt) > t.ttl
}

func (t *EnrollTracker) expire(deviceID string, p PendingEnroll) {
	delete(t.pending, deviceID)
	if t.onExpire != nil {
		t.onExpire(deviceID, p)
	}
}
