// Package clock abstracts wall time so the scheduling pipeline can be
// driven deterministically in tests. All instants in this system are naive
// UTC: the zone is stripped before anything is stored or compared.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock provides the current naive-UTC instant and interruptible sleeps.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	Sleep(ctx context.Context, d time.Duration) error
}

// Naive strips sub-second precision and the zone, yielding the canonical
// instant representation used across the database and hashes.
func Naive(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), 0, time.UTC)
}

// System is the real clock.
type System struct{}

func (System) Now() time.Time { return Naive(time.Now()) }

func (System) Since(t time.Time) time.Duration { return Naive(time.Now()).Sub(t) }

func (System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fake is a manually advanced clock for tests. Sleep advances it instead of
// blocking.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: Naive(start)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		f.Advance(d)
	}
	return nil
}
