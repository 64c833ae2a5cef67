// Package deadline measures elapsed time and tracks the single timeout budget
// shared by every phase of a bounded operation.
package deadline

import (
	"math"
	"time"
)

// ElapsedMs returns the milliseconds between start and now, or 0 if now precedes start.
func ElapsedMs(start, now time.Time) uint64 {
	d := now.Sub(start)
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Millisecond)
}

// Budget is the remaining wall-clock allowance of one multi-phase operation.
// It only decreases. A Budget is not safe for concurrent use.
type Budget struct {
	remaining float64
	now       func() time.Time
}

func NewBudget(seconds float64) *Budget {
	return &Budget{remaining: seconds, now: time.Now}
}

// Remaining returns the seconds left; zero or below means exhausted.
func (b *Budget) Remaining() float64 {
	return b.remaining
}

func (b *Budget) RemainingDuration() time.Duration {
	if b.remaining <= 0 {
		return 0
	}
	return time.Duration(math.Round(b.remaining * float64(time.Second)))
}

func (b *Budget) Exhausted() bool {
	return b.remaining <= 0
}

// Spend deducts d. Negative durations are ignored.
func (b *Budget) Spend(d time.Duration) {
	if d > 0 {
		b.remaining -= d.Seconds()
	}
}

// SpendSince deducts the time elapsed since start and returns it.
func (b *Budget) SpendSince(start time.Time) time.Duration {
	elapsed := b.now().Sub(start)
	b.Spend(elapsed)
	return elapsed
}

// Mark samples the budget's clock, to be passed to SpendSince later.
func (b *Budget) Mark() time.Time {
	return b.now()
}

// WaitMillis converts the remaining budget to a readiness-wait timeout in
// milliseconds, rounded up so a sub-millisecond remainder still waits.
func (b *Budget) WaitMillis() int {
	if b.remaining <= 0 {
		return 0
	}
	ms := math.Ceil(math.Round(b.remaining*1e6) / 1e3)
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}
