package deadline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestElapsedMs(t *testing.T) {
	start := time.Unix(100, 0)

	tests := []struct {
		name     string
		now      time.Time
		expected uint64
	}{
		{"same_instant", start, 0},
		{"sub_millisecond", start.Add(999 * time.Microsecond), 0},
		{"one_and_a_half_seconds", start.Add(1500 * time.Millisecond), 1500},
		{"clock_went_back", start.Add(-time.Second), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ElapsedMs(start, tt.now))
		})
	}
}

func TestBudget_SpendOnlyDecreases(t *testing.T) {
	b := NewBudget(2.5)

	b.Spend(500 * time.Millisecond)
	assert.InDelta(t, 2.0, b.Remaining(), 1e-9)

	b.Spend(-time.Second)
	assert.InDelta(t, 2.0, b.Remaining(), 1e-9)
	assert.False(t, b.Exhausted())

	b.Spend(2 * time.Second)
	assert.True(t, b.Exhausted())
	assert.Equal(t, time.Duration(0), b.RemainingDuration())
	assert.Equal(t, 0, b.WaitMillis())
}

func TestBudget_SpendSinceUsesClock(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBudget(1)
	b.now = func() time.Time { return now }

	start := b.Mark()
	now = now.Add(300 * time.Millisecond)

	elapsed := b.SpendSince(start)

	assert.Equal(t, 300*time.Millisecond, elapsed)
	assert.InDelta(t, 0.7, b.Remaining(), 1e-9)
	assert.Equal(t, 700*time.Millisecond, b.RemainingDuration())
}

func TestBudget_WaitMillis(t *testing.T) {
	assert.Equal(t, 1, NewBudget(0.0001).WaitMillis())
	assert.Equal(t, 1500, NewBudget(1.5).WaitMillis())
	assert.Equal(t, 0, NewBudget(-1).WaitMillis())
	assert.Equal(t, math.MaxInt32, NewBudget(1e12).WaitMillis())
}
