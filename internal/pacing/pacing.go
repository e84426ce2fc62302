// Package pacing provides the human-like delays placed between browser actions.
package pacing

import (
	"context"
	"math/rand/v2"
	"time"
)

// Range bounds a randomized pause.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Pause ranges used across the pipeline.
var (
	General  = Range{Min: time.Second, Max: 3 * time.Second}
	PreClick = Range{Min: 200 * time.Millisecond, Max: 500 * time.Millisecond}
	Settle   = Range{Min: 2 * time.Second, Max: 3 * time.Second}
	Step     = Range{Min: 100 * time.Millisecond, Max: 300 * time.Millisecond}
)

// Pacer blocks for a randomized duration within a range.
type Pacer interface {
	Pause(ctx context.Context, r Range)
}

// Human pauses for a uniformly random duration in the range.
type Human struct {
	rand func() float64
}

// NewHuman returns a Pacer drawing from math/rand/v2.
func NewHuman() *Human {
	return &Human{rand: rand.Float64}
}

// Pause sleeps for a random duration in r, returning early when ctx ends.
func (h *Human) Pause(ctx context.Context, r Range) {
	_ = Sleep(ctx, h.Pick(r))
}

// Pick returns a duration in [r.Min, r.Max].
func (h *Human) Pick(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	f := rand.Float64
	if h != nil && h.rand != nil {
		f = h.rand
	}
	return r.Min + time.Duration(f()*float64(r.Max-r.Min))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Recorder is a Pacer that records requested ranges without sleeping.
type Recorder struct {
	Calls []Range
}

// Pause records r.
func (r *Recorder) Pause(_ context.Context, rg Range) {
	r.Calls = append(r.Calls, rg)
}
