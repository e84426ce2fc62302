package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHumanPickStaysInRange(t *testing.T) {
	t.Parallel()

	h := NewHuman()
	for i := 0; i < 200; i++ {
		d := h.Pick(General)
		require.GreaterOrEqual(t, d, General.Min)
		require.LessOrEqual(t, d, General.Max)
	}
}

func TestHumanPickUsesSource(t *testing.T) {
	t.Parallel()

	h := &Human{rand: func() float64 { return 0.5 }}
	require.Equal(t, 350*time.Millisecond, h.Pick(PreClick))
	require.Equal(t, time.Second, h.Pick(Range{Min: time.Second, Max: time.Second}))
}

func TestSleepHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second, "sleep should exit immediately when context is done")
}

func TestRecorderCapturesRanges(t *testing.T) {
	t.Parallel()

	rec := &Recorder{}
	rec.Pause(context.Background(), General)
	rec.Pause(context.Background(), Step)
	require.Equal(t, []Range{General, Step}, rec.Calls)
}
