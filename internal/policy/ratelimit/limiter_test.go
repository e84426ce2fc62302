package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitDelaysSameHost(t *testing.T) {
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://yandex.ru/search/?text=a"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://yandex.ru/search/?text=b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.ru/"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.ru/"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHostOverride(t *testing.T) {
	l := New(Config{HostRPS: map[string]float64{"DataNewton.ru": 0.01}})
	ctx := context.Background()

	// default is unlimited
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, "https://shop.example.ru/"))
	}

	require.NoError(t, l.Wait(ctx, "https://datanewton.ru/search?query=1"))
	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://datanewton.ru/search?query=2"))
}
