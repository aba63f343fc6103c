package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapperReadyOnFirstAttempt(t *testing.T) {
	pinger := &fakePinger{}
	prober := NewProber(pinger, time.Second, nil)
	cache := NewCache(prober, time.Hour, nil)

	b := NewBootstrapper(prober, cache, RetryPlan{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, nil, nil)

	assert.Equal(t, StateIdle, b.State())

	state := b.Run(context.Background())

	assert.Equal(t, StateReady, state)
	assert.Equal(t, StateReady, b.State())
	assert.Equal(t, 1, pinger.callCount())

	// Verdict seeded: no re-probe on the first request.
	assert.True(t, cache.IsAvailable(context.Background()))
	assert.Equal(t, 1, pinger.callCount())
}

func TestBootstrapperBackoffScheduleEndsDegraded(t *testing.T) {
	pinger := &fakePinger{err: errors.New("connection refused")}
	prober := NewProber(pinger, time.Second, nil)
	cache := NewCache(prober, time.Hour, nil)

	b := NewBootstrapper(prober, cache, RetryPlan{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}, nil, nil)

	start := time.Now()
	state := b.Run(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, StateDegraded, state)
	assert.Equal(t, 3, pinger.callCount(), "exactly maxAttempts probes")

	// Delays of 100ms then 200ms separate the three attempts.
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 900*time.Millisecond)

	// Degraded verdict is seeded, not left unknown.
	snapshot := cache.Snapshot()
	assert.True(t, snapshot.Known)
	assert.False(t, snapshot.Available)
}

func TestBootstrapperRecoversOnLaterAttempt(t *testing.T) {
	pinger := &fakePinger{err: errors.New("connection refused")}
	prober := NewProber(pinger, time.Second, nil)
	cache := NewCache(prober, time.Hour, nil)

	b := NewBootstrapper(prober, cache, RetryPlan{
		MaxAttempts:       5,
		InitialDelay:      20 * time.Millisecond,
		BackoffMultiplier: 1.0,
	}, nil, nil)

	go func() {
		time.Sleep(30 * time.Millisecond)
		pinger.setError(nil)
	}()

	state := b.Run(context.Background())

	assert.Equal(t, StateReady, state)
	assert.True(t, cache.Snapshot().Available)
}

func TestBootstrapperRunsWarmupOnReady(t *testing.T) {
	pinger := &fakePinger{}
	prober := NewProber(pinger, time.Second, nil)
	cache := NewCache(prober, time.Hour, nil)

	var mu sync.Mutex
	warmupRuns := 0
	warmup := func(ctx context.Context) error {
		mu.Lock()
		warmupRuns++
		mu.Unlock()
		return nil
	}

	b := NewBootstrapper(prober, cache, RetryPlan{MaxAttempts: 1, InitialDelay: time.Millisecond, BackoffMultiplier: 1.0}, warmup, nil)
	state := b.Run(context.Background())

	require.Equal(t, StateReady, state)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, warmupRuns)
}

func TestBootstrapperSkipsWarmupWhenDegraded(t *testing.T) {
	pinger := &fakePinger{err: errors.New("connection refused")}
	prober := NewProber(pinger, time.Second, nil)
	cache := NewCache(prober, time.Hour, nil)

	warmupRan := false
	warmup := func(ctx context.Context) error {
		warmupRan = true
		return nil
	}

	b := NewBootstrapper(prober, cache, RetryPlan{MaxAttempts: 1, InitialDelay: time.Millisecond, BackoffMultiplier: 1.0}, warmup, nil)
	state := b.Run(context.Background())

	assert.Equal(t, StateDegraded, state)
	assert.False(t, warmupRan)
}

func TestBootstrapperWarmupFailureIsNotFatal(t *testing.T) {
	pinger := &fakePinger{}
	prober := NewProber(pinger, time.Second, nil)
	cache := NewCache(prober, time.Hour, nil)

	warmup := func(ctx context.Context) error {
		return errors.New("migration lock held")
	}

	b := NewBootstrapper(prober, cache, RetryPlan{MaxAttempts: 1, InitialDelay: time.Millisecond, BackoffMultiplier: 1.0}, warmup, nil)
	state := b.Run(context.Background())

	assert.Equal(t, StateReady, state)
}

func TestRetryPlanBudget(t *testing.T) {
	plan := RetryPlan{MaxAttempts: 3, InitialDelay: 2 * time.Second, BackoffMultiplier: 2.0}

	// 3 probes at 5s each plus delays of 2s and 4s.
	assert.Equal(t, 21*time.Second, plan.Budget(5*time.Second))
}

func TestBootStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "probing", StateProbing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "degraded", StateDegraded.String())
}
