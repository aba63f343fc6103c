package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePinger struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (f *fakePinger) Ping(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	err := f.err
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakePinger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePinger) setError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func TestProbeSuccess(t *testing.T) {
	pinger := &fakePinger{}
	prober := NewProber(pinger, time.Second, nil)

	result := prober.Probe(context.Background())

	assert.True(t, result.Success)
	assert.Empty(t, result.Err)
	assert.Equal(t, 1, pinger.callCount())
}

func TestProbeFailure(t *testing.T) {
	pinger := &fakePinger{err: errors.New("connection refused")}
	prober := NewProber(pinger, time.Second, nil)

	result := prober.Probe(context.Background())

	assert.False(t, result.Success)
	assert.Contains(t, result.Err, "connection refused")
}

func TestProbeTimeout(t *testing.T) {
	pinger := &fakePinger{delay: 200 * time.Millisecond}
	prober := NewProber(pinger, 20*time.Millisecond, nil)

	start := time.Now()
	result := prober.Probe(context.Background())
	elapsed := time.Since(start)

	assert.False(t, result.Success)
	assert.Contains(t, result.Err, "deadline")
	assert.Less(t, elapsed, 150*time.Millisecond, "probe must respect its deadline")
}

func TestProbeNeverPanicsOrErrors(t *testing.T) {
	// A failed probe is a value, not an error path.
	pinger := &fakePinger{err: errors.New("driver: bad connection")}
	prober := NewProber(pinger, time.Second, nil)

	assert.NotPanics(t, func() {
		result := prober.Probe(context.Background())
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Err)
	})
}

func TestProbeDefaultTimeout(t *testing.T) {
	prober := NewProber(&fakePinger{}, 0, nil)
	assert.Equal(t, 5*time.Second, prober.Timeout())
}
