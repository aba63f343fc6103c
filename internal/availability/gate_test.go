package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cloudpulse/cloudpulse-monitor/pkg/errors"
)

type fakeHandle struct {
	mu     sync.Mutex
	closed int
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return nil
}

func (h *fakeHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeOpener struct {
	mu     sync.Mutex
	opens  int
	err    error
	handle *fakeHandle
}

func (o *fakeOpener) Open(ctx context.Context) (Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	if o.handle == nil {
		o.handle = &fakeHandle{}
	}
	return o.handle, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func TestAcquireFailsFastWhenUnavailable(t *testing.T) {
	pinger := &fakePinger{err: errors.New("connection refused")}
	cache := newTestCache(pinger, time.Hour)
	opener := &fakeOpener{}
	gate := NewGate(cache, opener, nil)

	session, err := gate.Acquire(context.Background())

	require.Error(t, err)
	assert.Nil(t, session)
	assert.True(t, apperrors.IsConnectivityError(err))
	assert.Equal(t, "CONNECTION_UNAVAILABLE", apperrors.GetCode(err))
	assert.Equal(t, 0, opener.openCount(), "fail-fast must not touch the pool")
}

func TestAcquireSucceedsWhenAvailable(t *testing.T) {
	cache := newTestCache(&fakePinger{}, time.Hour)
	opener := &fakeOpener{}
	gate := NewGate(cache, opener, nil)

	session, err := gate.Acquire(context.Background())

	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 1, opener.openCount())

	session.Release()
	assert.Equal(t, 1, opener.handle.closeCount())
}

func TestReleaseIsIdempotent(t *testing.T) {
	cache := newTestCache(&fakePinger{}, time.Hour)
	opener := &fakeOpener{}
	gate := NewGate(cache, opener, nil)

	session, err := gate.Acquire(context.Background())
	require.NoError(t, err)

	session.Release()
	session.Release()
	session.Release()

	assert.Equal(t, 1, opener.handle.closeCount())
}

func TestOpenFailureInvalidatesCache(t *testing.T) {
	pinger := &fakePinger{}
	cache := newTestCache(pinger, time.Hour)
	opener := &fakeOpener{err: errors.New("pool exhausted: connection reset")}
	gate := NewGate(cache, opener, nil)

	session, err := gate.Acquire(context.Background())

	require.Error(t, err)
	assert.Nil(t, session)
	assert.Equal(t, "CONNECTION_LOST", apperrors.GetCode(err))

	// Write-through invalidation: the verdict flips without a re-probe.
	probes := pinger.callCount()
	assert.False(t, cache.IsAvailable(context.Background()))
	assert.Equal(t, probes, pinger.callCount())
}

func TestWithSessionReleasesOnError(t *testing.T) {
	cache := newTestCache(&fakePinger{}, time.Hour)
	opener := &fakeOpener{}
	gate := NewGate(cache, opener, nil)

	wantErr := errors.New("query failed")
	err := gate.WithSession(context.Background(), func(ctx context.Context) error {
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, opener.handle.closeCount())
}

func TestWithSessionReleasesOnPanic(t *testing.T) {
	cache := newTestCache(&fakePinger{}, time.Hour)
	opener := &fakeOpener{}
	gate := NewGate(cache, opener, nil)

	assert.Panics(t, func() {
		_ = gate.WithSession(context.Background(), func(ctx context.Context) error {
			panic("handler blew up")
		})
	})

	assert.Equal(t, 1, opener.handle.closeCount(), "session must be released on panic")
}

func TestWithSessionFailsFastWhenUnavailable(t *testing.T) {
	cache := newTestCache(&fakePinger{err: errors.New("no route to host")}, time.Hour)
	opener := &fakeOpener{}
	gate := NewGate(cache, opener, nil)

	called := false
	err := gate.WithSession(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, 0, opener.openCount())
}
