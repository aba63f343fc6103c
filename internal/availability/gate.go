package availability

import (
	"context"
	"sync"

	apperrors "github.com/cloudpulse/cloudpulse-monitor/pkg/errors"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/logging"
)

// Handle is a releasable store session handle. *sqlx.Conn satisfies it.
type Handle interface {
	Close() error
}

// Opener produces store session handles.
type Opener interface {
	Open(ctx context.Context) (Handle, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Handle, error)

func (f OpenerFunc) Open(ctx context.Context) (Handle, error) {
	return f(ctx)
}

// Session is an admitted store session. Release is idempotent.
type Session struct {
	handle  Handle
	release sync.Once
}

// Handle exposes the underlying session handle.
func (s *Session) Handle() Handle {
	return s.handle
}

// Release returns the session to the pool. Safe to call more than once.
func (s *Session) Release() {
	s.release.Do(func() {
		if s.handle != nil {
			_ = s.handle.Close()
		}
	})
}

// Gate admits store sessions only while the availability cache reports the
// store reachable. An unavailable verdict fails fast without touching the
// pool; an open failure after admission invalidates the cache write-through.
type Gate struct {
	cache  *Cache
	opener Opener
	logger *logging.Logger
}

// NewGate creates a session gate over the availability cache.
func NewGate(cache *Cache, opener Opener, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Gate{
		cache:  cache,
		opener: opener,
		logger: logger,
	}
}

// Acquire admits one session. When the cache reports unavailable no handle
// is opened and a ConnectionUnavailable error is returned. When the open
// itself fails the cache is marked unavailable and a ConnectionLost error is
// returned.
func (g *Gate) Acquire(ctx context.Context) (*Session, error) {
	if !g.cache.IsAvailable(ctx) {
		return nil, apperrors.NewConnectionUnavailableError()
	}

	handle, err := g.opener.Open(ctx)
	if err != nil {
		g.cache.MarkUnavailable()
		g.logger.Error("Session open failed after availability check",
			"error", err.Error(),
		)
		return nil, apperrors.NewConnectionLostError("failed to open database session").WithCause(err)
	}

	return &Session{handle: handle}, nil
}

// WithSession runs fn inside an admitted session and guarantees release,
// including on panic.
func (g *Gate) WithSession(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer session.Release()
	return fn(ctx)
}
