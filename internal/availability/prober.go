package availability

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/cloudpulse/cloudpulse-monitor/pkg/errors"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/logging"
)

// Pinger is the minimal liveness primitive the prober round-trips against.
// *database.DB satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeResult is the outcome of a single connectivity probe. It is a plain
// value; probe failures never escape as errors.
type ProbeResult struct {
	Success  bool
	Duration time.Duration
	Err      string
}

// Prober issues minimal round-trip checks against the store, bounded by a
// fixed timeout.
type Prober struct {
	pinger  Pinger
	timeout time.Duration
	logger  *logging.Logger
}

// NewProber creates a connectivity prober
func NewProber(pinger Pinger, timeout time.Duration, logger *logging.Logger) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Prober{
		pinger:  pinger,
		timeout: timeout,
		logger:  logger,
	}
}

// Probe performs one bounded liveness round trip. Timeouts, refusals and
// protocol errors all come back as Success=false with a captured
// description.
func (p *Prober) Probe(ctx context.Context) ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.pinger.Ping(probeCtx)
	duration := time.Since(start)

	if err == nil {
		p.logger.Debug("Connectivity probe succeeded",
			"duration_ms", duration.Milliseconds(),
		)
		return ProbeResult{Success: true, Duration: duration}
	}

	result := ProbeResult{Success: false, Duration: duration}
	if errors.Is(err, context.DeadlineExceeded) {
		result.Err = apperrors.NewProbeTimeoutError(p.timeout).Error()
	} else {
		result.Err = err.Error()
	}

	p.logger.Warn("Connectivity probe failed",
		"duration_ms", duration.Milliseconds(),
		"error", result.Err,
	)

	return result
}

// Timeout returns the probe deadline
func (p *Prober) Timeout() time.Duration {
	return p.timeout
}
