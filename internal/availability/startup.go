package availability

import (
	"context"
	"sync"
	"time"

	"github.com/cloudpulse/cloudpulse-monitor/pkg/logging"
)

// BootState tracks the startup connection lifecycle.
type BootState int

const (
	StateIdle BootState = iota
	StateProbing
	StateReady
	StateDegraded
)

func (s BootState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// RetryPlan describes the startup probe schedule: up to MaxAttempts probes
// separated by delays that grow geometrically from InitialDelay.
type RetryPlan struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
}

// Budget is the worst-case wall clock for the whole plan: every probe runs
// to its timeout and every inter-attempt delay is fully waited out.
func (p RetryPlan) Budget(probeTimeout time.Duration) time.Duration {
	budget := time.Duration(p.MaxAttempts) * probeTimeout
	delay := p.InitialDelay
	for i := 0; i < p.MaxAttempts-1; i++ {
		budget += delay
		delay = time.Duration(float64(delay) * p.BackoffMultiplier)
	}
	return budget
}

// Bootstrapper drives the startup retry loop and seeds the availability
// cache with its verdict. The process proceeds either way; Degraded only
// means requests start out on the fallback path.
type Bootstrapper struct {
	prober *Prober
	cache  *Cache
	plan   RetryPlan
	warmup func(ctx context.Context) error
	logger *logging.Logger

	mu    sync.Mutex
	state BootState
}

// NewBootstrapper creates a startup bootstrapper. warmup runs once after a
// successful probe (schema migration, seed checks) and may be nil.
func NewBootstrapper(prober *Prober, cache *Cache, plan RetryPlan, warmup func(ctx context.Context) error, logger *logging.Logger) *Bootstrapper {
	if plan.MaxAttempts < 1 {
		plan.MaxAttempts = 1
	}
	if plan.InitialDelay <= 0 {
		plan.InitialDelay = 2 * time.Second
	}
	if plan.BackoffMultiplier < 1.0 {
		plan.BackoffMultiplier = 1.0
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Bootstrapper{
		prober: prober,
		cache:  cache,
		plan:   plan,
		warmup: warmup,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the current boot state.
func (b *Bootstrapper) State() BootState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bootstrapper) setState(s BootState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Run executes the retry plan and returns the terminal state. The whole run
// is bounded by the plan's worst-case budget on top of ctx.
func (b *Bootstrapper) Run(ctx context.Context) BootState {
	runCtx, cancel := context.WithTimeout(ctx, b.plan.Budget(b.prober.Timeout()))
	defer cancel()

	b.setState(StateProbing)
	delay := b.plan.InitialDelay

	for attempt := 1; attempt <= b.plan.MaxAttempts; attempt++ {
		result := b.prober.Probe(runCtx)
		if result.Success {
			b.cache.Seed(true)
			b.setState(StateReady)
			b.logger.Info("Database connection established",
				"attempt", attempt,
				"probe_duration_ms", result.Duration.Milliseconds(),
			)
			b.runWarmup(ctx)
			return StateReady
		}

		b.logger.Warn("Database connection attempt failed",
			"attempt", attempt,
			"max_attempts", b.plan.MaxAttempts,
			"error", result.Err,
		)

		if attempt == b.plan.MaxAttempts {
			break
		}

		select {
		case <-runCtx.Done():
			b.logger.Warn("Startup retry loop cancelled",
				"attempts_made", attempt,
			)
			b.cache.Seed(false)
			b.setState(StateDegraded)
			return StateDegraded
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * b.plan.BackoffMultiplier)
	}

	b.cache.Seed(false)
	b.setState(StateDegraded)
	b.logger.Error("Database unreachable after all startup attempts, entering degraded mode",
		"attempts", b.plan.MaxAttempts,
	)
	return StateDegraded
}

func (b *Bootstrapper) runWarmup(ctx context.Context) {
	if b.warmup == nil {
		return
	}
	if err := b.warmup(ctx); err != nil {
		// Warm-up failures are logged, never fatal. The availability
		// layer picks up any real outage on the next probe.
		b.logger.Error("Startup warm-up failed",
			"error", err.Error(),
		)
	}
}
