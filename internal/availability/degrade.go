package availability

import (
	"context"

	apperrors "github.com/cloudpulse/cloudpulse-monitor/pkg/errors"
	"github.com/cloudpulse/cloudpulse-monitor/pkg/logging"
)

// ResolveRead runs a primary read and substitutes the fallback payload when
// the read fails for connectivity reasons. Domain errors pass through
// untouched; writes never go through this path.
func ResolveRead[T any](ctx context.Context, logger *logging.Logger, primary func(ctx context.Context) (T, error), fallback func() T) (T, bool, error) {
	value, err := primary(ctx)
	if err == nil {
		return value, false, nil
	}

	if !apperrors.IsConnectivityError(err) {
		var zero T
		return zero, false, err
	}

	if logger == nil {
		logger = logging.GetLogger()
	}
	logger.Warn("Read degraded to fallback payload",
		"error", err.Error(),
	)

	return fallback(), true, nil
}
