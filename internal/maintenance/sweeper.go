package maintenance

import (
	"context"
	"time"

	"pharmacy-admin/internal/observability"
)

// RunSweeper prunes expired auth state every interval until ctx is done. A
// non-positive interval returns immediately. Failures are logged and the
// next tick tries again.
func RunSweeper(ctx context.Context, pruner Pruner, interval time.Duration, logger *observability.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, pruner, logger)
		}
	}
}

func sweep(ctx context.Context, pruner Pruner, logger *observability.Logger) {
	result, err := pruner.PruneExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("auth_sweep_failed", map[string]any{"error": err.Error()})
		observability.CaptureError(err)
		return
	}

	if result.ExpiredSessions > 0 || result.LoginCounters > 0 {
		logger.Info("auth_sweep_completed", map[string]any{
			"expired_sessions": result.ExpiredSessions,
			"login_counters":   result.LoginCounters,
		})
	}
}
