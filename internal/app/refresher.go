package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/five82/tables/internal/actions"
)

// maxBackoff caps the delay between refreshes while the server is failing.
const maxBackoff = 30 * time.Second

// runRefresher keeps the file indicators current while the user is logged
// in. It skips ticks while a poll session is active and backs off
// exponentially on consecutive failures. It returns nil when ctx ends.
func runRefresher(ctx context.Context, svc *actions.Service, interval time.Duration, logger *slog.Logger) error {
	failures := 0
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if shouldRefresh(svc) {
			if _, err := svc.RefreshIndicators(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				failures++
				logger.Debug("indicator refresh failed", "failures", failures, "error", err)
			} else {
				failures = 0
			}
		}
		timer.Reset(calculateBackoff(failures, interval))
	}
}

func shouldRefresh(svc *actions.Service) bool {
	if !svc.Store().Snapshot().Authenticated() {
		return false
	}
	polls := svc.Polls()
	return polls == nil || !polls.Active()
}

// calculateBackoff doubles base per consecutive failure, capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	if failures > 10 {
		return maxBackoff
	}
	backoff := base << failures
	if backoff > maxBackoff || backoff <= 0 {
		return maxBackoff
	}
	return backoff
}
