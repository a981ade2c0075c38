package shortener

import (
	"context"
	"log/slog"
	"time"
)

// RunPurger deletes expired links every interval until ctx is cancelled.
// Expired links already resolve to Gone; purging only reclaims their slugs
// and storage. Failures are logged and retried on the next tick.
func RunPurger(ctx context.Context, p Purger, interval time.Duration, now func() time.Time, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx, now())
			switch {
			case err != nil:
				logger.WarnContext(ctx, "expired link purge failed", "error", err.Error())
			case n > 0:
				logger.InfoContext(ctx, "purged expired links", "count", n)
			}
		}
	}
}
