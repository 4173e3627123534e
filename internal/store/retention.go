package store

import (
	"context"
	"log/slog"
	"time"
)

const retentionSweepInterval = 1 * time.Hour

// StartRetentionWorker runs a background goroutine that periodically deletes
// saved sessions older than ttl. A ttl of zero disables the worker.
func StartRetentionWorker(ctx context.Context, repo Repository, ttl time.Duration) {
	if ttl <= 0 {
		slog.Info("Session retention disabled")
		return
	}

	ticker := time.NewTicker(retentionSweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", retentionSweepInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				deleted, err := repo.CleanupExpired(ctx, ttl)
				if err != nil {
					slog.Error("Retention worker sweep failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("Retention worker deleted expired sessions", "count", deleted)
				}
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
