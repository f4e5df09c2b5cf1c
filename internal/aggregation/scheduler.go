package aggregation

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler triggers periodic artifact refreshes. Each tick runs the full
// refresh callback (batch run + snapshot reload); a failed tick is logged and
// the next tick retries from scratch — runs are independent.
type Scheduler struct {
	interval time.Duration
	refresh  func(ctx context.Context) error
}

// NewScheduler creates a periodic refresh scheduler.
func NewScheduler(interval time.Duration, refresh func(ctx context.Context) error) *Scheduler {
	return &Scheduler{interval: interval, refresh: refresh}
}

// Start begins periodic refreshes. Runs until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting periodic artifact refresh", "interval", s.interval)

	for {
		select {
		case <-ticker.C:
			startedAt := time.Now()
			if err := s.refresh(ctx); err != nil {
				slog.Error("[Scheduler] Artifact refresh failed", "error", err)
				continue
			}
			slog.Info("[Scheduler] Artifact refresh complete", "elapsed", time.Since(startedAt))
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")
			return nil
		}
	}
}
