package auth

import (
	"context"
	"time"

	"github.com/ashureev/studydeck/internal/shared"
)

// DefaultSweepInterval is how often expired sessions are purged.
const DefaultSweepInterval = 10 * time.Minute

// RunSessionSweeper periodically deletes expired sessions until ctx is done.
func (s *Service) RunSessionSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("Session sweeper started", "interval", interval)

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	deleted, err := s.sweepWithRetry(ctx)
	if err != nil {
		s.logger.Error("Session sweeper failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("Session sweeper removed expired sessions", "count", deleted)
	}
}

// sweepWithRetry retries SQLITE_BUSY failures with exponential backoff.
func (s *Service) sweepWithRetry(ctx context.Context) (int64, error) {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		var deleted int64
		deleted, err = s.SweepExpiredSessions(ctx)
		if err == nil {
			return deleted, nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
		s.logger.Debug("Session sweep hit a locked database, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 0, err
}
