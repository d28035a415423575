package services

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes rows older than a cutoff and reports how many it removed.
type Pruner interface {
	DeleteOlderThan(before time.Time) (int64, error)
}

// RetentionService prunes journal tables past the configured age. Order
// journal rows are never pruned.
type RetentionService struct {
	maxAge  time.Duration
	targets map[string]Pruner
	log     *slog.Logger
}

// NewRetentionService creates a RetentionService. A zero maxAge disables
// pruning.
func NewRetentionService(maxAge time.Duration, targets map[string]Pruner, logger *slog.Logger) *RetentionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionService{
		maxAge:  maxAge,
		targets: targets,
		log:     logger.With("component", "retention"),
	}
}

// Prune removes every row older than maxAge as of now. It returns the number
// of rows deleted per table. A failing table is logged and skipped.
func (s *RetentionService) Prune(now time.Time) map[string]int64 {
	deleted := make(map[string]int64, len(s.targets))
	if s.maxAge <= 0 {
		return deleted
	}

	cutoff := now.Add(-s.maxAge)
	for name, t := range s.targets {
		n, err := t.DeleteOlderThan(cutoff)
		if err != nil {
			s.log.Error("pruning failed", "table", name, "error", err)
			continue
		}
		deleted[name] = n
		if n > 0 {
			s.log.Info("pruned", "table", name, "rows", n, "cutoff", cutoff)
		}
	}
	return deleted
}

// Run prunes once immediately and then every interval until ctx is done.
func (s *RetentionService) Run(ctx context.Context, interval time.Duration) {
	if s.maxAge <= 0 {
		return
	}
	s.Prune(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Prune(now)
		}
	}
}
