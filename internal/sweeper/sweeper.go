// Package sweeper expires idle sessions on a cron cadence. Stale
// clarifications must not survive into a fresh conversation, so the sweep
// clears the whole session state before dropping it.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Registry is the slice of the engine the sweeper drives.
type Registry interface {
	SweepIdle(ttl time.Duration, now time.Time) int
}

type Service struct {
	registry Registry
	schedule cron.Schedule
	ttl      time.Duration
	logger   *slog.Logger
}

func New(registry Registry, cronExpr string, ttl time.Duration, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep cron %q: %w", cronExpr, err)
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{
		registry: registry,
		schedule: schedule,
		ttl:      ttl,
		logger:   logger.With("component", "sweeper"),
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("session sweeper started", "ttl", s.ttl.String())
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("session sweeper stopped")
			return nil
		case now := <-timer.C:
			s.sweep(now)
		}
	}
}

func (s *Service) sweep(now time.Time) int {
	swept := s.registry.SweepIdle(s.ttl, now)
	if swept > 0 {
		s.logger.Info("expired idle sessions", "count", swept)
	}
	return swept
}
