package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultSchedulerScanInterval = time.Minute
	schedulerTriggerName         = "scheduler"
)

// DeadlineScanner runs one deadline scan.
type DeadlineScanner interface {
	RunDeadlineScan(ctx context.Context, source domain.TriggerSource) (ScanSummary, error)
}

// Scheduler runs the deadline scan in-process on a fixed interval.
type Scheduler struct {
	scanner  DeadlineScanner
	logger   *zap.Logger
	interval time.Duration
}

func NewScheduler(scanner DeadlineScanner, interval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if scanner == nil {
		return nil, fmt.Errorf("deadline scanner is required")
	}
	if interval <= 0 {
		interval = defaultSchedulerScanInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		scanner:  scanner,
		logger:   logger,
		interval: interval,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.scan(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduler initial deadline scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scan(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("scheduler deadline scan failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) scan(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	source := domain.TriggerSource{
		Name:     schedulerTriggerName,
		Metadata: map[string]any{"interval_sec": int(s.interval / time.Second)},
	}
	if _, err := s.scanner.RunDeadlineScan(observability.WithRunCorrelation(ctx), source); err != nil {
		return fmt.Errorf("deadline scan: %w", err)
	}
	return nil
}
