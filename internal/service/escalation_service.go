package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultDispatchConcurrency = 4

// TransferDispatcher escalates a single transfer.
type TransferDispatcher interface {
	Dispatch(ctx context.Context, transfer *domain.Transfer) (DispatchOutcome, error)
}

// ScanSummary is what one deadline scan did.
type ScanSummary struct {
	CronLogID   string
	TriggeredBy string
	Counts      domain.RunCounts
	Problematic int64
	Duration    time.Duration
}

type EscalationService struct {
	transfers   repository.TransferRepository
	dispatcher  TransferDispatcher
	jobs        *JobLogger
	concurrency int
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewEscalationService(
	transfers repository.TransferRepository,
	dispatcher TransferDispatcher,
	jobs *JobLogger,
	concurrency int,
	logger *zap.Logger,
) (*EscalationService, error) {
	if transfers == nil {
		return nil, fmt.Errorf("transfer repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if jobs == nil {
		return nil, fmt.Errorf("job logger is required")
	}
	if concurrency < 1 {
		concurrency = defaultDispatchConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EscalationService{
		transfers:   transfers,
		dispatcher:  dispatcher,
		jobs:        jobs,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (s *EscalationService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// RunDeadlineScan escalates every overdue transfer once and records the run.
// Overlapping scans are safe; the per-transfer claim decides who calls.
func (s *EscalationService) RunDeadlineScan(ctx context.Context, source domain.TriggerSource) (summary ScanSummary, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(source.Name) == "" {
		source.Name = "manual"
	}
	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("triggeredBy", source.Name))

	started := s.now()
	run, err := s.jobs.Start(ctx, domain.DeadlineJobName, domain.DeadlineJobType, source)
	if err != nil {
		s.metrics.IncDeadlineScan(string(domain.CronRunFailed))
		return ScanSummary{TriggeredBy: source.Name}, err
	}
	summary = ScanSummary{CronLogID: run.ID, TriggeredBy: source.Name}

	finalizeCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deadline scan panicked: %v", r)
			logger.Error("deadline scan panicked", zap.Any("panic", r), zap.String("cronLogId", run.ID))
			if failErr := s.jobs.Fail(finalizeCtx, run, summary.Counts, nil, err); failErr != nil {
				logger.Error("failed to finalize panicked scan", zap.Error(failErr))
			}
			s.metrics.IncDeadlineScan(string(domain.CronRunFailed))
			summary.Duration = s.now().Sub(started)
		}
	}()

	counts, problematic, scanErr := s.scan(ctx, logger)
	summary.Counts = counts
	summary.Problematic = problematic
	summary.Duration = s.now().Sub(started)

	metadata := map[string]any{"problematic_transfers": problematic}
	if scanErr != nil {
		logger.Error("deadline scan failed", zap.String("cronLogId", run.ID), zap.Error(scanErr))
		if failErr := s.jobs.Fail(finalizeCtx, run, counts, metadata, scanErr); failErr != nil {
			logger.Error("failed to finalize failed scan", zap.Error(failErr))
		}
		s.metrics.IncDeadlineScan(string(domain.CronRunFailed))
		return summary, scanErr
	}

	if err := s.jobs.Complete(finalizeCtx, run, counts, metadata); err != nil {
		s.metrics.IncDeadlineScan(string(domain.CronRunFailed))
		return summary, err
	}
	s.metrics.IncDeadlineScan(string(domain.CronRunCompleted))

	logger.Info("deadline scan completed",
		zap.String("cronLogId", run.ID),
		zap.Int("processed", counts.Processed),
		zap.Int("succeeded", counts.Succeeded),
		zap.Int("failed", counts.Failed),
		zap.Int("skipped", counts.Skipped),
		zap.Int64("problematic", problematic),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (s *EscalationService) scan(ctx context.Context, logger *zap.Logger) (domain.RunCounts, int64, error) {
	now := s.now().UTC()

	overdue, err := s.transfers.FindOverdue(ctx, now)
	if err != nil {
		return domain.RunCounts{}, 0, &domain.PersistenceError{Op: "find overdue transfers", Cause: err}
	}

	problematic, err := s.transfers.CountProblematic(ctx, now)
	if err != nil {
		logger.Warn("failed to count problematic transfers", zap.Error(err))
		problematic = 0
	}

	var (
		mu     sync.Mutex
		counts = domain.RunCounts{Processed: len(overdue)}
	)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, transfer := range overdue {
		g.Go(func() error {
			outcome, err := s.dispatchSafely(ctx, transfer)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeDispatched:
				counts.Succeeded++
			case OutcomeNoPhone, OutcomeAlreadyClaimed:
				counts.Skipped++
			default:
				counts.Failed++
			}
			if err != nil {
				var dispatchErr *domain.DispatchError
				if !errors.As(err, &dispatchErr) {
					logger.Error("transfer escalation failed", zap.String("transferId", transfer.ID), zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return counts, problematic, nil
}

func (s *EscalationService) dispatchSafely(ctx context.Context, transfer *domain.Transfer) (outcome DispatchOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomeFailed
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()
	return s.dispatcher.Dispatch(ctx, transfer)
}

// EscalateTransfer escalates one transfer on demand, ignoring its deadline.
// The claim still applies, so an already notified transfer is not called again.
func (s *EscalationService) EscalateTransfer(ctx context.Context, id string) (DispatchOutcome, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return OutcomeFailed, fmt.Errorf("%w: transfer id is required", domain.ErrValidation)
	}

	transfer, err := s.transfers.GetByID(ctx, id)
	if err != nil {
		return OutcomeFailed, err
	}
	if transfer.Status.ClosesEscalation() {
		return OutcomeFailed, fmt.Errorf("%w: transfer %s is %s", domain.ErrConflict, id, transfer.Status)
	}

	return s.dispatcher.Dispatch(ctx, transfer)
}
