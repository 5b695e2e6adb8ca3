package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/identity"
)

func newTestEscalationService(t *testing.T, transfers *fakeTransferRepo, dispatcher TransferDispatcher, logs *fakeCronLogRepo) *EscalationService {
	t.Helper()

	jobs, err := NewJobLogger(logs, nil)
	if err != nil {
		t.Fatalf("NewJobLogger() error = %v", err)
	}
	svc, err := NewEscalationService(transfers, dispatcher, jobs, 2, nil)
	if err != nil {
		t.Fatalf("NewEscalationService() error = %v", err)
	}
	return svc
}

func TestRunDeadlineScanCountsOutcomes(t *testing.T) {
	t.Parallel()

	transfers := &fakeTransferRepo{
		findOverdueFn: func(ctx context.Context, now time.Time) ([]*domain.Transfer, error) {
			return []*domain.Transfer{{ID: "ok"}, {ID: "fail"}, {ID: "nophone"}, {ID: "claimed"}}, nil
		},
		countProblematicFn: func(ctx context.Context, now time.Time) (int64, error) {
			return 3, nil
		},
	}
	dispatcher := &fakeDispatcher{dispatchFn: func(ctx context.Context, transfer *domain.Transfer) (DispatchOutcome, error) {
		switch transfer.ID {
		case "ok":
			return OutcomeDispatched, nil
		case "fail":
			return OutcomeFailed, &domain.DispatchError{TransferID: transfer.ID, Cause: errors.New("boom")}
		case "nophone":
			return OutcomeNoPhone, nil
		default:
			return OutcomeAlreadyClaimed, nil
		}
	}}
	logs := &fakeCronLogRepo{}

	svc := newTestEscalationService(t, transfers, dispatcher, logs)
	summary, err := svc.RunDeadlineScan(context.Background(), domain.TriggerSource{Name: "github_actions"})
	if err != nil {
		t.Fatalf("RunDeadlineScan() error = %v", err)
	}

	want := domain.RunCounts{Processed: 4, Succeeded: 1, Failed: 1, Skipped: 2}
	if summary.Counts != want {
		t.Fatalf("counts = %+v, want %+v", summary.Counts, want)
	}
	if summary.Problematic != 3 || summary.CronLogID != "cron-log-1" || summary.TriggeredBy != "github_actions" {
		t.Fatalf("summary = %+v", summary)
	}

	if len(logs.created) != 1 || logs.created[0].Status != domain.CronRunStarted {
		t.Fatalf("created logs = %+v, want one started row", logs.created)
	}
	if logs.updates[0].Status != domain.CronRunRunning {
		t.Fatalf("first update = %s, want running", logs.updates[0].Status)
	}
	final := logs.last()
	if final.Status != domain.CronRunCompleted || final.ItemsProcessed != 4 || final.ItemsSucceeded != 1 || final.ItemsFailed != 1 {
		t.Fatalf("final log = %+v", final)
	}
	if final.Metadata["problematic_transfers"] != int64(3) || final.Metadata["items_skipped"] != 2 {
		t.Fatalf("metadata = %+v", final.Metadata)
	}
	if final.CompletedAt == nil || final.DurationMs == nil {
		t.Fatal("completed run must carry completion time and duration")
	}
}

func TestRunDeadlineScanFindOverdueErrorFailsRun(t *testing.T) {
	t.Parallel()

	transfers := &fakeTransferRepo{
		findOverdueFn: func(ctx context.Context, now time.Time) ([]*domain.Transfer, error) {
			return nil, errors.New("db unavailable")
		},
	}
	logs := &fakeCronLogRepo{}

	svc := newTestEscalationService(t, transfers, &fakeDispatcher{}, logs)
	_, err := svc.RunDeadlineScan(context.Background(), domain.TriggerSource{})
	var persistenceErr *domain.PersistenceError
	if !errors.As(err, &persistenceErr) {
		t.Fatalf("RunDeadlineScan() error = %v, want PersistenceError", err)
	}

	final := logs.last()
	if final.Status != domain.CronRunFailed || final.ErrorMessage == nil {
		t.Fatalf("final log = %+v, want failed with error", final)
	}
	if logs.created[0].TriggeredBy != "manual" {
		t.Fatalf("triggeredBy = %q, want manual default", logs.created[0].TriggeredBy)
	}
}

func TestRunDeadlineScanRecoversPanic(t *testing.T) {
	t.Parallel()

	transfers := &fakeTransferRepo{
		findOverdueFn: func(ctx context.Context, now time.Time) ([]*domain.Transfer, error) {
			panic("nil agency")
		},
	}
	logs := &fakeCronLogRepo{}

	svc := newTestEscalationService(t, transfers, &fakeDispatcher{}, logs)
	_, err := svc.RunDeadlineScan(context.Background(), domain.TriggerSource{Name: "manual"})
	if err == nil {
		t.Fatal("expected error after panic")
	}
	if final := logs.last(); final.Status != domain.CronRunFailed {
		t.Fatalf("final status = %s, want failed", final.Status)
	}
}

func TestRunDeadlineScanRecoversDispatchPanic(t *testing.T) {
	t.Parallel()

	transfers := &fakeTransferRepo{
		findOverdueFn: func(ctx context.Context, now time.Time) ([]*domain.Transfer, error) {
			return []*domain.Transfer{{ID: "t-1"}, {ID: "t-2"}}, nil
		},
	}
	dispatcher := &fakeDispatcher{dispatchFn: func(ctx context.Context, transfer *domain.Transfer) (DispatchOutcome, error) {
		if transfer.ID == "t-1" {
			panic("unexpected")
		}
		return OutcomeDispatched, nil
	}}

	svc := newTestEscalationService(t, transfers, dispatcher, &fakeCronLogRepo{})
	summary, err := svc.RunDeadlineScan(context.Background(), domain.TriggerSource{Name: "manual"})
	if err != nil {
		t.Fatalf("RunDeadlineScan() error = %v", err)
	}
	if summary.Counts.Failed != 1 || summary.Counts.Succeeded != 1 {
		t.Fatalf("counts = %+v, want one failed and one succeeded", summary.Counts)
	}
}

func TestRunDeadlineScanJobStartErrorAborts(t *testing.T) {
	t.Parallel()

	scanned := false
	transfers := &fakeTransferRepo{
		findOverdueFn: func(ctx context.Context, now time.Time) ([]*domain.Transfer, error) {
			scanned = true
			return nil, nil
		},
	}
	logs := &fakeCronLogRepo{createFn: func(ctx context.Context, l *domain.CronRunLog) error {
		return errors.New("insert failed")
	}}

	svc := newTestEscalationService(t, transfers, &fakeDispatcher{}, logs)
	if _, err := svc.RunDeadlineScan(context.Background(), domain.TriggerSource{Name: "manual"}); err == nil {
		t.Fatal("expected error when run log cannot be created")
	}
	if scanned {
		t.Fatal("scan must not run without a run log")
	}
}

func TestConcurrentScansDispatchOnce(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		notified bool
	)
	transfer := overdueTransfer()
	transfers := &fakeTransferRepo{
		findOverdueFn: func(ctx context.Context, now time.Time) ([]*domain.Transfer, error) {
			copied := *transfer
			return []*domain.Transfer{&copied}, nil
		},
		claimEscalationFn: func(ctx context.Context, id string, now time.Time) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			if notified {
				return false, nil
			}
			notified = true
			return true, nil
		},
	}
	flow := &fakeVoiceFlow{}
	dispatcher, err := NewDispatcher(transfers, &fakeTransferNotificationRepo{}, flow, DispatcherOptions{
		Phones: identity.NewPhoneNormalizer("90"),
	}, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	svc := newTestEscalationService(t, transfers, dispatcher, &fakeCronLogRepo{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RunDeadlineScan(context.Background(), domain.TriggerSource{Name: "manual"}); err != nil {
				t.Errorf("RunDeadlineScan() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if flow.calls() != 1 {
		t.Fatalf("voice flow calls = %d, want exactly 1", flow.calls())
	}
}

func TestEscalateTransfer(t *testing.T) {
	t.Parallel()

	closed := overdueTransfer()
	closed.Status = domain.TransferStatusCompleted
	transfers := &fakeTransferRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Transfer, error) {
			switch id {
			case "open":
				return overdueTransfer(), nil
			case "closed":
				return closed, nil
			default:
				return nil, domain.ErrNotFound
			}
		},
	}

	svc := newTestEscalationService(t, transfers, &fakeDispatcher{}, &fakeCronLogRepo{})

	outcome, err := svc.EscalateTransfer(context.Background(), "open")
	if err != nil || outcome != OutcomeDispatched {
		t.Fatalf("EscalateTransfer(open) = %s, %v", outcome, err)
	}
	if _, err := svc.EscalateTransfer(context.Background(), "closed"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("EscalateTransfer(closed) error = %v, want ErrConflict", err)
	}
	if _, err := svc.EscalateTransfer(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("EscalateTransfer(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.EscalateTransfer(context.Background(), " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("EscalateTransfer(blank) error = %v, want ErrValidation", err)
	}
}
