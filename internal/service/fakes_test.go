package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/identity"
	"github.com/kursadbilgin/escalation-engine/internal/provider"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
)

type fakeMessageRepo struct {
	insertIfAbsentFn func(ctx context.Context, m *domain.Message) (bool, error)
	updateLockedFn   func(ctx context.Context, channel domain.Channel, id string, mutate repository.MessageMutation) (*domain.Message, bool, error)
}

func (f *fakeMessageRepo) InsertIfAbsent(ctx context.Context, m *domain.Message) (bool, error) {
	if f.insertIfAbsentFn != nil {
		return f.insertIfAbsentFn(ctx, m)
	}
	return true, nil
}

func (f *fakeMessageRepo) GetByProviderID(ctx context.Context, channel domain.Channel, id string) (*domain.Message, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeMessageRepo) UpdateLocked(
	ctx context.Context,
	channel domain.Channel,
	id string,
	mutate repository.MessageMutation,
) (*domain.Message, bool, error) {
	if f.updateLockedFn != nil {
		return f.updateLockedFn(ctx, channel, id, mutate)
	}
	return nil, false, domain.ErrNotFound
}

type fakeResolver struct {
	resolveFn func(ctx context.Context, phone string) (identity.Resolution, error)
}

func (f *fakeResolver) Resolve(ctx context.Context, phone string) (identity.Resolution, error) {
	if f.resolveFn != nil {
		return f.resolveFn(ctx, phone)
	}
	return identity.Resolution{Contact: &domain.Contact{ID: "contact-1"}}, nil
}

type fakeWebhookLogRepo struct {
	mu        sync.Mutex
	created   []domain.WebhookLog
	processed []string
	createFn  func(ctx context.Context, l *domain.WebhookLog) error
}

func (f *fakeWebhookLogRepo) Create(ctx context.Context, l *domain.WebhookLog) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, l); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if l.ID == "" {
		l.ID = "webhook-log-1"
	}
	f.created = append(f.created, *l)
	return nil
}

func (f *fakeWebhookLogRepo) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return nil
}

type fakeTransferRepo struct {
	getByIDFn                 func(ctx context.Context, id string) (*domain.Transfer, error)
	findOverdueFn             func(ctx context.Context, now time.Time) ([]*domain.Transfer, error)
	countProblematicFn        func(ctx context.Context, now time.Time) (int64, error)
	claimEscalationFn         func(ctx context.Context, id string, now time.Time) (bool, error)
	recordEscalationOutcomeFn func(ctx context.Context, id string, outcome domain.EscalationOutcome) error
	applyConfirmationFn       func(ctx context.Context, id string, action domain.ConfirmationAction, at time.Time) error
}

func (f *fakeTransferRepo) GetByID(ctx context.Context, id string) (*domain.Transfer, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTransferRepo) FindOverdue(ctx context.Context, now time.Time) ([]*domain.Transfer, error) {
	if f.findOverdueFn != nil {
		return f.findOverdueFn(ctx, now)
	}
	return nil, nil
}

func (f *fakeTransferRepo) CountProblematic(ctx context.Context, now time.Time) (int64, error) {
	if f.countProblematicFn != nil {
		return f.countProblematicFn(ctx, now)
	}
	return 0, nil
}

func (f *fakeTransferRepo) ClaimEscalation(ctx context.Context, id string, now time.Time) (bool, error) {
	if f.claimEscalationFn != nil {
		return f.claimEscalationFn(ctx, id, now)
	}
	return true, nil
}

func (f *fakeTransferRepo) RecordEscalationOutcome(ctx context.Context, id string, outcome domain.EscalationOutcome) error {
	if f.recordEscalationOutcomeFn != nil {
		return f.recordEscalationOutcomeFn(ctx, id, outcome)
	}
	return nil
}

func (f *fakeTransferRepo) ApplyConfirmation(ctx context.Context, id string, action domain.ConfirmationAction, at time.Time) error {
	if f.applyConfirmationFn != nil {
		return f.applyConfirmationFn(ctx, id, action, at)
	}
	return nil
}

type fakeTransferNotificationRepo struct {
	mu      sync.Mutex
	created []domain.TransferNotification
}

func (f *fakeTransferNotificationRepo) Create(ctx context.Context, n *domain.TransferNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *n)
	return nil
}

func (f *fakeTransferNotificationRepo) ListByTransferID(ctx context.Context, transferID string) ([]domain.TransferNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TransferNotification
	for _, n := range f.created {
		if n.TransferID == transferID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeTransferNotificationRepo) all() []domain.TransferNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TransferNotification(nil), f.created...)
}

type fakeCronLogRepo struct {
	mu       sync.Mutex
	created  []domain.CronRunLog
	updates  []domain.CronRunLog
	createFn func(ctx context.Context, l *domain.CronRunLog) error
}

func (f *fakeCronLogRepo) Create(ctx context.Context, l *domain.CronRunLog) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, l); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if l.ID == "" {
		l.ID = "cron-log-1"
	}
	f.created = append(f.created, *l)
	return nil
}

func (f *fakeCronLogRepo) Update(ctx context.Context, l *domain.CronRunLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, *l)
	return nil
}

func (f *fakeCronLogRepo) GetByID(ctx context.Context, id string) (*domain.CronRunLog, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeCronLogRepo) ListRecent(ctx context.Context, jobName string, limit int) ([]domain.CronRunLog, error) {
	return nil, nil
}

func (f *fakeCronLogRepo) last() domain.CronRunLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[len(f.updates)-1]
}

type fakeVoiceFlow struct {
	mu       sync.Mutex
	requests []provider.FlowRequest
	startFn  func(ctx context.Context, req provider.FlowRequest) (*provider.FlowExecution, error)
}

func (f *fakeVoiceFlow) StartExecution(ctx context.Context, req provider.FlowRequest) (*provider.FlowExecution, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.startFn != nil {
		return f.startFn(ctx, req)
	}
	return &provider.FlowExecution{SID: "FN123", Status: "active", StatusCode: 201}, nil
}

func (f *fakeVoiceFlow) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeDispatcher struct {
	dispatchFn func(ctx context.Context, transfer *domain.Transfer) (DispatchOutcome, error)
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, transfer *domain.Transfer) (DispatchOutcome, error) {
	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, transfer)
	}
	return OutcomeDispatched, nil
}

type fakeScanner struct {
	mu      sync.Mutex
	sources []domain.TriggerSource
	runFn   func(ctx context.Context, source domain.TriggerSource) (ScanSummary, error)
}

func (f *fakeScanner) RunDeadlineScan(ctx context.Context, source domain.TriggerSource) (ScanSummary, error) {
	f.mu.Lock()
	f.sources = append(f.sources, source)
	f.mu.Unlock()
	if f.runFn != nil {
		return f.runFn(ctx, source)
	}
	return ScanSummary{}, nil
}

func (f *fakeScanner) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sources)
}

func stringPtr(v string) *string {
	return &v
}
