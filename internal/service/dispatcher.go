package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/identity"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/provider"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultDispatchTimeout = 15 * time.Second
	defaultPatientName     = "Patient"
	defaultAgencyName      = "Agency"
	deadlineDisplayLayout  = "02.01.2006 15:04"

	ConfirmationCallbackPath = "/v1/webhooks/deadline-confirmation"
)

// DispatchOutcome is the per-transfer result of one escalation attempt.
type DispatchOutcome string

const (
	OutcomeDispatched     DispatchOutcome = "dispatched"
	OutcomeFailed         DispatchOutcome = "failed"
	OutcomeNoPhone        DispatchOutcome = "no_phone"
	OutcomeAlreadyClaimed DispatchOutcome = "already_claimed"
)

// DispatcherOptions configures how escalation calls are placed.
type DispatcherOptions struct {
	PublicBaseURL      string
	Location           *time.Location
	CallTimeout        time.Duration
	PersistenceTimeout time.Duration
	Phones             identity.PhoneNormalizer
}

// Dispatcher places the voice confirmation call for one overdue transfer.
type Dispatcher struct {
	transfers          repository.TransferRepository
	notifications      repository.TransferNotificationRepository
	flow               provider.VoiceFlow
	phones             identity.PhoneNormalizer
	callbackURL        string
	location           *time.Location
	callTimeout        time.Duration
	persistenceTimeout time.Duration
	logger             *zap.Logger
	metrics            *observability.Metrics
	now                func() time.Time
}

func NewDispatcher(
	transfers repository.TransferRepository,
	notifications repository.TransferNotificationRepository,
	flow provider.VoiceFlow,
	opts DispatcherOptions,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if transfers == nil {
		return nil, fmt.Errorf("transfer repository is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("transfer notification repository is required")
	}
	if flow == nil {
		return nil, fmt.Errorf("voice flow client is required")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultDispatchTimeout
	}
	if opts.PersistenceTimeout <= 0 {
		opts.PersistenceTimeout = defaultPersistenceTimeout
	}
	if opts.Phones.CountryCode == "" {
		opts.Phones = identity.NewPhoneNormalizer("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		transfers:          transfers,
		notifications:      notifications,
		flow:               flow,
		phones:             opts.Phones,
		callbackURL:        strings.TrimRight(opts.PublicBaseURL, "/") + ConfirmationCallbackPath,
		location:           opts.Location,
		callTimeout:        opts.CallTimeout,
		persistenceTimeout: opts.PersistenceTimeout,
		logger:             logger,
		now:                time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Dispatch escalates one transfer. A transfer without a reachable number is
// left unflagged and stays eligible. Only the caller that wins the claim
// places the call, and its outcome is persisted whether or not it succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, transfer *domain.Transfer) (DispatchOutcome, error) {
	if transfer == nil {
		return OutcomeFailed, fmt.Errorf("%w: transfer is required", domain.ErrValidation)
	}
	logger := observability.WithContextLogger(d.logger, ctx).With(zap.String("transferId", transfer.ID))

	to, ok := transfer.EscalationPhone(d.phones.Display)
	if !ok {
		logger.Warn("transfer has no escalation phone, skipping", zap.Error(domain.ErrNoPhone))
		d.metrics.IncEscalation(string(OutcomeNoPhone))
		return OutcomeNoPhone, nil
	}

	claimCtx, cancelClaim := context.WithTimeout(ctx, d.persistenceTimeout)
	claimed, err := d.transfers.ClaimEscalation(claimCtx, transfer.ID, d.now().UTC())
	cancelClaim()
	if err != nil {
		d.metrics.IncPersistenceFailure("claim_escalation")
		return OutcomeFailed, &domain.PersistenceError{Op: "claim escalation", Cause: err}
	}
	if !claimed {
		logger.Info("transfer already escalated by another run")
		d.metrics.IncEscalation(string(OutcomeAlreadyClaimed))
		return OutcomeAlreadyClaimed, nil
	}

	req := provider.FlowRequest{
		To:         to,
		Parameters: d.flowParameters(transfer),
	}

	callCtx, cancelCall := context.WithTimeout(ctx, d.callTimeout)
	started := d.now()
	execution, callErr := d.flow.StartExecution(callCtx, req)
	d.metrics.ObserveEscalationCall(d.now().Sub(started))
	cancelCall()

	outcome := domain.EscalationOutcome{Success: callErr == nil}
	if execution != nil {
		outcome.ExecutionSID = execution.SID
	}
	if callErr != nil {
		outcome.Error = callErr.Error()
	}

	// Recorded even if the scan was canceled mid-call.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), d.persistenceTimeout)
	defer cancelPersist()
	d.persistOutcome(persistCtx, logger, transfer.ID, outcome)

	if callErr != nil {
		logger.Error("escalation call failed",
			zap.String("to", to),
			zap.String("failure", string(provider.Classify(callErr))),
			zap.Error(callErr),
		)
		d.metrics.IncEscalation(string(OutcomeFailed))
		return OutcomeFailed, &domain.DispatchError{TransferID: transfer.ID, Cause: callErr}
	}

	logger.Info("escalation call started",
		zap.String("to", to),
		zap.String("executionSid", outcome.ExecutionSID),
	)
	d.metrics.IncEscalation(string(OutcomeDispatched))
	return OutcomeDispatched, nil
}

func (d *Dispatcher) flowParameters(transfer *domain.Transfer) provider.FlowParameters {
	patient := strings.TrimSpace(transfer.PatientName)
	if patient == "" {
		patient = defaultPatientName
	}
	agency := defaultAgencyName
	if transfer.Agency != nil && strings.TrimSpace(transfer.Agency.Name) != "" {
		agency = strings.TrimSpace(transfer.Agency.Name)
	}

	return provider.FlowParameters{
		TransferID:   transfer.ID,
		PatientName:  patient,
		AgencyName:   agency,
		DeadlineTime: transfer.DeadlineAt.In(d.location).Format(deadlineDisplayLayout),
		WebhookURL:   d.callbackURL,
	}
}

func (d *Dispatcher) persistOutcome(ctx context.Context, logger *zap.Logger, transferID string, outcome domain.EscalationOutcome) {
	if err := d.transfers.RecordEscalationOutcome(ctx, transferID, outcome); err != nil {
		d.metrics.IncPersistenceFailure("record_escalation_outcome")
		logger.Error("failed to record escalation outcome", zap.Error(err))
	}

	notification := &domain.TransferNotification{
		TransferID: transferID,
		Type:       domain.NotificationTypeTransferDeadline,
		Channel:    domain.NotificationChannelCall,
		Status:     domain.NotificationStatusDispatched,
		CreatedAt:  d.now().UTC(),
	}
	if outcome.ExecutionSID != "" {
		sid := outcome.ExecutionSID
		notification.ProviderSID = &sid
	}
	if !outcome.Success {
		notification.Status = domain.NotificationStatusDispatchFailed
		if outcome.Error != "" {
			msg := outcome.Error
			notification.Error = &msg
		}
	}

	if err := d.notifications.Create(ctx, notification); err != nil {
		d.metrics.IncPersistenceFailure("insert_transfer_notification")
		logger.Error("failed to write transfer notification", zap.Error(err))
	}
}
