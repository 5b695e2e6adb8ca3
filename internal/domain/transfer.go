package domain

import (
	"strings"
	"time"
)

// TransferStatus is the lifecycle state of a patient transfer.
type TransferStatus string

const (
	TransferStatusPending         TransferStatus = "pending"
	TransferStatusDriverAssigned  TransferStatus = "driver_assigned"
	TransferStatusPatientPickedUp TransferStatus = "patient_picked_up"
	TransferStatusCompleted       TransferStatus = "completed"
	TransferStatusDelayed         TransferStatus = "delayed"
	TransferStatusCancelled       TransferStatus = "cancelled"
)

func (s TransferStatus) String() string { return string(s) }

// EscalationClosedStatuses are the statuses that exempt a transfer from deadline escalation.
var EscalationClosedStatuses = []TransferStatus{
	TransferStatusPatientPickedUp,
	TransferStatusCompleted,
	TransferStatusCancelled,
}

func (s TransferStatus) ClosesEscalation() bool {
	for _, closed := range EscalationClosedStatuses {
		if s == closed {
			return true
		}
	}
	return false
}

// Agency is the transport agency a transfer is assigned to.
type Agency struct {
	ID           string
	Name         string
	ContactPhone string
}

// Transfer is a scheduled patient transport job with a hard deadline.
type Transfer struct {
	ID                               string
	Title                            string
	PatientName                      string
	DeadlineAt                       time.Time
	Status                           TransferStatus
	AssignedAgencyID                 *string
	Agency                           *Agency
	NotificationNumbers              []string
	AgencyDeadlineNotified           bool
	AgencyDeadlineNotificationSentAt *time.Time
	DeadlineFlowExecutionSID         *string
	CallNotificationSuccess          *bool
	CallNotificationError            *string
	DeadlineConfirmationReceived     bool
	DeadlineConfirmationAt           *time.Time
	ClosedAt                         *time.Time
	CreatedAt                        time.Time
	UpdatedAt                        time.Time
}

// IsOverdue reports whether the transfer is eligible for deadline escalation at now.
func (t *Transfer) IsOverdue(now time.Time) bool {
	return t.DeadlineAt.Before(now) && !t.Status.ClosesEscalation() && !t.AgencyDeadlineNotified
}

// EscalationPhone returns the number to call: the first transfer-level
// notification number that normalize keeps non-empty, else the agency contact
// phone. A nil normalize only trims whitespace.
func (t *Transfer) EscalationPhone(normalize func(string) string) (string, bool) {
	if normalize == nil {
		normalize = strings.TrimSpace
	}
	for _, number := range t.NotificationNumbers {
		if phone := normalize(number); phone != "" {
			return phone, true
		}
	}
	if t.Agency != nil {
		if phone := normalize(t.Agency.ContactPhone); phone != "" {
			return phone, true
		}
	}
	return "", false
}

// EscalationOutcome is the result of one dispatch attempt, persisted on the transfer.
type EscalationOutcome struct {
	Success      bool
	ExecutionSID string
	Error        string
}

// NotificationStatus is the audit status of a transfer notification row.
type NotificationStatus string

const (
	NotificationStatusDispatched     NotificationStatus = "dispatched"
	NotificationStatusDispatchFailed NotificationStatus = "dispatch_failed"
	NotificationStatusConfirmed      NotificationStatus = "confirmed"
	NotificationStatusAcknowledged   NotificationStatus = "acknowledged"
	NotificationStatusNoResponse     NotificationStatus = "no_response"
)

// TransferNotification records one escalation attempt or confirmation callback.
type TransferNotification struct {
	ID          string
	TransferID  string
	Type        string
	Channel     string
	Status      NotificationStatus
	ProviderSID *string
	Error       *string
	CreatedAt   time.Time
}

const (
	NotificationTypeTransferDeadline = "transfer_deadline"
	NotificationChannelCall          = "call"
)

// ConfirmationAction is the operator answer captured by the voice flow.
type ConfirmationAction string

const (
	ConfirmationPickedUp     ConfirmationAction = "picked_up"
	ConfirmationAcknowledged ConfirmationAction = "acknowledged"
	ConfirmationNoResponse   ConfirmationAction = "no_response"
)

// ParseConfirmationDigits maps keypad digits from the voice flow to an action.
func ParseConfirmationDigits(digits string) ConfirmationAction {
	switch strings.TrimSpace(digits) {
	case "1":
		return ConfirmationPickedUp
	case "2":
		return ConfirmationAcknowledged
	default:
		return ConfirmationNoResponse
	}
}
