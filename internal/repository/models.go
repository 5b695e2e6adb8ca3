package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/lib/pq"
)

// ContactModel is the persistence model for the contacts table.
type ContactModel struct {
	ID                   string  `gorm:"type:uuid;primaryKey"`
	Name                 string  `gorm:"type:varchar(255);not null"`
	Phone                string  `gorm:"type:varchar(32);not null;index"`
	Email                *string `gorm:"type:varchar(255)"`
	IsUnregistered       bool    `gorm:"not null;default:false"`
	FirstMessageAnswered bool    `gorm:"not null;default:false"`
	StageID              *string `gorm:"type:uuid"`
	PipelineID           *string `gorm:"type:uuid"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (ContactModel) TableName() string {
	return "contacts"
}

// MessageModel is the persistence model for the messages table.
type MessageModel struct {
	ID                string               `gorm:"type:uuid;primaryKey"`
	ProviderMessageID string               `gorm:"type:varchar(255);not null"`
	ContactID         *string              `gorm:"type:uuid"`
	Channel           domain.Channel       `gorm:"type:varchar(16);not null"`
	Direction         domain.Direction     `gorm:"type:varchar(8);not null"`
	FromNumber        string               `gorm:"type:varchar(64)"`
	ToNumber          string               `gorm:"type:varchar(64)"`
	Body              string               `gorm:"type:text"`
	Media             []domain.Media       `gorm:"type:jsonb;serializer:json"`
	Status            domain.MessageStatus `gorm:"type:varchar(20);not null"`
	SentAt            *time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	FailedAt          *time.Time
	ErrorCode         *string        `gorm:"type:varchar(64)"`
	ErrorMessage      *string        `gorm:"type:text"`
	Metadata          map[string]any `gorm:"type:jsonb;serializer:json"`
	ProviderTimestamp *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (MessageModel) TableName() string {
	return "messages"
}

// AgencyContactInfo is the JSON contact document of an agency.
type AgencyContactInfo struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// AgencyModel is the persistence model for the agencies table.
type AgencyModel struct {
	ID          string            `gorm:"type:uuid;primaryKey"`
	Name        string            `gorm:"type:varchar(255);not null"`
	ContactInfo AgencyContactInfo `gorm:"type:jsonb;serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (AgencyModel) TableName() string {
	return "agencies"
}

// TransferModel is the persistence model for the transfers table.
type TransferModel struct {
	ID                               string                `gorm:"type:uuid;primaryKey"`
	Title                            string                `gorm:"type:varchar(255)"`
	PatientName                      string                `gorm:"type:varchar(255)"`
	DeadlineDatetime                 time.Time             `gorm:"type:timestamptz;not null"`
	Status                           domain.TransferStatus `gorm:"type:varchar(32);not null"`
	AssignedAgencyID                 *string               `gorm:"type:uuid"`
	Agency                           *AgencyModel          `gorm:"foreignKey:AssignedAgencyID"`
	NotificationNumbers              pq.StringArray        `gorm:"type:text[]"`
	AgencyDeadlineNotified           bool                  `gorm:"not null;default:false"`
	AgencyDeadlineNotificationSentAt *time.Time            `gorm:"type:timestamptz"`
	DeadlineFlowExecutionSID         *string               `gorm:"type:varchar(64)"`
	CallNotificationSuccess          *bool
	CallNotificationError            *string    `gorm:"type:text"`
	DeadlineConfirmationReceived     bool       `gorm:"not null;default:false"`
	DeadlineConfirmationDatetime     *time.Time `gorm:"type:timestamptz"`
	ClosedAt                         *time.Time `gorm:"type:timestamptz"`
	CreatedAt                        time.Time
	UpdatedAt                        time.Time
}

func (TransferModel) TableName() string {
	return "transfers"
}

// TransferNotificationModel is the persistence model for transfer_notifications.
type TransferNotificationModel struct {
	ID          string                    `gorm:"type:uuid;primaryKey"`
	TransferID  string                    `gorm:"type:uuid;not null"`
	Type        string                    `gorm:"type:varchar(32);not null"`
	Channel     string                    `gorm:"type:varchar(16);not null"`
	Status      domain.NotificationStatus `gorm:"type:varchar(20);not null"`
	ProviderSID *string                   `gorm:"type:varchar(64)"`
	Error       *string                   `gorm:"type:text"`
	CreatedAt   time.Time
}

func (TransferNotificationModel) TableName() string {
	return "transfer_notifications"
}

// CronRunLogModel is the persistence model for cron_run_logs.
type CronRunLogModel struct {
	ID             string               `gorm:"type:uuid;primaryKey"`
	JobName        string               `gorm:"type:varchar(64);not null"`
	JobType        string               `gorm:"type:varchar(64);not null"`
	TriggeredBy    string               `gorm:"type:varchar(128);not null"`
	Status         domain.CronRunStatus `gorm:"type:varchar(16);not null"`
	StartedAt      time.Time            `gorm:"type:timestamptz;not null"`
	CompletedAt    *time.Time           `gorm:"type:timestamptz"`
	DurationMs     *int64
	ItemsProcessed int            `gorm:"not null;default:0"`
	ItemsSucceeded int            `gorm:"not null;default:0"`
	ItemsFailed    int            `gorm:"not null;default:0"`
	ErrorMessage   *string        `gorm:"type:text"`
	Metadata       map[string]any `gorm:"type:jsonb;serializer:json"`
}

func (CronRunLogModel) TableName() string {
	return "cron_run_logs"
}

// WebhookLogModel is the persistence model for webhook_logs.
type WebhookLogModel struct {
	ID          string          `gorm:"type:uuid;primaryKey"`
	Provider    domain.Provider `gorm:"type:varchar(16);not null"`
	EventType   string          `gorm:"type:varchar(32);not null"`
	Payload     []byte          `gorm:"type:bytea"`
	ReceivedAt  time.Time       `gorm:"type:timestamptz;not null"`
	ProcessedAt *time.Time      `gorm:"type:timestamptz"`
}

func (WebhookLogModel) TableName() string {
	return "webhook_logs"
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func contactModelFromDomain(c *domain.Contact) *ContactModel {
	if c == nil {
		return nil
	}

	return &ContactModel{
		ID:                   newID(c.ID),
		Name:                 c.Name,
		Phone:                c.Phone,
		Email:                c.Email,
		IsUnregistered:       c.IsUnregistered,
		FirstMessageAnswered: c.FirstMessageAnswered,
		StageID:              c.StageID,
		PipelineID:           c.PipelineID,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
}

func contactModelToDomain(m *ContactModel) *domain.Contact {
	if m == nil {
		return nil
	}

	return &domain.Contact{
		ID:                   m.ID,
		Name:                 m.Name,
		Phone:                m.Phone,
		Email:                m.Email,
		IsUnregistered:       m.IsUnregistered,
		FirstMessageAnswered: m.FirstMessageAnswered,
		StageID:              m.StageID,
		PipelineID:           m.PipelineID,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func messageModelFromDomain(msg *domain.Message) *MessageModel {
	if msg == nil {
		return nil
	}

	return &MessageModel{
		ID:                newID(msg.ID),
		ProviderMessageID: msg.ProviderMessageID,
		ContactID:         msg.ContactID,
		Channel:           msg.Channel,
		Direction:         msg.Direction,
		FromNumber:        msg.From,
		ToNumber:          msg.To,
		Body:              msg.Body,
		Media:             msg.Media,
		Status:            msg.Status,
		SentAt:            msg.SentAt,
		DeliveredAt:       msg.DeliveredAt,
		ReadAt:            msg.ReadAt,
		FailedAt:          msg.FailedAt,
		ErrorCode:         msg.ErrorCode,
		ErrorMessage:      msg.ErrorMessage,
		Metadata:          msg.Metadata,
		ProviderTimestamp: msg.ProviderTimestamp,
		CreatedAt:         msg.CreatedAt,
		UpdatedAt:         msg.UpdatedAt,
	}
}

func messageModelToDomain(m *MessageModel) *domain.Message {
	if m == nil {
		return nil
	}

	return &domain.Message{
		ID:                m.ID,
		ProviderMessageID: m.ProviderMessageID,
		ContactID:         m.ContactID,
		Channel:           m.Channel,
		Direction:         m.Direction,
		From:              m.FromNumber,
		To:                m.ToNumber,
		Body:              m.Body,
		Media:             m.Media,
		Status:            m.Status,
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		ReadAt:            m.ReadAt,
		FailedAt:          m.FailedAt,
		ErrorCode:         m.ErrorCode,
		ErrorMessage:      m.ErrorMessage,
		Metadata:          m.Metadata,
		ProviderTimestamp: m.ProviderTimestamp,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func agencyModelToDomain(m *AgencyModel) *domain.Agency {
	if m == nil {
		return nil
	}

	return &domain.Agency{
		ID:           m.ID,
		Name:         m.Name,
		ContactPhone: m.ContactInfo.Phone,
	}
}

func transferModelToDomain(m *TransferModel) *domain.Transfer {
	if m == nil {
		return nil
	}

	return &domain.Transfer{
		ID:                               m.ID,
		Title:                            m.Title,
		PatientName:                      m.PatientName,
		DeadlineAt:                       m.DeadlineDatetime,
		Status:                           m.Status,
		AssignedAgencyID:                 m.AssignedAgencyID,
		Agency:                           agencyModelToDomain(m.Agency),
		NotificationNumbers:              []string(m.NotificationNumbers),
		AgencyDeadlineNotified:           m.AgencyDeadlineNotified,
		AgencyDeadlineNotificationSentAt: m.AgencyDeadlineNotificationSentAt,
		DeadlineFlowExecutionSID:         m.DeadlineFlowExecutionSID,
		CallNotificationSuccess:          m.CallNotificationSuccess,
		CallNotificationError:            m.CallNotificationError,
		DeadlineConfirmationReceived:     m.DeadlineConfirmationReceived,
		DeadlineConfirmationAt:           m.DeadlineConfirmationDatetime,
		ClosedAt:                         m.ClosedAt,
		CreatedAt:                        m.CreatedAt,
		UpdatedAt:                        m.UpdatedAt,
	}
}

func transferNotificationModelFromDomain(n *domain.TransferNotification) *TransferNotificationModel {
	if n == nil {
		return nil
	}

	return &TransferNotificationModel{
		ID:          newID(n.ID),
		TransferID:  n.TransferID,
		Type:        n.Type,
		Channel:     n.Channel,
		Status:      n.Status,
		ProviderSID: n.ProviderSID,
		Error:       n.Error,
		CreatedAt:   n.CreatedAt,
	}
}

func transferNotificationModelToDomain(m *TransferNotificationModel) *domain.TransferNotification {
	if m == nil {
		return nil
	}

	return &domain.TransferNotification{
		ID:          m.ID,
		TransferID:  m.TransferID,
		Type:        m.Type,
		Channel:     m.Channel,
		Status:      m.Status,
		ProviderSID: m.ProviderSID,
		Error:       m.Error,
		CreatedAt:   m.CreatedAt,
	}
}

func cronRunLogModelFromDomain(l *domain.CronRunLog) *CronRunLogModel {
	if l == nil {
		return nil
	}

	return &CronRunLogModel{
		ID:             newID(l.ID),
		JobName:        l.JobName,
		JobType:        l.JobType,
		TriggeredBy:    l.TriggeredBy,
		Status:         l.Status,
		StartedAt:      l.StartedAt,
		CompletedAt:    l.CompletedAt,
		DurationMs:     l.DurationMs,
		ItemsProcessed: l.ItemsProcessed,
		ItemsSucceeded: l.ItemsSucceeded,
		ItemsFailed:    l.ItemsFailed,
		ErrorMessage:   l.ErrorMessage,
		Metadata:       l.Metadata,
	}
}

func cronRunLogModelToDomain(m *CronRunLogModel) *domain.CronRunLog {
	if m == nil {
		return nil
	}

	return &domain.CronRunLog{
		ID:             m.ID,
		JobName:        m.JobName,
		JobType:        m.JobType,
		TriggeredBy:    m.TriggeredBy,
		Status:         m.Status,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		DurationMs:     m.DurationMs,
		ItemsProcessed: m.ItemsProcessed,
		ItemsSucceeded: m.ItemsSucceeded,
		ItemsFailed:    m.ItemsFailed,
		ErrorMessage:   m.ErrorMessage,
		Metadata:       m.Metadata,
	}
}

func webhookLogModelFromDomain(l *domain.WebhookLog) *WebhookLogModel {
	if l == nil {
		return nil
	}

	return &WebhookLogModel{
		ID:          newID(l.ID),
		Provider:    l.Provider,
		EventType:   l.EventType,
		Payload:     l.Payload,
		ReceivedAt:  l.ReceivedAt,
		ProcessedAt: l.ProcessedAt,
	}
}
