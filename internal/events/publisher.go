package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"expense-approval-service/internal/models"
)

// Subjects published by this service
const (
	SubjectApprovalRequested   = "expense.approval.requested"
	SubjectApprovalAdvanced    = "expense.approval.level_advanced"
	SubjectApprovalApproved    = "expense.approval.approved"
	SubjectApprovalRejected    = "expense.approval.rejected"
	SubjectChangesRequested    = "expense.approval.changes_requested"
	SubjectApprovalReminder    = "expense.approval.reminder"
	SubjectSettlementRequested = "expense.settlement.requested"
)

const publishTimeout = 5 * time.Second

// ApprovalEvent is the wire payload for all expense.approval.* subjects
type ApprovalEvent struct {
	EventID      string   `json:"eventId"`
	InstanceID   string   `json:"instanceId"`
	RequestID    string   `json:"requestId"`
	RequestType  string   `json:"requestType"`
	TenantID     string   `json:"tenantId"`
	Status       string   `json:"status"`
	CurrentLevel int      `json:"currentLevel,omitempty"`
	ActorID      string   `json:"actorId,omitempty"`
	Comment      string   `json:"comment,omitempty"`
	ApproverIDs  []string `json:"approverIds,omitempty"`
	Timestamp    string   `json:"timestamp"`
}

// Publisher sends approval lifecycle events over NATS. Publishing is
// fire-and-forget: failures are logged and never surface to the caller.
type Publisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewPublisher connects to NATS. The connection reconnects indefinitely, so a
// broker restart only delays delivery.
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("expense-approval-service"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		conn:   conn,
		logger: logger.WithField("component", "approval-events"),
	}, nil
}

// Close drains the NATS connection
func (p *Publisher) Close() {
	if p.conn != nil {
		if err := p.conn.Drain(); err != nil {
			p.logger.WithError(err).Warn("failed to drain nats connection")
		}
	}
}

// ApprovalRequested announces a new pending instance to its first approvers
func (p *Publisher) ApprovalRequested(ctx context.Context, instance *models.ApprovalInstance, approverIDs []uuid.UUID) {
	event := p.buildEvent(instance)
	event.ApproverIDs = idStrings(approverIDs)
	p.publishAsync(SubjectApprovalRequested, event)
}

// LevelAdvanced announces that the chain moved to a new level
func (p *Publisher) LevelAdvanced(ctx context.Context, instance *models.ApprovalInstance, approverIDs []uuid.UUID) {
	event := p.buildEvent(instance)
	event.ApproverIDs = idStrings(approverIDs)
	p.publishAsync(SubjectApprovalAdvanced, event)
}

// InstanceApproved announces terminal approval and requests settlement
func (p *Publisher) InstanceApproved(ctx context.Context, instance *models.ApprovalInstance) {
	event := p.buildEvent(instance)
	p.publishAsync(SubjectApprovalApproved, event)
	p.publishAsync(SubjectSettlementRequested, event)
}

// InstanceRejected announces terminal rejection
func (p *Publisher) InstanceRejected(ctx context.Context, instance *models.ApprovalInstance, actorID uuid.UUID, comment string) {
	event := p.buildEvent(instance)
	event.ActorID = actorID.String()
	event.Comment = comment
	p.publishAsync(SubjectApprovalRejected, event)
}

// ChangesRequested announces that the report went back to its submitter
func (p *Publisher) ChangesRequested(ctx context.Context, instance *models.ApprovalInstance, actorID uuid.UUID, comment string) {
	event := p.buildEvent(instance)
	event.ActorID = actorID.String()
	event.Comment = comment
	p.publishAsync(SubjectChangesRequested, event)
}

// ReminderDue nudges the approvers an instance has been waiting on
func (p *Publisher) ReminderDue(ctx context.Context, instance *models.ApprovalInstance, approverIDs []uuid.UUID) {
	event := p.buildEvent(instance)
	event.ApproverIDs = idStrings(approverIDs)
	p.publishAsync(SubjectApprovalReminder, event)
}

func (p *Publisher) buildEvent(instance *models.ApprovalInstance) *ApprovalEvent {
	return &ApprovalEvent{
		EventID:      uuid.New().String(),
		InstanceID:   instance.ID.String(),
		RequestID:    instance.RequestID.String(),
		RequestType:  instance.RequestType,
		TenantID:     instance.TenantID,
		Status:       instance.Status,
		CurrentLevel: instance.CurrentLevel,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
}

func (p *Publisher) publishAsync(subject string, event *ApprovalEvent) {
	go func() {
		data, err := json.Marshal(event)
		if err != nil {
			p.logger.WithError(err).WithField("subject", subject).Error("failed to marshal event")
			return
		}
		if err := p.conn.Publish(subject, data); err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"subject":    subject,
				"request_id": event.RequestID,
			}).Error("failed to publish event")
			return
		}
		if err := p.conn.FlushTimeout(publishTimeout); err != nil {
			p.logger.WithError(err).WithField("subject", subject).Warn("event flush timed out")
			return
		}
		p.logger.WithFields(logrus.Fields{
			"subject":    subject,
			"request_id": event.RequestID,
		}).Debug("event published")
	}()
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
