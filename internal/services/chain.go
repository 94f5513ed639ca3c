package services

import (
	"context"

	"github.com/google/uuid"

	"expense-approval-service/internal/models"
)

// ReportContext carries the report facts the routing engine needs. The report
// itself is owned by the surrounding application; only these figures cross the
// boundary.
type ReportContext struct {
	ReportID     uuid.UUID  `json:"reportId"`
	TenantID     string     `json:"tenantId"`
	EmployeeID   uuid.UUID  `json:"employeeId"`
	TotalAmount  float64    `json:"totalAmount"`
	Currency     string     `json:"currency"`
	ProjectID    *uuid.UUID `json:"projectId,omitempty"`
	CostCentreID *uuid.UUID `json:"costCentreId,omitempty"`
}

// ApproverSource is the tagged approver value a level slot resolves from:
// a concrete user, a role set closed at build time, or a system role name.
// A set UserID always wins.
type ApproverSource struct {
	UserID  *uuid.UUID
	RoleIDs []string
	Role    string
}

// IsUser returns true when the slot already names a concrete identity
func (s ApproverSource) IsUser() bool {
	return s.UserID != nil
}

func userSlot(id uuid.UUID) ApproverSource {
	return ApproverSource{UserID: &id}
}

// ResolvedLevel is one step of the intended chain before identities are closed
type ResolvedLevel struct {
	LevelNumber    int
	EvaluationMode string
	ParallelRule   string
	Slots          []ApproverSource
	SkipAllowed    bool
}

// BuiltChain is the fully resolved, renumbered approver chain for one report
type BuiltChain struct {
	Approvers []models.Approver `json:"approvers"`
	Source    string            `json:"source"`
	MatrixID  *uuid.UUID        `json:"matrixId,omitempty"`
}

// SideEffectDispatcher is the outbound contract for notification, settlement
// and reminder requests. Implementations are fire-and-forget: the state
// machine never waits on them and their failures never roll back a decision.
type SideEffectDispatcher interface {
	ApprovalRequested(ctx context.Context, instance *models.ApprovalInstance, approverIDs []uuid.UUID)
	LevelAdvanced(ctx context.Context, instance *models.ApprovalInstance, approverIDs []uuid.UUID)
	InstanceApproved(ctx context.Context, instance *models.ApprovalInstance)
	InstanceRejected(ctx context.Context, instance *models.ApprovalInstance, actorID uuid.UUID, comment string)
	ChangesRequested(ctx context.Context, instance *models.ApprovalInstance, actorID uuid.UUID, comment string)
	ReminderDue(ctx context.Context, instance *models.ApprovalInstance, approverIDs []uuid.UUID)
}
