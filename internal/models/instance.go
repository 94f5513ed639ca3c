package models

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalInstance status constants
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Decision actions
const (
	ActionApprove        = "approve"
	ActionReject         = "reject"
	ActionRequestChanges = "request_changes"
)

// Request types routed through the engine
const (
	RequestTypeExpenseReport = "EXPENSE_REPORT"
)

// Chain source tiers, recorded at resolution time
const (
	SourceProfile   = "profile"
	SourceMatrix    = "matrix"
	SourceMapping   = "matrix+mapping"
	SourceHierarchy = "hierarchy"
)

// ApprovalInstance tracks progress of one expense report through its resolved
// approval chain. It is mutated only by the decision processor and becomes
// immutable once status leaves pending.
type ApprovalInstance struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID     string     `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	RequestID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"requestId"`
	RequestType  string     `gorm:"type:varchar(50);not null" json:"requestType"`
	MatrixID     *uuid.UUID `gorm:"type:uuid" json:"matrixId,omitempty"`
	ChainSource  string     `gorm:"type:varchar(30)" json:"chainSource"`
	CurrentLevel int        `gorm:"default:0" json:"currentLevel"`
	Status       string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Version      int        `gorm:"not null;default:1" json:"version"` // Optimistic locking
	RemindedAt   *time.Time `json:"remindedAt,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`

	// Relations
	Approvers []Approver        `gorm:"foreignKey:InstanceID" json:"approvers,omitempty"`
	History   []ApprovalHistory `gorm:"foreignKey:InstanceID" json:"history,omitempty"`
}

// TableName returns the table name for ApprovalInstance
func (ApprovalInstance) TableName() string {
	return "approval_instances"
}

// IsTerminal returns true if the status is a terminal state
func (i *ApprovalInstance) IsTerminal() bool {
	return i.Status == StatusApproved || i.Status == StatusRejected
}

// Approver is one slot in an instance's resolved chain. Role is a display
// label frozen at build time and never recomputed. TriggerReason is frozen at
// rule-evaluation time for additional approvers.
type Approver struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InstanceID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"instanceId"`
	LevelNumber          int        `gorm:"not null" json:"level"`
	EvaluationMode       string     `gorm:"type:varchar(20);not null" json:"evaluationMode"`
	ParallelRule         string     `gorm:"type:varchar(10)" json:"parallelRule,omitempty"`
	UserID               uuid.UUID  `gorm:"type:uuid;not null;index" json:"userId"`
	Role                 string     `gorm:"type:varchar(100)" json:"role,omitempty"`
	Action               string     `gorm:"type:varchar(20)" json:"action,omitempty"`
	Comment              string     `gorm:"type:text" json:"comment,omitempty"`
	DecidedAt            *time.Time `json:"decidedAt,omitempty"`
	Skipped              bool       `gorm:"default:false" json:"skipped"`
	IsAdditionalApproval bool       `gorm:"default:false" json:"isAdditionalApproval"`
	ApprovalRuleID       *uuid.UUID `gorm:"type:uuid" json:"approvalRuleId,omitempty"`
	TriggerReason        string     `gorm:"type:text" json:"triggerReason,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName returns the table name for Approver
func (Approver) TableName() string {
	return "approval_approvers"
}

// Decided returns true once the approver has acted
func (a *Approver) Decided() bool {
	return a.Action != ""
}

// ApprovalHistory is an append-only record of decisions taken on an instance
type ApprovalHistory struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	InstanceID  uuid.UUID `gorm:"type:uuid;not null;index" json:"instanceId"`
	LevelNumber int       `gorm:"not null" json:"levelNumber"`
	ApproverID  uuid.UUID `gorm:"type:uuid;not null" json:"approverId"`
	Status      string    `gorm:"type:varchar(20);not null" json:"status"`
	Comments    string    `gorm:"type:text" json:"comments,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"timestamp"`
}

// TableName returns the table name for ApprovalHistory
func (ApprovalHistory) TableName() string {
	return "approval_history"
}
