package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Evaluation mode constants for a chain level
const (
	ModeSequential = "SEQUENTIAL"
	ModeParallel   = "PARALLEL"
)

// Parallel satisfaction rules (meaningful only when mode is PARALLEL)
const (
	ParallelAny = "ANY"
	ParallelAll = "ALL"
)

// Level is one step of an approval matrix. ApproverUserIDs takes precedence
// over ApproverRoleIDs when non-empty. Conditions is an opaque predicate list
// that must round-trip unmodified.
type Level struct {
	LevelNumber     int             `json:"levelNumber"`
	Enabled         bool            `json:"enabled"`
	EvaluationMode  string          `json:"evaluationMode"`
	ParallelRule    string          `json:"parallelRule,omitempty"`
	ApproverRoleIDs []string        `json:"approverRoleIds,omitempty"`
	ApproverUserIDs []string        `json:"approverUserIds,omitempty"`
	Conditions      json.RawMessage `json:"conditions,omitempty"`
	SkipAllowed     bool            `json:"skipAllowed"`
}

// ApprovalMatrix is the company-wide ordered set of approval levels.
// At most one matrix per tenant is active at a time.
type ApprovalMatrix struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID    string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_matrix_tenant_name" json:"tenantId"`
	Name        string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_matrix_tenant_name" json:"name"`
	Description string         `gorm:"type:text" json:"description,omitempty"`
	Levels      datatypes.JSON `gorm:"type:jsonb;not null" json:"levels"`
	IsActive    bool           `gorm:"default:true;index" json:"isActive"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for ApprovalMatrix
func (ApprovalMatrix) TableName() string {
	return "approval_matrices"
}

// DecodeLevels unmarshals the jsonb levels column
func (m *ApprovalMatrix) DecodeLevels() ([]Level, error) {
	var levels []Level
	if len(m.Levels) == 0 {
		return levels, nil
	}
	if err := json.Unmarshal(m.Levels, &levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// ProfileLevel is a simplified level entry inside a personalized approver chain
type ProfileLevel struct {
	Level           int      `json:"level"`
	Mode            string   `json:"mode"`
	ApprovalType    string   `json:"approvalType,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	ApproverUserIDs []string `json:"approverUserIds,omitempty"`
}

// EmployeeApprovalProfile is a per-employee chain override. When active it
// replaces the company matrix entirely for that employee; the two are never merged.
type EmployeeApprovalProfile struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID      string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_profile_employee" json:"tenantId"`
	EmployeeID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_profile_employee" json:"employeeId"`
	ApproverChain datatypes.JSON `gorm:"type:jsonb;not null" json:"approverChain"`
	IsActive      bool           `gorm:"default:true" json:"isActive"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for EmployeeApprovalProfile
func (EmployeeApprovalProfile) TableName() string {
	return "employee_approval_profiles"
}

// DecodeChain unmarshals the jsonb approver chain column
func (p *EmployeeApprovalProfile) DecodeChain() ([]ProfileLevel, error) {
	var chain []ProfileLevel
	if len(p.ApproverChain) == 0 {
		return chain, nil
	}
	if err := json.Unmarshal(p.ApproverChain, &chain); err != nil {
		return nil, err
	}
	return chain, nil
}

// ApproverMapping is the legacy per-employee approver table. Each mapped level
// replaces the approver identity resolved from the matrix; ordering and
// evaluation mode still come from the matrix.
type ApproverMapping struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID       string     `gorm:"type:varchar(255);not null;index:idx_mapping_employee" json:"tenantId"`
	EmployeeID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_mapping_employee" json:"employeeId"`
	Level1Approver *uuid.UUID `gorm:"type:uuid" json:"level1Approver,omitempty"`
	Level2Approver *uuid.UUID `gorm:"type:uuid" json:"level2Approver,omitempty"`
	Level3Approver *uuid.UUID `gorm:"type:uuid" json:"level3Approver,omitempty"`
	Level4Approver *uuid.UUID `gorm:"type:uuid" json:"level4Approver,omitempty"`
	Level5Approver *uuid.UUID `gorm:"type:uuid" json:"level5Approver,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for ApproverMapping
func (ApproverMapping) TableName() string {
	return "approver_mappings"
}

// ApproverAt returns the mapped approver for levels 1-5, nil otherwise
func (m *ApproverMapping) ApproverAt(level int) *uuid.UUID {
	switch level {
	case 1:
		return m.Level1Approver
	case 2:
		return m.Level2Approver
	case 3:
		return m.Level3Approver
	case 4:
		return m.Level4Approver
	case 5:
		return m.Level5Approver
	}
	return nil
}

// Budget rule trigger types
const (
	TriggerReportAmountExceeds     = "REPORT_AMOUNT_EXCEEDS"
	TriggerProjectBudgetExceeds    = "PROJECT_BUDGET_EXCEEDS"
	TriggerCostCentreBudgetExceeds = "COST_CENTRE_BUDGET_EXCEEDS"
)

// ApprovalRule is a budget-threshold rule that injects an additional approver
// after the base chain. Exactly one of ApproverUserID, ApproverRoleID or
// ApproverRole is consulted, in that priority.
type ApprovalRule struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID            string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_rule_tenant_name" json:"tenantId"`
	Name                string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_rule_tenant_name" json:"name"`
	TriggerType         string         `gorm:"type:varchar(50);not null" json:"triggerType"`
	ThresholdValue      *float64       `json:"thresholdValue,omitempty"`
	ThresholdPercentage *float64       `json:"thresholdPercentage,omitempty"`
	ApproverUserID      *uuid.UUID     `gorm:"type:uuid" json:"approverUserId,omitempty"`
	ApproverRoleID      *uuid.UUID     `gorm:"type:uuid" json:"approverRoleId,omitempty"`
	ApproverRole        string         `gorm:"type:varchar(50)" json:"approverRole,omitempty"`
	IsActive            bool           `gorm:"default:true;index" json:"isActive"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the table name for ApprovalRule
func (ApprovalRule) TableName() string {
	return "approval_rules"
}
