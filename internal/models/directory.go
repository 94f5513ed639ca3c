package models

import (
	"time"

	"github.com/google/uuid"
)

// System role names used by the routing engine
const (
	RoleBusinessHead = "business_head"
	RoleSuperAdmin   = "super_admin"
)

// User is a read-only view of the company directory. This service never
// mutates directory rows; they are owned by the staff service.
type User struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID   string     `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	Name       string     `gorm:"type:varchar(255)" json:"name"`
	Email      string     `gorm:"type:varchar(255)" json:"email"`
	RoleID     *uuid.UUID `gorm:"type:uuid;index" json:"roleId,omitempty"`
	Role       string     `gorm:"type:varchar(100);index" json:"role"`
	ManagerID  *uuid.UUID `gorm:"type:uuid" json:"managerId,omitempty"`
	Department string     `gorm:"type:varchar(100)" json:"department,omitempty"`
	IsActive   bool       `gorm:"default:true" json:"isActive"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// TableName returns the table name for User
func (User) TableName() string {
	return "users"
}

// Project carries the budget figures consulted by budget rules. Read-only here.
type Project struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	Name        string    `gorm:"type:varchar(255)" json:"name"`
	Budget      float64   `json:"budget"`
	SpentAmount float64   `json:"spentAmount"`
}

// TableName returns the table name for Project
func (Project) TableName() string {
	return "projects"
}

// CostCentre carries the budget figures consulted by budget rules. Read-only here.
type CostCentre struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    string    `gorm:"type:varchar(255);not null;index" json:"tenantId"`
	Name        string    `gorm:"type:varchar(255)" json:"name"`
	Budget      float64   `json:"budget"`
	SpentAmount float64   `json:"spentAmount"`
}

// TableName returns the table name for CostCentre
func (CostCentre) TableName() string {
	return "cost_centres"
}
