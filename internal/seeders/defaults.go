package seeders

import (
	"expense-approval-service/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedDefaults creates or updates the system-level routing configuration.
// Rows use tenant_id 'system' and serve as a reference setup for new tenants;
// routing itself only consults tenant-scoped rows.
func SeedDefaults(db *gorm.DB) error {
	matrices := []models.ApprovalMatrix{
		{
			TenantID:    "system",
			Name:        "default_expense_matrix",
			Description: "Two-level default: reporting manager, then any finance approver",
			Levels: datatypes.JSON(`[
				{"levelNumber": 1, "enabled": true, "evaluationMode": "SEQUENTIAL", "approverRoleIds": ["manager"]},
				{"levelNumber": 2, "enabled": true, "evaluationMode": "PARALLEL", "parallelRule": "ANY", "approverRoleIds": ["finance"]}
			]`),
			IsActive: true,
		},
	}

	for _, matrix := range matrices {
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"description", "levels", "is_active", "updated_at"}),
		}).Create(&matrix)
		if result.Error != nil {
			return result.Error
		}
	}

	threshold := 10000.0
	rules := []models.ApprovalRule{
		{
			TenantID:       "system",
			Name:           "high_value_report",
			TriggerType:    models.TriggerReportAmountExceeds,
			ThresholdValue: &threshold,
			ApproverRole:   "finance_head",
			IsActive:       true,
		},
	}

	for _, rule := range rules {
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"trigger_type", "threshold_value", "approver_role", "is_active", "updated_at"}),
		}).Create(&rule)
		if result.Error != nil {
			return result.Error
		}
	}

	return nil
}
