package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"expense-approval-service/internal/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict - record was modified by another request")
)

// ApprovalRepositoryInterface is the persistence surface consumed by the
// routing engine. The concrete repository carries additional admin and job
// methods that handlers and jobs use directly.
type ApprovalRepositoryInterface interface {
	GetActiveProfile(ctx context.Context, tenantID string, employeeID uuid.UUID) (*models.EmployeeApprovalProfile, error)
	GetActiveMatrix(ctx context.Context, tenantID string) (*models.ApprovalMatrix, error)
	GetMapping(ctx context.Context, tenantID string, employeeID uuid.UUID) (*models.ApproverMapping, error)
	ListActiveRules(ctx context.Context, tenantID string) ([]models.ApprovalRule, error)

	CreateInstance(ctx context.Context, instance *models.ApprovalInstance) error
	GetInstanceByID(ctx context.Context, id uuid.UUID) (*models.ApprovalInstance, error)
	GetInstanceByRequestID(ctx context.Context, tenantID string, requestID uuid.UUID) (*models.ApprovalInstance, error)
	UpdateInstanceWithLock(ctx context.Context, instance *models.ApprovalInstance) error
	UpdateApprover(ctx context.Context, approver *models.Approver) error
	MarkApproversSkipped(ctx context.Context, instanceID uuid.UUID, level int, exceptID uuid.UUID) error
	DeleteApprovers(ctx context.Context, instanceID uuid.UUID) error
	CreateHistory(ctx context.Context, entry *models.ApprovalHistory) error
	CreateAuditLog(ctx context.Context, log *models.ApprovalAuditLog) error
	GetAuditTrail(ctx context.Context, instanceID uuid.UUID) ([]models.ApprovalAuditLog, error)
	ListPendingForApprover(ctx context.Context, tenantID string, userID uuid.UUID, limit, offset int) ([]models.ApprovalInstance, int64, error)

	WithTransaction(ctx context.Context, fn func(txRepo ApprovalRepositoryInterface) error) error
}

// ApprovalRepository handles database operations for the approval engine
type ApprovalRepository struct {
	db *gorm.DB
}

// Ensure ApprovalRepository implements the interface
var _ ApprovalRepositoryInterface = (*ApprovalRepository)(nil)

// NewApprovalRepository creates a new ApprovalRepository
func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// --- Chain source reads ---

// GetActiveProfile retrieves the active personalized profile for an employee
func (r *ApprovalRepository) GetActiveProfile(ctx context.Context, tenantID string, employeeID uuid.UUID) (*models.EmployeeApprovalProfile, error) {
	var profile models.EmployeeApprovalProfile
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND employee_id = ? AND is_active = true", tenantID, employeeID).
		Order("updated_at DESC").
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// GetActiveMatrix retrieves the single active matrix for a tenant
func (r *ApprovalRepository) GetActiveMatrix(ctx context.Context, tenantID string) (*models.ApprovalMatrix, error) {
	var matrix models.ApprovalMatrix
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = true", tenantID).
		Order("updated_at DESC").
		First(&matrix).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &matrix, nil
}

// GetMapping retrieves the legacy per-employee approver mapping
func (r *ApprovalRepository) GetMapping(ctx context.Context, tenantID string, employeeID uuid.UUID) (*models.ApproverMapping, error) {
	var mapping models.ApproverMapping
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND employee_id = ?", tenantID, employeeID).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mapping, nil
}

// ListActiveRules retrieves all active budget rules for a tenant
func (r *ApprovalRepository) ListActiveRules(ctx context.Context, tenantID string) ([]models.ApprovalRule, error) {
	var rules []models.ApprovalRule
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = true", tenantID).
		Order("created_at ASC").
		Find(&rules).Error
	return rules, err
}

// --- Instance methods ---

// CreateInstance creates a new approval instance along with its approver rows
func (r *ApprovalRepository) CreateInstance(ctx context.Context, instance *models.ApprovalInstance) error {
	return r.db.WithContext(ctx).Create(instance).Error
}

// GetInstanceByID retrieves an instance by ID with its chain and history
func (r *ApprovalRepository) GetInstanceByID(ctx context.Context, id uuid.UUID) (*models.ApprovalInstance, error) {
	var instance models.ApprovalInstance
	err := r.db.WithContext(ctx).
		Preload("Approvers", func(db *gorm.DB) *gorm.DB {
			return db.Order("level_number ASC, created_at ASC")
		}).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", id).
		First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &instance, nil
}

// GetInstanceByRequestID retrieves the latest instance for a report.
// Resubmission after request_changes creates a new instance, so only the
// newest one is live.
func (r *ApprovalRepository) GetInstanceByRequestID(ctx context.Context, tenantID string, requestID uuid.UUID) (*models.ApprovalInstance, error) {
	var instance models.ApprovalInstance
	err := r.db.WithContext(ctx).
		Preload("Approvers", func(db *gorm.DB) *gorm.DB {
			return db.Order("level_number ASC, created_at ASC")
		}).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("tenant_id = ? AND request_id = ?", tenantID, requestID).
		Order("created_at DESC").
		First(&instance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &instance, nil
}

// UpdateInstanceWithLock writes status and current level guarded by the
// version column. RowsAffected == 0 means another decision won the race.
func (r *ApprovalRepository) UpdateInstanceWithLock(ctx context.Context, instance *models.ApprovalInstance) error {
	oldVersion := instance.Version

	result := r.db.WithContext(ctx).Model(&models.ApprovalInstance{}).
		Where("id = ? AND version = ?", instance.ID, oldVersion).
		Updates(map[string]interface{}{
			"status":        instance.Status,
			"current_level": instance.CurrentLevel,
			"version":       oldVersion + 1,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	instance.Version = oldVersion + 1
	return nil
}

// UpdateApprover persists an approver's decision fields
func (r *ApprovalRepository) UpdateApprover(ctx context.Context, approver *models.Approver) error {
	return r.db.WithContext(ctx).Model(&models.Approver{}).
		Where("id = ?", approver.ID).
		Updates(map[string]interface{}{
			"action":     approver.Action,
			"comment":    approver.Comment,
			"decided_at": approver.DecidedAt,
			"skipped":    approver.Skipped,
		}).Error
}

// MarkApproversSkipped marks the undecided siblings of a PARALLEL/ANY level as
// moot once the first approval lands
func (r *ApprovalRepository) MarkApproversSkipped(ctx context.Context, instanceID uuid.UUID, level int, exceptID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Approver{}).
		Where("instance_id = ? AND level_number = ? AND id <> ? AND action = ''", instanceID, level, exceptID).
		Update("skipped", true).Error
}

// DeleteApprovers clears the entire approver chain of an instance. Used by
// request_changes so that resubmission triggers full re-resolution.
func (r *ApprovalRepository) DeleteApprovers(ctx context.Context, instanceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Delete(&models.Approver{}).Error
}

// CreateHistory appends a decision record
func (r *ApprovalRepository) CreateHistory(ctx context.Context, entry *models.ApprovalHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// --- Audit methods ---

// CreateAuditLog creates an audit log entry
func (r *ApprovalRepository) CreateAuditLog(ctx context.Context, log *models.ApprovalAuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// GetAuditTrail retrieves audit history for an instance
func (r *ApprovalRepository) GetAuditTrail(ctx context.Context, instanceID uuid.UUID) ([]models.ApprovalAuditLog, error) {
	var logs []models.ApprovalAuditLog
	err := r.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// ListPendingForApprover retrieves pending instances where the user is an
// undecided approver at the current level
func (r *ApprovalRepository) ListPendingForApprover(ctx context.Context, tenantID string, userID uuid.UUID, limit, offset int) ([]models.ApprovalInstance, int64, error) {
	var instances []models.ApprovalInstance
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ApprovalInstance{}).
		Where("tenant_id = ? AND status = ?", tenantID, models.StatusPending).
		Where(`EXISTS (
			SELECT 1 FROM approval_approvers a
			WHERE a.instance_id = approval_instances.id
			  AND a.user_id = ?
			  AND a.level_number = approval_instances.current_level
			  AND a.action = '' AND a.skipped = false
		)`, userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Approvers", func(db *gorm.DB) *gorm.DB {
			return db.Order("level_number ASC, created_at ASC")
		}).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&instances).Error

	return instances, total, err
}

// WithTransaction executes fn inside a database transaction
func (r *ApprovalRepository) WithTransaction(ctx context.Context, fn func(txRepo ApprovalRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ApprovalRepository{db: tx})
	})
}

// --- Admin methods ---

// ListMatrices retrieves all matrices for a tenant
func (r *ApprovalRepository) ListMatrices(ctx context.Context, tenantID string) ([]models.ApprovalMatrix, error) {
	var matrices []models.ApprovalMatrix
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&matrices).Error
	return matrices, err
}

// GetMatrixByID retrieves a matrix by ID
func (r *ApprovalRepository) GetMatrixByID(ctx context.Context, id uuid.UUID) (*models.ApprovalMatrix, error) {
	var matrix models.ApprovalMatrix
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&matrix).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &matrix, nil
}

// CreateMatrix creates a matrix. Creating an active matrix deactivates every
// other matrix of the tenant in the same transaction.
func (r *ApprovalRepository) CreateMatrix(ctx context.Context, matrix *models.ApprovalMatrix) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if matrix.IsActive {
			if err := tx.Model(&models.ApprovalMatrix{}).
				Where("tenant_id = ?", matrix.TenantID).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(matrix).Error
	})
}

// UpdateMatrix updates a matrix's levels and activation. Activating a matrix
// deactivates every other matrix of the tenant in the same transaction, so the
// one-active-matrix invariant holds.
func (r *ApprovalRepository) UpdateMatrix(ctx context.Context, matrix *models.ApprovalMatrix) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if matrix.IsActive {
			if err := tx.Model(&models.ApprovalMatrix{}).
				Where("tenant_id = ? AND id <> ?", matrix.TenantID, matrix.ID).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}
		result := tx.Model(matrix).
			Select("name", "description", "levels", "is_active", "updated_at").
			Updates(matrix)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListRules retrieves all budget rules for a tenant, including inactive ones
func (r *ApprovalRepository) ListRules(ctx context.Context, tenantID string) ([]models.ApprovalRule, error) {
	var rules []models.ApprovalRule
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&rules).Error
	return rules, err
}

// CreateRule creates a budget rule
func (r *ApprovalRepository) CreateRule(ctx context.Context, rule *models.ApprovalRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

// GetRuleByID retrieves a budget rule by ID
func (r *ApprovalRepository) GetRuleByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRule, error) {
	var rule models.ApprovalRule
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// UpdateRule updates a budget rule's configuration
func (r *ApprovalRepository) UpdateRule(ctx context.Context, rule *models.ApprovalRule) error {
	result := r.db.WithContext(ctx).Model(rule).
		Select("name", "trigger_type", "threshold_value", "threshold_percentage",
			"approver_user_id", "approver_role_id", "approver_role", "is_active", "updated_at").
		Updates(rule)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProfile retrieves a profile regardless of active flag
func (r *ApprovalRepository) GetProfile(ctx context.Context, tenantID string, employeeID uuid.UUID) (*models.EmployeeApprovalProfile, error) {
	var profile models.EmployeeApprovalProfile
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND employee_id = ?", tenantID, employeeID).
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// UpsertProfile creates or replaces an employee's personalized chain
func (r *ApprovalRepository) UpsertProfile(ctx context.Context, profile *models.EmployeeApprovalProfile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "employee_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"approver_chain", "is_active", "updated_at"}),
	}).Create(profile).Error
}

// --- Reminder job methods ---

// FindInstancesAwaitingReminder finds pending instances whose current level has
// been idle longer than pendingFor and that have not been reminded recently
func (r *ApprovalRepository) FindInstancesAwaitingReminder(ctx context.Context, pendingFor time.Duration) ([]models.ApprovalInstance, error) {
	cutoff := time.Now().Add(-pendingFor)

	var instances []models.ApprovalInstance
	err := r.db.WithContext(ctx).
		Preload("Approvers", func(db *gorm.DB) *gorm.DB {
			return db.Order("level_number ASC, created_at ASC")
		}).
		Where("status = ? AND updated_at < ?", models.StatusPending, cutoff).
		Where("reminded_at IS NULL OR reminded_at < ?", cutoff).
		Find(&instances).Error
	return instances, err
}

// TouchReminder records that reminders were sent for an instance
func (r *ApprovalRepository) TouchReminder(ctx context.Context, instanceID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ApprovalInstance{}).
		Where("id = ?", instanceID).
		Update("reminded_at", at).Error
}
