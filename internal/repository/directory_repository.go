package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"expense-approval-service/internal/models"
)

// DirectoryRepositoryInterface is the read-only view of the company directory
// and budget figures. Nothing behind it is ever mutated by this service.
type DirectoryRepositoryInterface interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FirstActiveUserByRoleIDs(ctx context.Context, tenantID string, roleIDs []string, exclude []uuid.UUID) (*models.User, error)
	FirstActiveUserByRoleName(ctx context.Context, tenantID, role string, exclude []uuid.UUID) (*models.User, error)
	FirstActiveBusinessHead(ctx context.Context, tenantID, department string) (*models.User, error)
	GetProject(ctx context.Context, tenantID string, id uuid.UUID) (*models.Project, error)
	GetCostCentre(ctx context.Context, tenantID string, id uuid.UUID) (*models.CostCentre, error)
}

// DirectoryRepository reads users, projects and cost centres
type DirectoryRepository struct {
	db *gorm.DB
}

// Ensure DirectoryRepository implements the interface
var _ DirectoryRepositoryInterface = (*DirectoryRepository)(nil)

// NewDirectoryRepository creates a new DirectoryRepository
func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// GetUserByID retrieves a user by ID
func (r *DirectoryRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FirstActiveUserByRoleIDs retrieves the first active user holding any of the
// given role IDs, in a stable (created_at, id) order so chain resolution is
// deterministic. Identities already placed in the chain are excluded.
func (r *DirectoryRepository) FirstActiveUserByRoleIDs(ctx context.Context, tenantID string, roleIDs []string, exclude []uuid.UUID) (*models.User, error) {
	// Role references in matrix levels may be custom role IDs or system role
	// names, so both columns are consulted.
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = true", tenantID).
		Where("role_id::text = ANY(?) OR role = ANY(?)", pq.Array(roleIDs), pq.Array(roleIDs))

	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}

	var user models.User
	err := query.Order("created_at ASC, id ASC").First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FirstActiveUserByRoleName retrieves the first active user holding a system
// role by name, same ordering rules as FirstActiveUserByRoleIDs
func (r *DirectoryRepository) FirstActiveUserByRoleName(ctx context.Context, tenantID, role string, exclude []uuid.UUID) (*models.User, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = true AND role = ?", tenantID, role)

	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}

	var user models.User
	err := query.Order("created_at ASC, id ASC").First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FirstActiveBusinessHead retrieves the first active business head, scoped to
// a department when one is given, company-wide when department is empty
func (r *DirectoryRepository) FirstActiveBusinessHead(ctx context.Context, tenantID, department string) (*models.User, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = true AND role = ?", tenantID, models.RoleBusinessHead)

	if department != "" {
		query = query.Where("department = ?", department)
	}

	var user models.User
	err := query.Order("created_at ASC, id ASC").First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetProject retrieves budget figures for a project
func (r *DirectoryRepository) GetProject(ctx context.Context, tenantID string, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// GetCostCentre retrieves budget figures for a cost centre
func (r *DirectoryRepository) GetCostCentre(ctx context.Context, tenantID string, id uuid.UUID) (*models.CostCentre, error) {
	var cc models.CostCentre
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&cc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cc, nil
}
