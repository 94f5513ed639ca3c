package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"expense-approval-service/internal/models"
	"expense-approval-service/internal/repository"
)

// MockApprovalRepository is a mock implementation of ApprovalRepositoryInterface
type MockApprovalRepository struct {
	mock.Mock
}

var _ repository.ApprovalRepositoryInterface = (*MockApprovalRepository)(nil)

func (m *MockApprovalRepository) GetActiveProfile(ctx context.Context, tenantID string, employeeID uuid.UUID) (*models.EmployeeApprovalProfile, error) {
	args := m.Called(ctx, tenantID, employeeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmployeeApprovalProfile), args.Error(1)
}

func (m *MockApprovalRepository) GetActiveMatrix(ctx context.Context, tenantID string) (*models.ApprovalMatrix, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ApprovalMatrix), args.Error(1)
}

func (m *MockApprovalRepository) GetMapping(ctx context.Context, tenantID string, employeeID uuid.UUID) (*models.ApproverMapping, error) {
	args := m.Called(ctx, tenantID, employeeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ApproverMapping), args.Error(1)
}

func (m *MockApprovalRepository) ListActiveRules(ctx context.Context, tenantID string) ([]models.ApprovalRule, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).([]models.ApprovalRule), args.Error(1)
}

func (m *MockApprovalRepository) CreateInstance(ctx context.Context, instance *models.ApprovalInstance) error {
	args := m.Called(ctx, instance)
	if args.Error(0) == nil && instance.ID == uuid.Nil {
		instance.ID = uuid.New()
		instance.CreatedAt = time.Now()
	}
	return args.Error(0)
}

func (m *MockApprovalRepository) GetInstanceByID(ctx context.Context, id uuid.UUID) (*models.ApprovalInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ApprovalInstance), args.Error(1)
}

func (m *MockApprovalRepository) GetInstanceByRequestID(ctx context.Context, tenantID string, requestID uuid.UUID) (*models.ApprovalInstance, error) {
	args := m.Called(ctx, tenantID, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ApprovalInstance), args.Error(1)
}

func (m *MockApprovalRepository) UpdateInstanceWithLock(ctx context.Context, instance *models.ApprovalInstance) error {
	args := m.Called(ctx, instance)
	if args.Error(0) == nil {
		instance.Version++
	}
	return args.Error(0)
}

func (m *MockApprovalRepository) UpdateApprover(ctx context.Context, approver *models.Approver) error {
	args := m.Called(ctx, approver)
	return args.Error(0)
}

func (m *MockApprovalRepository) MarkApproversSkipped(ctx context.Context, instanceID uuid.UUID, level int, exceptID uuid.UUID) error {
	args := m.Called(ctx, instanceID, level, exceptID)
	return args.Error(0)
}

func (m *MockApprovalRepository) DeleteApprovers(ctx context.Context, instanceID uuid.UUID) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

func (m *MockApprovalRepository) CreateHistory(ctx context.Context, entry *models.ApprovalHistory) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockApprovalRepository) CreateAuditLog(ctx context.Context, log *models.ApprovalAuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockApprovalRepository) GetAuditTrail(ctx context.Context, instanceID uuid.UUID) ([]models.ApprovalAuditLog, error) {
	args := m.Called(ctx, instanceID)
	return args.Get(0).([]models.ApprovalAuditLog), args.Error(1)
}

func (m *MockApprovalRepository) ListPendingForApprover(ctx context.Context, tenantID string, userID uuid.UUID, limit, offset int) ([]models.ApprovalInstance, int64, error) {
	args := m.Called(ctx, tenantID, userID, limit, offset)
	return args.Get(0).([]models.ApprovalInstance), args.Get(1).(int64), args.Error(2)
}

func (m *MockApprovalRepository) WithTransaction(ctx context.Context, fn func(txRepo repository.ApprovalRepositoryInterface) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(m)
}

// MockDirectoryRepository is a mock implementation of DirectoryRepositoryInterface
type MockDirectoryRepository struct {
	mock.Mock
}

var _ repository.DirectoryRepositoryInterface = (*MockDirectoryRepository)(nil)

func (m *MockDirectoryRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDirectoryRepository) FirstActiveUserByRoleIDs(ctx context.Context, tenantID string, roleIDs []string, exclude []uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, tenantID, roleIDs, exclude)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDirectoryRepository) FirstActiveUserByRoleName(ctx context.Context, tenantID, role string, exclude []uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, tenantID, role, exclude)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDirectoryRepository) FirstActiveBusinessHead(ctx context.Context, tenantID, department string) (*models.User, error) {
	args := m.Called(ctx, tenantID, department)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDirectoryRepository) GetProject(ctx context.Context, tenantID string, id uuid.UUID) (*models.Project, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockDirectoryRepository) GetCostCentre(ctx context.Context, tenantID string, id uuid.UUID) (*models.CostCentre, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CostCentre), args.Error(1)
}
