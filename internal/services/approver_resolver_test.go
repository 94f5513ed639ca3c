package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"expense-approval-service/internal/models"
	"expense-approval-service/internal/repository"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestResolve_ProfileOverridesMatrix(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	resolver := NewApproverResolver(mockRepo, mockDir, newTestLogger())

	employeeID := uuid.New()
	approverID := uuid.New()
	profile := &models.EmployeeApprovalProfile{
		ID:         uuid.New(),
		TenantID:   "tenant-1",
		EmployeeID: employeeID,
		ApproverChain: datatypes.JSON(`[
			{"level": 1, "mode": "SEQUENTIAL", "approverUserIds": ["` + approverID.String() + `"]},
			{"level": 2, "mode": "PARALLEL", "approvalType": "ALL", "roles": ["finance"]}
		]`),
		IsActive: true,
	}

	mockRepo.On("GetActiveProfile", mock.Anything, "tenant-1", employeeID).Return(profile, nil)

	levels, source, matrixID, err := resolver.Resolve(context.Background(), ReportContext{
		TenantID:   "tenant-1",
		EmployeeID: employeeID,
	})

	assert.NoError(t, err)
	assert.Equal(t, models.SourceProfile, source)
	assert.Nil(t, matrixID)
	assert.Len(t, levels, 2)

	assert.Equal(t, 1, levels[0].LevelNumber)
	assert.Equal(t, models.ModeSequential, levels[0].EvaluationMode)
	assert.True(t, levels[0].Slots[0].IsUser())
	assert.Equal(t, approverID, *levels[0].Slots[0].UserID)

	assert.Equal(t, models.ModeParallel, levels[1].EvaluationMode)
	assert.Equal(t, models.ParallelAll, levels[1].ParallelRule)
	assert.Equal(t, []string{"finance"}, levels[1].Slots[0].RoleIDs)

	// The matrix must never be consulted when a profile is active.
	mockRepo.AssertNotCalled(t, "GetActiveMatrix", mock.Anything, mock.Anything)
}

func TestResolve_MatrixWithMappingOverlay(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	resolver := NewApproverResolver(mockRepo, mockDir, newTestLogger())

	employeeID := uuid.New()
	mappedApproverID := uuid.New()
	matrix := &models.ApprovalMatrix{
		ID:       uuid.New(),
		TenantID: "tenant-1",
		Levels: datatypes.JSON(`[
			{"levelNumber": 1, "enabled": true, "evaluationMode": "SEQUENTIAL", "approverRoleIds": ["manager-role"]},
			{"levelNumber": 2, "enabled": true, "evaluationMode": "PARALLEL", "parallelRule": "ANY", "approverRoleIds": ["finance-role"]},
			{"levelNumber": 3, "enabled": false, "evaluationMode": "SEQUENTIAL", "approverRoleIds": ["cfo-role"]}
		]`),
		IsActive: true,
	}
	mapping := &models.ApproverMapping{
		TenantID:       "tenant-1",
		EmployeeID:     employeeID,
		Level1Approver: &mappedApproverID,
	}

	mockRepo.On("GetActiveProfile", mock.Anything, "tenant-1", employeeID).Return(nil, repository.ErrNotFound)
	mockRepo.On("GetActiveMatrix", mock.Anything, "tenant-1").Return(matrix, nil)
	mockRepo.On("GetMapping", mock.Anything, "tenant-1", employeeID).Return(mapping, nil)

	levels, source, matrixID, err := resolver.Resolve(context.Background(), ReportContext{
		TenantID:   "tenant-1",
		EmployeeID: employeeID,
	})

	assert.NoError(t, err)
	assert.Equal(t, models.SourceMapping, source)
	assert.NotNil(t, matrixID)
	assert.Equal(t, matrix.ID, *matrixID)

	// Disabled level 3 is dropped.
	assert.Len(t, levels, 2)

	// The mapping replaces the identity at level 1 but structure comes from the matrix.
	assert.True(t, levels[0].Slots[0].IsUser())
	assert.Equal(t, mappedApproverID, *levels[0].Slots[0].UserID)
	assert.Equal(t, models.ModeSequential, levels[0].EvaluationMode)

	// Unmapped level 2 keeps its role slot and parallel settings.
	assert.Equal(t, []string{"finance-role"}, levels[1].Slots[0].RoleIDs)
	assert.Equal(t, models.ParallelAny, levels[1].ParallelRule)
}

func TestResolve_HierarchyFallback(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	resolver := NewApproverResolver(mockRepo, mockDir, newTestLogger())

	employeeID := uuid.New()
	managerID := uuid.New()
	headID := uuid.New()

	employee := &models.User{ID: employeeID, TenantID: "tenant-1", ManagerID: &managerID, Department: "engineering", IsActive: true}
	manager := &models.User{ID: managerID, TenantID: "tenant-1", Role: "manager", ManagerID: &headID, IsActive: true}
	head := &models.User{ID: headID, TenantID: "tenant-1", Role: models.RoleBusinessHead, IsActive: true}

	mockRepo.On("GetActiveProfile", mock.Anything, "tenant-1", employeeID).Return(nil, repository.ErrNotFound)
	mockRepo.On("GetActiveMatrix", mock.Anything, "tenant-1").Return(nil, repository.ErrNotFound)
	mockRepo.On("GetMapping", mock.Anything, "tenant-1", employeeID).Return(nil, repository.ErrNotFound)
	mockDir.On("GetUserByID", mock.Anything, employeeID).Return(employee, nil)
	mockDir.On("GetUserByID", mock.Anything, managerID).Return(manager, nil)
	mockDir.On("GetUserByID", mock.Anything, headID).Return(head, nil)

	levels, source, matrixID, err := resolver.Resolve(context.Background(), ReportContext{
		TenantID:   "tenant-1",
		EmployeeID: employeeID,
	})

	assert.NoError(t, err)
	assert.Equal(t, models.SourceHierarchy, source)
	assert.Nil(t, matrixID)
	assert.Len(t, levels, 2)

	assert.Equal(t, 1, levels[0].LevelNumber)
	assert.Equal(t, managerID, *levels[0].Slots[0].UserID)
	assert.Equal(t, models.ModeSequential, levels[0].EvaluationMode)

	assert.Equal(t, 2, levels[1].LevelNumber)
	assert.Equal(t, headID, *levels[1].Slots[0].UserID)
}

func TestResolve_HierarchyAppliesMappingOverlay(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	resolver := NewApproverResolver(mockRepo, mockDir, newTestLogger())

	employeeID := uuid.New()
	managerID := uuid.New()
	headID := uuid.New()
	mappedApproverID := uuid.New()

	employee := &models.User{ID: employeeID, TenantID: "tenant-1", ManagerID: &managerID, Department: "engineering", IsActive: true}
	manager := &models.User{ID: managerID, TenantID: "tenant-1", Role: "manager", ManagerID: &headID, IsActive: true}
	head := &models.User{ID: headID, TenantID: "tenant-1", Role: models.RoleBusinessHead, IsActive: true}
	mapping := &models.ApproverMapping{
		TenantID:       "tenant-1",
		EmployeeID:     employeeID,
		Level1Approver: &mappedApproverID,
	}

	mockRepo.On("GetActiveProfile", mock.Anything, "tenant-1", employeeID).Return(nil, repository.ErrNotFound)
	mockRepo.On("GetActiveMatrix", mock.Anything, "tenant-1").Return(nil, repository.ErrNotFound)
	mockRepo.On("GetMapping", mock.Anything, "tenant-1", employeeID).Return(mapping, nil)
	mockDir.On("GetUserByID", mock.Anything, employeeID).Return(employee, nil)
	mockDir.On("GetUserByID", mock.Anything, managerID).Return(manager, nil)
	mockDir.On("GetUserByID", mock.Anything, headID).Return(head, nil)

	levels, source, _, err := resolver.Resolve(context.Background(), ReportContext{
		TenantID:   "tenant-1",
		EmployeeID: employeeID,
	})

	assert.NoError(t, err)
	assert.Equal(t, models.SourceHierarchy, source)
	assert.Len(t, levels, 2)

	// The mapping replaces the manager identity at level 1; ordering and the
	// business-head level still come from the hierarchy.
	assert.Equal(t, mappedApproverID, *levels[0].Slots[0].UserID)
	assert.Equal(t, headID, *levels[1].Slots[0].UserID)
}

func TestResolve_HierarchyDepartmentHeadWhenNoManager(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	resolver := NewApproverResolver(mockRepo, mockDir, newTestLogger())

	employeeID := uuid.New()
	headID := uuid.New()
	employee := &models.User{ID: employeeID, TenantID: "tenant-1", Department: "sales", IsActive: true}
	head := &models.User{ID: headID, TenantID: "tenant-1", Role: models.RoleBusinessHead, IsActive: true}

	mockRepo.On("GetActiveProfile", mock.Anything, "tenant-1", employeeID).Return(nil, repository.ErrNotFound)
	mockRepo.On("GetActiveMatrix", mock.Anything, "tenant-1").Return(nil, repository.ErrNotFound)
	mockRepo.On("GetMapping", mock.Anything, "tenant-1", employeeID).Return(nil, repository.ErrNotFound)
	mockDir.On("GetUserByID", mock.Anything, employeeID).Return(employee, nil)
	mockDir.On("FirstActiveBusinessHead", mock.Anything, "tenant-1", "sales").Return(head, nil)

	levels, source, _, err := resolver.Resolve(context.Background(), ReportContext{
		TenantID:   "tenant-1",
		EmployeeID: employeeID,
	})

	assert.NoError(t, err)
	assert.Equal(t, models.SourceHierarchy, source)
	assert.Len(t, levels, 1)
	assert.Equal(t, headID, *levels[0].Slots[0].UserID)
}

func TestResolve_NothingResolvable(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	resolver := NewApproverResolver(mockRepo, mockDir, newTestLogger())

	employeeID := uuid.New()
	employee := &models.User{ID: employeeID, TenantID: "tenant-1", IsActive: true}

	mockRepo.On("GetActiveProfile", mock.Anything, "tenant-1", employeeID).Return(nil, repository.ErrNotFound)
	mockRepo.On("GetActiveMatrix", mock.Anything, "tenant-1").Return(nil, repository.ErrNotFound)
	mockRepo.On("GetMapping", mock.Anything, "tenant-1", employeeID).Return(nil, repository.ErrNotFound)
	mockDir.On("GetUserByID", mock.Anything, employeeID).Return(employee, nil)
	mockDir.On("FirstActiveBusinessHead", mock.Anything, "tenant-1", "").Return(nil, repository.ErrNotFound)

	levels, source, _, err := resolver.Resolve(context.Background(), ReportContext{
		TenantID:   "tenant-1",
		EmployeeID: employeeID,
	})

	assert.NoError(t, err)
	assert.Equal(t, models.SourceHierarchy, source)
	assert.Empty(t, levels)
}
