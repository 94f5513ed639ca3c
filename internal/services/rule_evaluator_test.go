package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"expense-approval-service/internal/models"
	"expense-approval-service/internal/repository"
)

func floatPtr(v float64) *float64 { return &v }

func TestEvaluate_AmountRuleTriggers(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	evaluator := NewRuleEvaluator(mockRepo, mockDir, newTestLogger())

	financeHeadID := uuid.New()
	rule := models.ApprovalRule{
		ID:             uuid.New(),
		TenantID:       "tenant-1",
		Name:           "high_value",
		TriggerType:    models.TriggerReportAmountExceeds,
		ThresholdValue: floatPtr(5000),
		ApproverRole:   "finance_head",
		IsActive:       true,
	}

	mockRepo.On("ListActiveRules", mock.Anything, "tenant-1").Return([]models.ApprovalRule{rule}, nil)
	mockDir.On("FirstActiveUserByRoleName", mock.Anything, "tenant-1", "finance_head", mock.Anything).
		Return(&models.User{ID: financeHeadID, Role: "finance_head", IsActive: true}, nil)

	additional := evaluator.Evaluate(context.Background(), ReportContext{
		TenantID:    "tenant-1",
		TotalAmount: 6000,
	}, map[uuid.UUID]struct{}{})

	assert.Len(t, additional, 1)
	assert.Equal(t, financeHeadID, additional[0].UserID)
	assert.True(t, additional[0].IsAdditionalApproval)
	assert.Equal(t, rule.ID, *additional[0].ApprovalRuleID)
	assert.Contains(t, additional[0].TriggerReason, "6000.00")
	assert.Contains(t, additional[0].TriggerReason, "5000.00")
}

func TestEvaluate_AmountBelowThresholdDoesNotTrigger(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	evaluator := NewRuleEvaluator(mockRepo, mockDir, newTestLogger())

	rule := models.ApprovalRule{
		ID:             uuid.New(),
		TenantID:       "tenant-1",
		TriggerType:    models.TriggerReportAmountExceeds,
		ThresholdValue: floatPtr(5000),
		ApproverRole:   "finance_head",
	}
	mockRepo.On("ListActiveRules", mock.Anything, "tenant-1").Return([]models.ApprovalRule{rule}, nil)

	additional := evaluator.Evaluate(context.Background(), ReportContext{
		TenantID:    "tenant-1",
		TotalAmount: 3000,
	}, map[uuid.UUID]struct{}{})

	assert.Empty(t, additional)
	mockDir.AssertNotCalled(t, "FirstActiveUserByRoleName", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluate_AmountAtThresholdTriggers(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	evaluator := NewRuleEvaluator(mockRepo, mockDir, newTestLogger())

	approverID := uuid.New()
	rule := models.ApprovalRule{
		ID:             uuid.New(),
		TenantID:       "tenant-1",
		TriggerType:    models.TriggerReportAmountExceeds,
		ThresholdValue: floatPtr(5000),
		ApproverUserID: &approverID,
	}
	mockRepo.On("ListActiveRules", mock.Anything, "tenant-1").Return([]models.ApprovalRule{rule}, nil)
	mockDir.On("GetUserByID", mock.Anything, approverID).
		Return(&models.User{ID: approverID, Role: "cfo", IsActive: true}, nil)

	additional := evaluator.Evaluate(context.Background(), ReportContext{
		TenantID:    "tenant-1",
		TotalAmount: 5000,
	}, map[uuid.UUID]struct{}{})

	assert.Len(t, additional, 1)
}

func TestEvaluate_ProjectBudgetRule(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	evaluator := NewRuleEvaluator(mockRepo, mockDir, newTestLogger())

	projectID := uuid.New()
	approverID := uuid.New()
	rule := models.ApprovalRule{
		ID:                  uuid.New(),
		TenantID:            "tenant-1",
		TriggerType:         models.TriggerProjectBudgetExceeds,
		ThresholdPercentage: floatPtr(80),
		ApproverUserID:      &approverID,
	}
	mockRepo.On("ListActiveRules", mock.Anything, "tenant-1").Return([]models.ApprovalRule{rule}, nil)
	// 7000 spent + 1500 report = 8500, which is past 80% of 10000.
	mockDir.On("GetProject", mock.Anything, "tenant-1", projectID).
		Return(&models.Project{ID: projectID, Budget: 10000, SpentAmount: 7000}, nil)
	mockDir.On("GetUserByID", mock.Anything, approverID).
		Return(&models.User{ID: approverID, Role: "project_owner", IsActive: true}, nil)

	additional := evaluator.Evaluate(context.Background(), ReportContext{
		TenantID:    "tenant-1",
		TotalAmount: 1500,
		ProjectID:   &projectID,
	}, map[uuid.UUID]struct{}{})

	assert.Len(t, additional, 1)
	assert.Contains(t, additional[0].TriggerReason, "80%")
}

func TestEvaluate_RuleWithoutProjectContextIsSkipped(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	evaluator := NewRuleEvaluator(mockRepo, mockDir, newTestLogger())

	rule := models.ApprovalRule{
		ID:                  uuid.New(),
		TenantID:            "tenant-1",
		TriggerType:         models.TriggerProjectBudgetExceeds,
		ThresholdPercentage: floatPtr(80),
		ApproverRole:        "project_owner",
	}
	mockRepo.On("ListActiveRules", mock.Anything, "tenant-1").Return([]models.ApprovalRule{rule}, nil)

	additional := evaluator.Evaluate(context.Background(), ReportContext{
		TenantID:    "tenant-1",
		TotalAmount: 1500,
	}, map[uuid.UUID]struct{}{})

	assert.Empty(t, additional)
}

func TestEvaluate_DuplicateApproverIsDropped(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	evaluator := NewRuleEvaluator(mockRepo, mockDir, newTestLogger())

	approverID := uuid.New()
	rule := models.ApprovalRule{
		ID:             uuid.New(),
		TenantID:       "tenant-1",
		TriggerType:    models.TriggerReportAmountExceeds,
		ThresholdValue: floatPtr(100),
		ApproverUserID: &approverID,
	}
	mockRepo.On("ListActiveRules", mock.Anything, "tenant-1").Return([]models.ApprovalRule{rule}, nil)
	mockDir.On("GetUserByID", mock.Anything, approverID).
		Return(&models.User{ID: approverID, Role: "cfo", IsActive: true}, nil)

	placed := map[uuid.UUID]struct{}{approverID: {}}
	additional := evaluator.Evaluate(context.Background(), ReportContext{
		TenantID:    "tenant-1",
		TotalAmount: 500,
	}, placed)

	assert.Empty(t, additional)
}

func TestEvaluate_UnresolvableApproverDropsRule(t *testing.T) {
	mockRepo := new(MockApprovalRepository)
	mockDir := new(MockDirectoryRepository)
	evaluator := NewRuleEvaluator(mockRepo, mockDir, newTestLogger())

	rule := models.ApprovalRule{
		ID:             uuid.New(),
		TenantID:       "tenant-1",
		TriggerType:    models.TriggerReportAmountExceeds,
		ThresholdValue: floatPtr(100),
		ApproverRole:   "finance_head",
	}
	mockRepo.On("ListActiveRules", mock.Anything, "tenant-1").Return([]models.ApprovalRule{rule}, nil)
	mockDir.On("FirstActiveUserByRoleName", mock.Anything, "tenant-1", "finance_head", mock.Anything).
		Return(nil, repository.ErrNotFound)

	additional := evaluator.Evaluate(context.Background(), ReportContext{
		TenantID:    "tenant-1",
		TotalAmount: 500,
	}, map[uuid.UUID]struct{}{})

	assert.Empty(t, additional)
}
