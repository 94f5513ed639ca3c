package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"expense-approval-service/internal/models"
	"expense-approval-service/internal/repository"
)

// AdminHandler exposes the routing configuration: matrices, budget rules and
// per-employee profiles. It talks to the concrete repository directly.
type AdminHandler struct {
	repo *repository.ApprovalRepository
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(repo *repository.ApprovalRepository) *AdminHandler {
	return &AdminHandler{repo: repo}
}

// MatrixInput is the create/update payload for an approval matrix
type MatrixInput struct {
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	Levels      []models.Level `json:"levels" binding:"required,min=1"`
	IsActive    *bool          `json:"isActive"`
}

// ListMatrices returns all matrices for the tenant
// @Summary List approval matrices
// @Tags Admin
// @Produce json
// @Success 200 {array} models.ApprovalMatrix
// @Router /api/v1/admin/matrices [get]
func (h *AdminHandler) ListMatrices(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	matrices, err := h.repo.ListMatrices(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matrices": matrices})
}

// CreateMatrix creates an approval matrix
// @Summary Create an approval matrix
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body MatrixInput true "Matrix"
// @Success 201 {object} models.ApprovalMatrix
// @Router /api/v1/admin/matrices [post]
func (h *AdminHandler) CreateMatrix(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	var input MatrixInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	levels, err := encodeLevels(input.Levels)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	matrix := &models.ApprovalMatrix{
		TenantID:    tenantID,
		Name:        input.Name,
		Description: input.Description,
		Levels:      levels,
		IsActive:    input.IsActive == nil || *input.IsActive,
	}
	if err := h.repo.CreateMatrix(c.Request.Context(), matrix); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}
	c.JSON(http.StatusCreated, matrix)
}

// UpdateMatrix updates a matrix's levels and activation
// @Summary Update an approval matrix
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Matrix ID"
// @Param request body MatrixInput true "Matrix"
// @Success 200 {object} models.ApprovalMatrix
// @Router /api/v1/admin/matrices/{id} [put]
func (h *AdminHandler) UpdateMatrix(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid matrix id"})
		return
	}

	existing, err := h.repo.GetMatrixByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "matrix not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}
	if existing.TenantID != tenantID {
		c.JSON(http.StatusNotFound, gin.H{"error": "matrix not found"})
		return
	}

	var input MatrixInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	levels, err := encodeLevels(input.Levels)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing.Name = input.Name
	existing.Description = input.Description
	existing.Levels = levels
	if input.IsActive != nil {
		existing.IsActive = *input.IsActive
	}
	if err := h.repo.UpdateMatrix(c.Request.Context(), existing); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "matrix not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}
	c.JSON(http.StatusOK, existing)
}

// RuleInput is the create/update payload for a budget rule
type RuleInput struct {
	Name                string   `json:"name" binding:"required"`
	TriggerType         string   `json:"triggerType" binding:"required"`
	ThresholdValue      *float64 `json:"thresholdValue"`
	ThresholdPercentage *float64 `json:"thresholdPercentage"`
	ApproverUserID      *string  `json:"approverUserId"`
	ApproverRoleID      *string  `json:"approverRoleId"`
	ApproverRole        string   `json:"approverRole"`
	IsActive            *bool    `json:"isActive"`
}

// ListRules returns all budget rules for the tenant
// @Summary List budget rules
// @Tags Admin
// @Produce json
// @Success 200 {array} models.ApprovalRule
// @Router /api/v1/admin/rules [get]
func (h *AdminHandler) ListRules(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	rules, err := h.repo.ListRules(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// CreateRule creates a budget rule
// @Summary Create a budget rule
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body RuleInput true "Rule"
// @Success 201 {object} models.ApprovalRule
// @Router /api/v1/admin/rules [post]
func (h *AdminHandler) CreateRule(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	var input RuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := ruleFromInput(tenantID, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.CreateRule(c.Request.Context(), rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule updates a budget rule
// @Summary Update a budget rule
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param request body RuleInput true "Rule"
// @Success 200 {object} models.ApprovalRule
// @Router /api/v1/admin/rules/{id} [put]
func (h *AdminHandler) UpdateRule(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	existing, err := h.repo.GetRuleByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}
	if existing.TenantID != tenantID {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}

	var input RuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := ruleFromInput(tenantID, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.ID = id
	if err := h.repo.UpdateRule(c.Request.Context(), rule); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// ProfileInput is the upsert payload for a per-employee approver chain
type ProfileInput struct {
	EmployeeID    string                `json:"employeeId" binding:"required,uuid"`
	ApproverChain []models.ProfileLevel `json:"approverChain" binding:"required"`
	IsActive      *bool                 `json:"isActive"`
}

// GetProfile returns an employee's profile, active or not
// @Summary Get an employee approval profile
// @Tags Admin
// @Produce json
// @Param employeeId path string true "Employee ID"
// @Success 200 {object} models.EmployeeApprovalProfile
// @Router /api/v1/admin/profiles/{employeeId} [get]
func (h *AdminHandler) GetProfile(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	employeeID, err := uuid.Parse(c.Param("employeeId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid employee id"})
		return
	}

	profile, err := h.repo.GetProfile(c.Request.Context(), tenantID, employeeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpsertProfile creates or replaces an employee's profile
// @Summary Upsert an employee approval profile
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body ProfileInput true "Profile"
// @Success 200 {object} models.EmployeeApprovalProfile
// @Router /api/v1/admin/profiles [put]
func (h *AdminHandler) UpsertProfile(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	var input ProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	employeeID, err := uuid.Parse(input.EmployeeID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid employeeId"})
		return
	}
	chain, err := json.Marshal(input.ApproverChain)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile := &models.EmployeeApprovalProfile{
		TenantID:      tenantID,
		EmployeeID:    employeeID,
		ApproverChain: chain,
		IsActive:      input.IsActive == nil || *input.IsActive,
	}
	if err := h.repo.UpsertProfile(c.Request.Context(), profile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func encodeLevels(levels []models.Level) (datatypes.JSON, error) {
	seen := map[int]bool{}
	for _, lvl := range levels {
		if lvl.LevelNumber < 1 {
			return nil, errors.New("level numbers must start at 1")
		}
		if seen[lvl.LevelNumber] {
			return nil, errors.New("duplicate level number")
		}
		seen[lvl.LevelNumber] = true
	}
	return json.Marshal(levels)
}

func ruleFromInput(tenantID string, input RuleInput) (*models.ApprovalRule, error) {
	switch input.TriggerType {
	case models.TriggerReportAmountExceeds:
		if input.ThresholdValue == nil {
			return nil, errors.New("thresholdValue is required for this trigger type")
		}
	case models.TriggerProjectBudgetExceeds, models.TriggerCostCentreBudgetExceeds:
		if input.ThresholdPercentage == nil {
			return nil, errors.New("thresholdPercentage is required for this trigger type")
		}
	default:
		return nil, errors.New("unknown trigger type")
	}

	rule := &models.ApprovalRule{
		TenantID:            tenantID,
		Name:                input.Name,
		TriggerType:         input.TriggerType,
		ThresholdValue:      input.ThresholdValue,
		ThresholdPercentage: input.ThresholdPercentage,
		ApproverRole:        input.ApproverRole,
		IsActive:            input.IsActive == nil || *input.IsActive,
	}
	if input.ApproverUserID != nil {
		id, err := uuid.Parse(*input.ApproverUserID)
		if err != nil {
			return nil, errors.New("invalid approverUserId")
		}
		rule.ApproverUserID = &id
	}
	if input.ApproverRoleID != nil {
		id, err := uuid.Parse(*input.ApproverRoleID)
		if err != nil {
			return nil, errors.New("invalid approverRoleId")
		}
		rule.ApproverRoleID = &id
	}
	if rule.ApproverUserID == nil && rule.ApproverRoleID == nil && rule.ApproverRole == "" {
		return nil, errors.New("an approver is required")
	}
	return rule, nil
}
