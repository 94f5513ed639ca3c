package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"expense-approval-service/internal/repository"
	"expense-approval-service/internal/services"
)

// ApprovalHandler handles HTTP requests for the approval lifecycle
type ApprovalHandler struct {
	service *services.ApprovalService
}

// NewApprovalHandler creates a new ApprovalHandler
func NewApprovalHandler(service *services.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// SubmitInput is the submission payload. Amount and employee come from the
// expense service, not from the caller's token, so service-to-service calls
// can submit on behalf of employees.
type SubmitInput struct {
	ReportID     string  `json:"reportId" binding:"required,uuid"`
	EmployeeID   string  `json:"employeeId" binding:"required,uuid"`
	TotalAmount  float64 `json:"totalAmount" binding:"required,gt=0"`
	Currency     string  `json:"currency"`
	ProjectID    *string `json:"projectId,omitempty"`
	CostCentreID *string `json:"costCentreId,omitempty"`
}

// DecisionInput is the payload for approve/reject/request-changes endpoints
type DecisionInput struct {
	Comment string `json:"comment"`
}

// Submit creates an approval instance for a submitted expense report
// @Summary Submit an expense report for approval
// @Tags Approvals
// @Accept json
// @Produce json
// @Param request body SubmitInput true "Submission"
// @Success 201 {object} models.ApprovalInstance
// @Router /api/v1/approvals/submit [post]
func (h *ApprovalHandler) Submit(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	var input SubmitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := reportContextFromInput(tenantID, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instance, err := h.service.InitiateApproval(c.Request.Context(), report)
	if err != nil {
		if errors.Is(err, services.ErrNoApproverResolved) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusCreated, instance)
}

// Preview resolves the chain a report would get without persisting anything
// @Summary Preview the approval chain for a report
// @Tags Approvals
// @Accept json
// @Produce json
// @Param request body SubmitInput true "Submission"
// @Success 200 {object} services.BuiltChain
// @Router /api/v1/approvals/preview [post]
func (h *ApprovalHandler) Preview(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	var input SubmitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := reportContextFromInput(tenantID, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chain, err := h.service.BuildApprovalChain(c.Request.Context(), report)
	if err != nil {
		if errors.Is(err, services.ErrNoApproverResolved) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, chain)
}

// Approve records an approve decision on a report's instance
// @Summary Approve a pending report
// @Tags Approvals
// @Accept json
// @Produce json
// @Param reportId path string true "Report ID"
// @Param request body DecisionInput true "Decision"
// @Success 200 {object} models.ApprovalInstance
// @Router /api/v1/approvals/{reportId}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	h.decide(c, "approve")
}

// Reject records a reject decision on a report's instance
// @Summary Reject a pending report
// @Tags Approvals
// @Accept json
// @Produce json
// @Param reportId path string true "Report ID"
// @Param request body DecisionInput true "Decision"
// @Success 200 {object} models.ApprovalInstance
// @Router /api/v1/approvals/{reportId}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	h.decide(c, "reject")
}

// RequestChanges sends a report back to its submitter. Comment is mandatory.
// @Summary Request changes on a pending report
// @Tags Approvals
// @Accept json
// @Produce json
// @Param reportId path string true "Report ID"
// @Param request body DecisionInput true "Decision"
// @Success 200 {object} models.ApprovalInstance
// @Router /api/v1/approvals/{reportId}/request-changes [post]
func (h *ApprovalHandler) RequestChanges(c *gin.Context) {
	h.decide(c, "request_changes")
}

func (h *ApprovalHandler) decide(c *gin.Context, action string) {
	tenantID := c.GetString("tenant_id")
	userIDStr := c.GetString("user_id")
	if tenantID == "" || userIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id and user_id are required"})
		return
	}

	actorID, err := uuid.Parse(userIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	reportID, err := uuid.Parse(c.Param("reportId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	var input DecisionInput
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	instance, err := h.service.Decide(c.Request.Context(), tenantID, reportID, actorID, action, input.Comment)
	if err != nil {
		c.JSON(decisionStatus(err), gin.H{"error": decisionMessage(err)})
		return
	}

	c.JSON(http.StatusOK, instance)
}

// GetStatus returns the latest instance for a report
// @Summary Get approval status for a report
// @Tags Approvals
// @Produce json
// @Param reportId path string true "Report ID"
// @Success 200 {object} models.ApprovalInstance
// @Router /api/v1/approvals/{reportId} [get]
func (h *ApprovalHandler) GetStatus(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	reportID, err := uuid.Parse(c.Param("reportId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	instance, err := h.service.GetInstanceForRequest(c.Request.Context(), tenantID, reportID)
	if err != nil {
		if errors.Is(err, services.ErrInstanceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, instance)
}

// GetAuditTrail returns the audit rows for a report's latest instance
// @Summary Get the audit trail for a report
// @Tags Approvals
// @Produce json
// @Param reportId path string true "Report ID"
// @Success 200 {array} models.ApprovalAuditLog
// @Router /api/v1/approvals/{reportId}/audit [get]
func (h *ApprovalHandler) GetAuditTrail(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	reportID, err := uuid.Parse(c.Param("reportId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
		return
	}

	trail, err := h.service.GetAuditTrail(c.Request.Context(), tenantID, reportID)
	if err != nil {
		if errors.Is(err, services.ErrInstanceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"auditTrail": trail})
}

// ListPending returns instances waiting on the authenticated user
// @Summary List reports pending my approval
// @Tags Approvals
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/approvals/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	userIDStr := c.GetString("user_id")
	if tenantID == "" || userIDStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id and user_id are required"})
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	instances, total, err := h.service.ListPendingForApprover(c.Request.Context(), tenantID, userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  instances,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func reportContextFromInput(tenantID string, input SubmitInput) (services.ReportContext, error) {
	reportID, err := uuid.Parse(input.ReportID)
	if err != nil {
		return services.ReportContext{}, errors.New("invalid reportId")
	}
	employeeID, err := uuid.Parse(input.EmployeeID)
	if err != nil {
		return services.ReportContext{}, errors.New("invalid employeeId")
	}

	report := services.ReportContext{
		ReportID:    reportID,
		TenantID:    tenantID,
		EmployeeID:  employeeID,
		TotalAmount: input.TotalAmount,
		Currency:    input.Currency,
	}
	if input.ProjectID != nil {
		id, pErr := uuid.Parse(*input.ProjectID)
		if pErr != nil {
			return services.ReportContext{}, errors.New("invalid projectId")
		}
		report.ProjectID = &id
	}
	if input.CostCentreID != nil {
		id, cErr := uuid.Parse(*input.CostCentreID)
		if cErr != nil {
			return services.ReportContext{}, errors.New("invalid costCentreId")
		}
		report.CostCentreID = &id
	}
	return report, nil
}

func decisionStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInstanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyDecided):
		return http.StatusConflict
	case errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrUnauthorizedApprover):
		return http.StatusForbidden
	case errors.Is(err, services.ErrCommentRequired), errors.Is(err, services.ErrInvalidAction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decisionMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrInstanceNotFound),
		errors.Is(err, services.ErrAlreadyDecided),
		errors.Is(err, repository.ErrVersionConflict),
		errors.Is(err, services.ErrUnauthorizedApprover),
		errors.Is(err, services.ErrCommentRequired),
		errors.Is(err, services.ErrInvalidAction):
		return err.Error()
	default:
		return "An internal error occurred"
	}
}
