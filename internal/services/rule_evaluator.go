package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"expense-approval-service/internal/models"
	"expense-approval-service/internal/repository"
)

// RuleEvaluator turns the tenant's active budget rules into additional
// approver stubs for a single report. Rule evaluation never blocks a
// submission: a rule that cannot be evaluated or whose approver cannot be
// resolved is logged and skipped.
type RuleEvaluator struct {
	repo      repository.ApprovalRepositoryInterface
	directory repository.DirectoryRepositoryInterface
	logger    *logrus.Entry
}

func NewRuleEvaluator(repo repository.ApprovalRepositoryInterface, directory repository.DirectoryRepositoryInterface, logger *logrus.Logger) *RuleEvaluator {
	return &RuleEvaluator{
		repo:      repo,
		directory: directory,
		logger:    logger.WithField("component", "rule_evaluator"),
	}
}

// Evaluate returns one approver stub per triggered rule, in rule creation
// order. placed holds identities already in the chain; triggered rules whose
// approver is already placed are dropped, and every returned approver is
// added to placed. Level numbers are assigned later by the chain builder.
func (e *RuleEvaluator) Evaluate(ctx context.Context, report ReportContext, placed map[uuid.UUID]struct{}) []models.Approver {
	rules, err := e.repo.ListActiveRules(ctx, report.TenantID)
	if err != nil {
		e.logger.WithError(err).WithField("tenant_id", report.TenantID).Error("failed to load budget rules")
		return nil
	}

	var additional []models.Approver
	for i := range rules {
		rule := rules[i]
		triggered, reason, evalErr := e.evaluateTrigger(ctx, &rule, report)
		if evalErr != nil {
			e.logger.WithError(evalErr).WithFields(logrus.Fields{
				"rule_id":      rule.ID,
				"trigger_type": rule.TriggerType,
			}).Warn("skipping unevaluable budget rule")
			continue
		}
		if !triggered {
			continue
		}

		user := e.resolveRuleApprover(ctx, &rule, report.TenantID, placed)
		if user == nil {
			e.logger.WithField("rule_id", rule.ID).Warn("triggered rule has no resolvable approver, dropping")
			continue
		}
		if _, dup := placed[user.ID]; dup {
			continue
		}
		placed[user.ID] = struct{}{}

		ruleID := rule.ID
		additional = append(additional, models.Approver{
			EvaluationMode:       models.ModeSequential,
			UserID:               user.ID,
			Role:                 user.Role,
			IsAdditionalApproval: true,
			ApprovalRuleID:       &ruleID,
			TriggerReason:        reason,
		})
	}
	return additional
}

// evaluateTrigger applies the rule's threshold to the report. Projected spend
// is current spend plus this report's total; meeting a threshold exactly
// triggers the rule.
func (e *RuleEvaluator) evaluateTrigger(ctx context.Context, rule *models.ApprovalRule, report ReportContext) (bool, string, error) {
	switch rule.TriggerType {
	case models.TriggerReportAmountExceeds:
		if rule.ThresholdValue == nil {
			return false, "", fmt.Errorf("rule %s has no threshold value", rule.ID)
		}
		if report.TotalAmount < *rule.ThresholdValue {
			return false, "", nil
		}
		return true, fmt.Sprintf("report amount %.2f meets or exceeds threshold %.2f", report.TotalAmount, *rule.ThresholdValue), nil

	case models.TriggerProjectBudgetExceeds:
		if rule.ThresholdPercentage == nil {
			return false, "", fmt.Errorf("rule %s has no threshold percentage", rule.ID)
		}
		if report.ProjectID == nil {
			return false, "", nil
		}
		project, err := e.directory.GetProject(ctx, report.TenantID, *report.ProjectID)
		if err != nil {
			return false, "", fmt.Errorf("project lookup: %w", err)
		}
		limit := project.Budget * *rule.ThresholdPercentage / 100
		projected := project.SpentAmount + report.TotalAmount
		if projected < limit {
			return false, "", nil
		}
		return true, fmt.Sprintf("projected project spend %.2f reaches %.0f%% of budget %.2f", projected, *rule.ThresholdPercentage, project.Budget), nil

	case models.TriggerCostCentreBudgetExceeds:
		if rule.ThresholdPercentage == nil {
			return false, "", fmt.Errorf("rule %s has no threshold percentage", rule.ID)
		}
		if report.CostCentreID == nil {
			return false, "", nil
		}
		cc, err := e.directory.GetCostCentre(ctx, report.TenantID, *report.CostCentreID)
		if err != nil {
			return false, "", fmt.Errorf("cost centre lookup: %w", err)
		}
		limit := cc.Budget * *rule.ThresholdPercentage / 100
		projected := cc.SpentAmount + report.TotalAmount
		if projected < limit {
			return false, "", nil
		}
		return true, fmt.Sprintf("projected cost centre spend %.2f reaches %.0f%% of budget %.2f", projected, *rule.ThresholdPercentage, cc.Budget), nil

	default:
		return false, "", fmt.Errorf("unknown trigger type %q", rule.TriggerType)
	}
}

// resolveRuleApprover picks the rule's approver: an explicit user wins, then
// a custom role ID, then a system role name. Role lookups exclude identities
// already placed in the chain.
func (e *RuleEvaluator) resolveRuleApprover(ctx context.Context, rule *models.ApprovalRule, tenantID string, placed map[uuid.UUID]struct{}) *models.User {
	exclude := make([]uuid.UUID, 0, len(placed))
	for id := range placed {
		exclude = append(exclude, id)
	}

	switch {
	case rule.ApproverUserID != nil:
		user, err := e.directory.GetUserByID(ctx, *rule.ApproverUserID)
		if err != nil || !user.IsActive {
			return nil
		}
		return user

	case rule.ApproverRoleID != nil:
		user, err := e.directory.FirstActiveUserByRoleIDs(ctx, tenantID, []string{rule.ApproverRoleID.String()}, exclude)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				e.logger.WithError(err).Warn("role approver lookup failed")
			}
			return nil
		}
		return user

	case rule.ApproverRole != "":
		user, err := e.directory.FirstActiveUserByRoleName(ctx, tenantID, rule.ApproverRole, exclude)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				e.logger.WithError(err).Warn("role approver lookup failed")
			}
			return nil
		}
		return user
	}
	return nil
}
