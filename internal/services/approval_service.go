package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"expense-approval-service/internal/models"
	"expense-approval-service/internal/repository"
)

var (
	ErrNoApproverResolved   = errors.New("no approver could be resolved for this request")
	ErrInstanceNotFound     = errors.New("approval instance not found")
	ErrAlreadyDecided       = errors.New("approval instance is already in a terminal state")
	ErrUnauthorizedApprover = errors.New("user is not an eligible approver at the current level")
	ErrCommentRequired      = errors.New("a comment is required for this action")
	ErrInvalidAction        = errors.New("invalid decision action")
)

// ApprovalService owns the approval lifecycle: chain construction at
// submission time and the decision state machine afterwards.
type ApprovalService struct {
	repo       repository.ApprovalRepositoryInterface
	directory  repository.DirectoryRepositoryInterface
	builder    *ChainBuilder
	dispatcher SideEffectDispatcher
	logger     *logrus.Entry
}

// NewApprovalService wires the resolver, rule evaluator and chain builder
// behind one service. dispatcher may be nil when the service runs without a
// message broker.
func NewApprovalService(repo repository.ApprovalRepositoryInterface, directory repository.DirectoryRepositoryInterface, dispatcher SideEffectDispatcher, logger *logrus.Logger) *ApprovalService {
	resolver := NewApproverResolver(repo, directory, logger)
	rules := NewRuleEvaluator(repo, directory, logger)
	return &ApprovalService{
		repo:       repo,
		directory:  directory,
		builder:    NewChainBuilder(resolver, rules, directory, logger),
		dispatcher: dispatcher,
		logger:     logger.WithField("component", "approval_service"),
	}
}

// BuildApprovalChain resolves the chain a report would get without persisting
// anything. Used by the preview endpoint.
func (s *ApprovalService) BuildApprovalChain(ctx context.Context, report ReportContext) (*BuiltChain, error) {
	return s.builder.Build(ctx, report)
}

// InitiateApproval builds and persists the approval instance for a submitted
// report. A chain that resolved levels but lost all of them to skipping comes
// back empty, and the instance is created directly in the approved state.
func (s *ApprovalService) InitiateApproval(ctx context.Context, report ReportContext) (*models.ApprovalInstance, error) {
	chain, err := s.builder.Build(ctx, report)
	if err != nil {
		return nil, err
	}

	instance := &models.ApprovalInstance{
		TenantID:    report.TenantID,
		RequestID:   report.ReportID,
		RequestType: models.RequestTypeExpenseReport,
		MatrixID:    chain.MatrixID,
		ChainSource: chain.Source,
		Version:     1,
	}

	if len(chain.Approvers) == 0 {
		instance.Status = models.StatusApproved
	} else {
		instance.Status = models.StatusPending
		instance.CurrentLevel = chain.Approvers[0].LevelNumber
		instance.Approvers = chain.Approvers
	}

	if err := s.repo.CreateInstance(ctx, instance); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"instance_id": instance.ID,
		"request_id":  report.ReportID,
		"source":      chain.Source,
		"approvers":   len(chain.Approvers),
		"status":      instance.Status,
	}).Info("approval instance created")

	if instance.Status == models.StatusApproved {
		s.audit(ctx, instance, models.AuditEventAutoApproved, nil, map[string]interface{}{
			"source": chain.Source,
		})
		if s.dispatcher != nil {
			s.dispatcher.InstanceApproved(ctx, instance)
		}
		return instance, nil
	}

	s.audit(ctx, instance, models.AuditEventCreated, nil, map[string]interface{}{
		"source":         chain.Source,
		"approver_count": len(chain.Approvers),
	})
	if s.dispatcher != nil {
		s.dispatcher.ApprovalRequested(ctx, instance, currentLevelApproverIDs(instance))
	}
	return instance, nil
}

// Decide applies one approver's decision to a report's latest instance. A
// version conflict from a concurrent decision is retried once against fresh
// state before surfacing.
func (s *ApprovalService) Decide(ctx context.Context, tenantID string, reportID, actorID uuid.UUID, action, comment string) (*models.ApprovalInstance, error) {
	instance, err := s.decideOnce(ctx, tenantID, reportID, actorID, action, comment)
	if errors.Is(err, repository.ErrVersionConflict) {
		s.logger.WithFields(logrus.Fields{
			"request_id": reportID,
			"actor_id":   actorID,
		}).Warn("decision hit a version conflict, retrying once")
		instance, err = s.decideOnce(ctx, tenantID, reportID, actorID, action, comment)
	}
	return instance, err
}

type decisionOutcome struct {
	instance  *models.ApprovalInstance
	advanced  bool
	fromLevel int
}

func (s *ApprovalService) decideOnce(ctx context.Context, tenantID string, reportID, actorID uuid.UUID, action, comment string) (*models.ApprovalInstance, error) {
	switch action {
	case models.ActionApprove, models.ActionReject, models.ActionRequestChanges:
	default:
		return nil, ErrInvalidAction
	}
	if action == models.ActionRequestChanges && strings.TrimSpace(comment) == "" {
		return nil, ErrCommentRequired
	}

	instance, err := s.repo.GetInstanceByRequestID(ctx, tenantID, reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	if instance.IsTerminal() {
		return nil, ErrAlreadyDecided
	}

	actor, err := s.directory.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorizedApprover
		}
		return nil, err
	}
	if actor.TenantID != instance.TenantID && !strings.EqualFold(actor.Role, models.RoleSuperAdmin) {
		return nil, ErrUnauthorizedApprover
	}
	if eligibleSlot(instance, actorID) == nil {
		return nil, ErrUnauthorizedApprover
	}

	var outcome decisionOutcome
	err = s.repo.WithTransaction(ctx, func(tx repository.ApprovalRepositoryInterface) error {
		// Re-fetch inside the transaction so the eligibility check and the
		// versioned write observe the same state.
		current, txErr := tx.GetInstanceByRequestID(ctx, tenantID, reportID)
		if txErr != nil {
			if errors.Is(txErr, repository.ErrNotFound) {
				return ErrInstanceNotFound
			}
			return txErr
		}
		if current.IsTerminal() {
			return ErrAlreadyDecided
		}
		slot := eligibleSlot(current, actorID)
		if slot == nil {
			return ErrUnauthorizedApprover
		}

		out, applyErr := s.applyDecision(ctx, tx, current, slot, action, comment)
		if applyErr != nil {
			return applyErr
		}
		outcome = *out
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordDecisionEffects(ctx, &outcome, actorID, action, comment)

	// Return the persisted view, including skip flags set by parallel-any
	// decisions. A read failure here does not undo the committed decision.
	final, readErr := s.repo.GetInstanceByRequestID(ctx, tenantID, reportID)
	if readErr != nil {
		s.logger.WithError(readErr).Warn("failed to re-read instance after decision")
		return outcome.instance, nil
	}
	return final, nil
}

// applyDecision mutates the instance within the decision transaction. The
// caller has already validated action and eligibility against this state.
func (s *ApprovalService) applyDecision(ctx context.Context, tx repository.ApprovalRepositoryInterface, instance *models.ApprovalInstance, slot *models.Approver, action, comment string) (*decisionOutcome, error) {
	now := time.Now().UTC()
	fromLevel := instance.CurrentLevel
	out := &decisionOutcome{instance: instance, fromLevel: fromLevel}

	switch action {
	case models.ActionApprove:
		slot.Action = models.ActionApprove
		slot.Comment = comment
		slot.DecidedAt = &now
		if err := tx.UpdateApprover(ctx, slot); err != nil {
			return nil, err
		}

		if slot.EvaluationMode == models.ModeParallel && slot.ParallelRule == models.ParallelAll {
			if !levelSatisfied(instance, fromLevel, slot.ID) {
				// Level still waiting on co-approvers. The versioned write
				// serializes racing approvals on the same level.
				if err := s.appendHistory(ctx, tx, instance, slot, models.ActionApprove, comment); err != nil {
					return nil, err
				}
				return out, tx.UpdateInstanceWithLock(ctx, instance)
			}
		} else if slot.EvaluationMode == models.ModeParallel {
			if err := tx.MarkApproversSkipped(ctx, instance.ID, fromLevel, slot.ID); err != nil {
				return nil, err
			}
		}

		if next := nextLevelAfter(instance, fromLevel); next > 0 {
			instance.CurrentLevel = next
			out.advanced = true
		} else {
			instance.Status = models.StatusApproved
		}
		if err := s.appendHistory(ctx, tx, instance, slot, models.ActionApprove, comment); err != nil {
			return nil, err
		}
		return out, tx.UpdateInstanceWithLock(ctx, instance)

	case models.ActionReject:
		slot.Action = models.ActionReject
		slot.Comment = comment
		slot.DecidedAt = &now
		if err := tx.UpdateApprover(ctx, slot); err != nil {
			return nil, err
		}
		instance.Status = models.StatusRejected
		if err := s.appendHistory(ctx, tx, instance, slot, models.ActionReject, comment); err != nil {
			return nil, err
		}
		return out, tx.UpdateInstanceWithLock(ctx, instance)

	case models.ActionRequestChanges:
		if err := s.appendHistory(ctx, tx, instance, slot, models.ActionRequestChanges, comment); err != nil {
			return nil, err
		}
		// The whole chain is discarded. Resubmission rebuilds it from scratch
		// against the configuration current at that time.
		if err := tx.DeleteApprovers(ctx, instance.ID); err != nil {
			return nil, err
		}
		instance.CurrentLevel = 0
		return out, tx.UpdateInstanceWithLock(ctx, instance)
	}
	return nil, ErrInvalidAction
}

// recordDecisionEffects writes the audit row and fires outbound events after
// the decision transaction has committed. Neither can roll the decision back.
func (s *ApprovalService) recordDecisionEffects(ctx context.Context, outcome *decisionOutcome, actorID uuid.UUID, action, comment string) {
	instance := outcome.instance
	meta := map[string]interface{}{
		"level":  outcome.fromLevel,
		"action": action,
	}

	switch {
	case action == models.ActionReject:
		s.audit(ctx, instance, models.AuditEventRejected, &actorID, meta)
		if s.dispatcher != nil {
			s.dispatcher.InstanceRejected(ctx, instance, actorID, comment)
		}
	case action == models.ActionRequestChanges:
		s.audit(ctx, instance, models.AuditEventChangesRequested, &actorID, meta)
		if s.dispatcher != nil {
			s.dispatcher.ChangesRequested(ctx, instance, actorID, comment)
		}
	case instance.Status == models.StatusApproved:
		s.audit(ctx, instance, models.AuditEventApproved, &actorID, meta)
		if s.dispatcher != nil {
			s.dispatcher.InstanceApproved(ctx, instance)
		}
	case outcome.advanced:
		meta["to_level"] = instance.CurrentLevel
		s.audit(ctx, instance, models.AuditEventLevelAdvanced, &actorID, meta)
		if s.dispatcher != nil {
			s.dispatcher.LevelAdvanced(ctx, instance, levelApproverIDs(instance, instance.CurrentLevel))
		}
	default:
		// Partial parallel-all approval, the level is still open.
		s.audit(ctx, instance, models.AuditEventApproved, &actorID, meta)
	}
}

// GetInstanceForRequest returns the latest instance for a report
func (s *ApprovalService) GetInstanceForRequest(ctx context.Context, tenantID string, reportID uuid.UUID) (*models.ApprovalInstance, error) {
	instance, err := s.repo.GetInstanceByRequestID(ctx, tenantID, reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return instance, nil
}

// ListPendingForApprover returns instances currently waiting on the given user
func (s *ApprovalService) ListPendingForApprover(ctx context.Context, tenantID string, userID uuid.UUID, limit, offset int) ([]models.ApprovalInstance, int64, error) {
	return s.repo.ListPendingForApprover(ctx, tenantID, userID, limit, offset)
}

// GetAuditTrail returns the audit rows for a report's latest instance
func (s *ApprovalService) GetAuditTrail(ctx context.Context, tenantID string, reportID uuid.UUID) ([]models.ApprovalAuditLog, error) {
	instance, err := s.GetInstanceForRequest(ctx, tenantID, reportID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetAuditTrail(ctx, instance.ID)
}

func (s *ApprovalService) appendHistory(ctx context.Context, tx repository.ApprovalRepositoryInterface, instance *models.ApprovalInstance, slot *models.Approver, status, comment string) error {
	return tx.CreateHistory(ctx, &models.ApprovalHistory{
		InstanceID:  instance.ID,
		LevelNumber: slot.LevelNumber,
		ApproverID:  slot.UserID,
		Status:      status,
		Comments:    comment,
	})
}

func (s *ApprovalService) audit(ctx context.Context, instance *models.ApprovalInstance, eventType string, actorID *uuid.UUID, metadata map[string]interface{}) {
	payload, err := json.Marshal(metadata)
	if err != nil {
		payload = []byte("{}")
	}
	entry := &models.ApprovalAuditLog{
		InstanceID: instance.ID,
		TenantID:   instance.TenantID,
		EventType:  eventType,
		ActorID:    actorID,
		Metadata:   payload,
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"instance_id": instance.ID,
			"event_type":  eventType,
		}).Error("failed to write audit log")
	}
}

// eligibleSlot finds the actor's undecided, unskipped slot at the current level
func eligibleSlot(instance *models.ApprovalInstance, actorID uuid.UUID) *models.Approver {
	for i := range instance.Approvers {
		a := &instance.Approvers[i]
		if a.LevelNumber == instance.CurrentLevel && a.UserID == actorID && !a.Skipped && !a.Decided() {
			return a
		}
	}
	return nil
}

// levelSatisfied reports whether every other live approver at the level has
// already approved. exceptID is the slot being decided right now.
func levelSatisfied(instance *models.ApprovalInstance, level int, exceptID uuid.UUID) bool {
	for i := range instance.Approvers {
		a := &instance.Approvers[i]
		if a.LevelNumber != level || a.ID == exceptID || a.Skipped {
			continue
		}
		if a.Action != models.ActionApprove {
			return false
		}
	}
	return true
}

// nextLevelAfter returns the smallest level number above the given one, or 0
// when the chain is exhausted
func nextLevelAfter(instance *models.ApprovalInstance, level int) int {
	next := 0
	for i := range instance.Approvers {
		a := &instance.Approvers[i]
		if a.LevelNumber <= level {
			continue
		}
		if next == 0 || a.LevelNumber < next {
			next = a.LevelNumber
		}
	}
	return next
}

func currentLevelApproverIDs(instance *models.ApprovalInstance) []uuid.UUID {
	return levelApproverIDs(instance, instance.CurrentLevel)
}

func levelApproverIDs(instance *models.ApprovalInstance, level int) []uuid.UUID {
	var ids []uuid.UUID
	for i := range instance.Approvers {
		a := &instance.Approvers[i]
		if a.LevelNumber == level && !a.Skipped && !a.Decided() {
			ids = append(ids, a.UserID)
		}
	}
	return ids
}
