package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"expense-approval-service/internal/models"
	"expense-approval-service/internal/repository"
)

// ChainBuilder closes resolved levels into concrete approver rows and appends
// the rule-driven additional approvers after the base chain.
type ChainBuilder struct {
	resolver  *ApproverResolver
	rules     *RuleEvaluator
	directory repository.DirectoryRepositoryInterface
	logger    *logrus.Entry
}

func NewChainBuilder(resolver *ApproverResolver, rules *RuleEvaluator, directory repository.DirectoryRepositoryInterface, logger *logrus.Logger) *ChainBuilder {
	return &ChainBuilder{
		resolver:  resolver,
		rules:     rules,
		directory: directory,
		logger:    logger.WithField("component", "chain_builder"),
	}
}

// Build resolves and closes the full chain for a report. A source that
// produced no levels at all is fatal; a level that loses all its slots is
// either dropped (SkipAllowed) or fatal. The returned chain may be empty,
// which callers treat as auto-approval.
func (b *ChainBuilder) Build(ctx context.Context, report ReportContext) (*BuiltChain, error) {
	levels, source, matrixID, err := b.resolver.Resolve(ctx, report)
	if err != nil {
		return nil, err
	}
	if len(levels) == 0 {
		return nil, ErrNoApproverResolved
	}

	placed := map[uuid.UUID]struct{}{}
	var approvers []models.Approver
	maxBase := 0
	for _, lvl := range levels {
		closed, closeErr := b.closeLevel(ctx, report.TenantID, lvl, placed)
		if closeErr != nil {
			return nil, closeErr
		}
		if len(closed) == 0 {
			b.logger.WithFields(logrus.Fields{
				"report_id": report.ReportID,
				"level":     lvl.LevelNumber,
			}).Info("dropping level with no remaining approver")
			continue
		}
		approvers = append(approvers, closed...)
		maxBase = lvl.LevelNumber
	}

	additional := b.rules.Evaluate(ctx, report, placed)
	// Additional approvals run after the base chain and never before level 2,
	// even when the base chain collapsed to a single level or to nothing.
	next := maxBase + 1
	if next < 2 {
		next = 2
	}
	for i := range additional {
		additional[i].LevelNumber = next
		next++
	}
	approvers = append(approvers, additional...)

	return &BuiltChain{Approvers: approvers, Source: source, MatrixID: matrixID}, nil
}

// closeLevel resolves each slot of one level to an active user. Unresolvable
// slots and identities already in the chain are dropped. A level left with
// nothing is fatal unless the level allows skipping.
func (b *ChainBuilder) closeLevel(ctx context.Context, tenantID string, lvl ResolvedLevel, placed map[uuid.UUID]struct{}) ([]models.Approver, error) {
	var closed []models.Approver
	dupDropped := false
	for _, slot := range lvl.Slots {
		var user *models.User
		if slot.IsUser() {
			u, err := b.directory.GetUserByID(ctx, *slot.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					b.logger.WithField("user_id", slot.UserID).Warn("configured approver not found")
					continue
				}
				return nil, err
			}
			if !u.IsActive {
				b.logger.WithField("user_id", u.ID).Warn("configured approver is inactive")
				continue
			}
			user = u
		} else if len(slot.RoleIDs) > 0 {
			exclude := make([]uuid.UUID, 0, len(placed))
			for id := range placed {
				exclude = append(exclude, id)
			}
			u, err := b.directory.FirstActiveUserByRoleIDs(ctx, tenantID, slot.RoleIDs, exclude)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				return nil, err
			}
			user = u
		} else if slot.Role != "" {
			exclude := make([]uuid.UUID, 0, len(placed))
			for id := range placed {
				exclude = append(exclude, id)
			}
			u, err := b.directory.FirstActiveUserByRoleName(ctx, tenantID, slot.Role, exclude)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					continue
				}
				return nil, err
			}
			user = u
		} else {
			continue
		}

		if _, dup := placed[user.ID]; dup {
			dupDropped = true
			continue
		}
		placed[user.ID] = struct{}{}

		closed = append(closed, models.Approver{
			LevelNumber:    lvl.LevelNumber,
			EvaluationMode: lvl.EvaluationMode,
			ParallelRule:   lvl.ParallelRule,
			UserID:         user.ID,
			Role:           user.Role,
		})
	}

	// A level emptied purely by deduplication is dropped: its approver
	// already covers an earlier level.
	if len(closed) == 0 && !lvl.SkipAllowed && !dupDropped {
		return nil, ErrNoApproverResolved
	}
	return closed, nil
}
