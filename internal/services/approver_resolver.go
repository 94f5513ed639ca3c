package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"expense-approval-service/internal/models"
	"expense-approval-service/internal/repository"
)

// maxHierarchyLevels caps how far the fallback walks up the manager chain
const maxHierarchyLevels = 5

// ApproverResolver decides where a report's chain comes from. Sources are
// tried in a fixed priority order and the first one that yields levels wins:
// per-employee profile, active matrix (with per-employee mapping overlay),
// then the org-hierarchy fallback.
type ApproverResolver struct {
	repo      repository.ApprovalRepositoryInterface
	directory repository.DirectoryRepositoryInterface
	logger    *logrus.Entry
}

func NewApproverResolver(repo repository.ApprovalRepositoryInterface, directory repository.DirectoryRepositoryInterface, logger *logrus.Logger) *ApproverResolver {
	return &ApproverResolver{
		repo:      repo,
		directory: directory,
		logger:    logger.WithField("component", "approver_resolver"),
	}
}

type resolution struct {
	levels   []ResolvedLevel
	source   string
	matrixID *uuid.UUID
}

// Resolve returns the intended levels, the winning source and, when the
// matrix won, its ID. An empty level list with a nil error means no source
// produced anything; the caller treats that as fatal.
func (r *ApproverResolver) Resolve(ctx context.Context, report ReportContext) ([]ResolvedLevel, string, *uuid.UUID, error) {
	tiers := []func(context.Context, ReportContext) (*resolution, error){
		r.fromProfile,
		r.fromMatrix,
		r.fromHierarchy,
	}
	for _, tier := range tiers {
		res, err := tier(ctx, report)
		if err != nil {
			return nil, "", nil, err
		}
		if res != nil {
			return res.levels, res.source, res.matrixID, nil
		}
	}
	return nil, "", nil, nil
}

// fromProfile maps an active per-employee profile onto resolved levels. An
// active profile overrides every other source, even when its chain turns out
// to be empty.
func (r *ApproverResolver) fromProfile(ctx context.Context, report ReportContext) (*resolution, error) {
	profile, err := r.repo.GetActiveProfile(ctx, report.TenantID, report.EmployeeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	chain, err := profile.DecodeChain()
	if err != nil {
		r.logger.WithError(err).WithField("profile_id", profile.ID).Error("undecodable profile chain")
		return nil, err
	}

	sort.Slice(chain, func(i, j int) bool { return chain[i].Level < chain[j].Level })

	levels := make([]ResolvedLevel, 0, len(chain))
	lastLevel := 0
	for _, pl := range chain {
		if pl.Level <= lastLevel {
			r.logger.WithFields(logrus.Fields{
				"profile_id": profile.ID,
				"level":      pl.Level,
			}).Warn("discarding duplicate profile level")
			continue
		}
		lastLevel = pl.Level

		slots := make([]ApproverSource, 0, len(pl.ApproverUserIDs))
		for _, raw := range pl.ApproverUserIDs {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				r.logger.WithField("value", raw).Warn("ignoring malformed approver id in profile")
				continue
			}
			slots = append(slots, userSlot(id))
		}
		if len(slots) == 0 && len(pl.Roles) > 0 {
			slots = append(slots, ApproverSource{RoleIDs: pl.Roles})
		}

		levels = append(levels, ResolvedLevel{
			LevelNumber:    pl.Level,
			EvaluationMode: normalizeMode(pl.Mode),
			ParallelRule:   normalizeParallelRule(pl.Mode, pl.ApprovalType),
			Slots:          slots,
		})
	}

	return &resolution{levels: levels, source: models.SourceProfile}, nil
}

// fromMatrix resolves from the tenant's single active matrix. When the
// employee has an approver mapping, its per-level entries replace the matrix
// slot identities for levels one through five.
func (r *ApproverResolver) fromMatrix(ctx context.Context, report ReportContext) (*resolution, error) {
	matrix, err := r.repo.GetActiveMatrix(ctx, report.TenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	defined, err := matrix.DecodeLevels()
	if err != nil {
		r.logger.WithError(err).WithField("matrix_id", matrix.ID).Error("undecodable matrix levels")
		return nil, err
	}

	mapping, err := r.repo.GetMapping(ctx, report.TenantID, report.EmployeeID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	sort.Slice(defined, func(i, j int) bool { return defined[i].LevelNumber < defined[j].LevelNumber })

	source := models.SourceMatrix
	levels := make([]ResolvedLevel, 0, len(defined))
	lastLevel := 0
	for _, ml := range defined {
		if !ml.Enabled {
			continue
		}
		if ml.LevelNumber <= lastLevel {
			r.logger.WithFields(logrus.Fields{
				"matrix_id": matrix.ID,
				"level":     ml.LevelNumber,
			}).Warn("discarding duplicate matrix level")
			continue
		}
		lastLevel = ml.LevelNumber

		var slots []ApproverSource
		if mapped := mappedApprover(mapping, ml.LevelNumber); mapped != nil {
			slots = []ApproverSource{userSlot(*mapped)}
			source = models.SourceMapping
		} else if len(ml.ApproverUserIDs) > 0 {
			for _, raw := range ml.ApproverUserIDs {
				id, parseErr := uuid.Parse(raw)
				if parseErr != nil {
					r.logger.WithField("value", raw).Warn("ignoring malformed approver id in matrix")
					continue
				}
				slots = append(slots, userSlot(id))
			}
		} else if len(ml.ApproverRoleIDs) > 0 {
			slots = []ApproverSource{{RoleIDs: ml.ApproverRoleIDs}}
		}

		levels = append(levels, ResolvedLevel{
			LevelNumber:    ml.LevelNumber,
			EvaluationMode: normalizeMode(ml.EvaluationMode),
			ParallelRule:   normalizeParallelRule(ml.EvaluationMode, ml.ParallelRule),
			Slots:          slots,
			SkipAllowed:    ml.SkipAllowed,
		})
	}

	if len(levels) == 0 {
		return nil, nil
	}
	matrixID := matrix.ID
	return &resolution{levels: levels, source: source, matrixID: &matrixID}, nil
}

// fromHierarchy builds a sequential chain from the org structure: the
// employee's manager first, a business head second, then further managers up
// the reporting line. Inactive users and repeats are skipped. An approver
// mapping still overrides identities at levels one through five; only the
// ordering comes from the hierarchy.
func (r *ApproverResolver) fromHierarchy(ctx context.Context, report ReportContext) (*resolution, error) {
	employee, err := r.directory.GetUserByID(ctx, report.EmployeeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.logger.WithField("employee_id", report.EmployeeID).Warn("employee not found in directory")
			return &resolution{source: models.SourceHierarchy}, nil
		}
		return nil, err
	}

	mapping, err := r.repo.GetMapping(ctx, report.TenantID, report.EmployeeID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	seen := map[uuid.UUID]bool{employee.ID: true}
	var levels []ResolvedLevel
	num := 1

	place := func(candidate uuid.UUID) {
		if mapped := mappedApprover(mapping, num); mapped != nil {
			candidate = *mapped
		}
		if seen[candidate] {
			return
		}
		levels = append(levels, sequentialUserLevel(num, candidate))
		seen[candidate] = true
		num++
	}

	var manager *models.User
	if employee.ManagerID != nil {
		m, mErr := r.directory.GetUserByID(ctx, *employee.ManagerID)
		if mErr == nil && m.IsActive {
			manager = m
		}
	}
	if manager != nil {
		place(manager.ID)
	}

	if head := r.findBusinessHead(ctx, report.TenantID, employee, manager); head != nil {
		place(head.ID)
	}

	cursor := manager
	for cursor != nil && cursor.ManagerID != nil && num <= maxHierarchyLevels {
		next, nErr := r.directory.GetUserByID(ctx, *cursor.ManagerID)
		if nErr != nil || !next.IsActive {
			break
		}
		place(next.ID)
		cursor = next
	}

	return &resolution{levels: levels, source: models.SourceHierarchy}, nil
}

// findBusinessHead prefers the manager's own manager when that user carries
// the business head role, then a head in the employee's department, then any
// head in the tenant.
func (r *ApproverResolver) findBusinessHead(ctx context.Context, tenantID string, employee, manager *models.User) *models.User {
	if manager != nil && manager.ManagerID != nil {
		mm, err := r.directory.GetUserByID(ctx, *manager.ManagerID)
		if err == nil && mm.IsActive && strings.EqualFold(mm.Role, models.RoleBusinessHead) {
			return mm
		}
	}
	if employee.Department != "" {
		head, err := r.directory.FirstActiveBusinessHead(ctx, tenantID, employee.Department)
		if err == nil {
			return head
		}
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.WithError(err).Warn("business head lookup failed")
			return nil
		}
	}
	head, err := r.directory.FirstActiveBusinessHead(ctx, tenantID, "")
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.WithError(err).Warn("business head lookup failed")
		}
		return nil
	}
	return head
}

func sequentialUserLevel(num int, userID uuid.UUID) ResolvedLevel {
	return ResolvedLevel{
		LevelNumber:    num,
		EvaluationMode: models.ModeSequential,
		Slots:          []ApproverSource{userSlot(userID)},
	}
}

func mappedApprover(mapping *models.ApproverMapping, level int) *uuid.UUID {
	if mapping == nil {
		return nil
	}
	return mapping.ApproverAt(level)
}

func normalizeMode(mode string) string {
	if strings.EqualFold(mode, models.ModeParallel) {
		return models.ModeParallel
	}
	return models.ModeSequential
}

func normalizeParallelRule(mode, rule string) string {
	if !strings.EqualFold(mode, models.ModeParallel) {
		return ""
	}
	if strings.EqualFold(rule, models.ParallelAll) {
		return models.ParallelAll
	}
	return models.ParallelAny
}
