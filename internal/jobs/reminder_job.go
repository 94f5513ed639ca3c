package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"expense-approval-service/internal/models"
	"expense-approval-service/internal/repository"
	"expense-approval-service/internal/services"
)

// ReminderJob periodically nudges approvers sitting on pending instances.
// Reminders are pure side effects and never change instance state beyond the
// reminded_at stamp.
type ReminderJob struct {
	repo       *repository.ApprovalRepository
	dispatcher services.SideEffectDispatcher
	logger     *logrus.Logger
	interval   time.Duration
	pendingFor time.Duration
	stopCh     chan struct{}
}

// NewReminderJob creates a new reminder job
func NewReminderJob(repo *repository.ApprovalRepository, dispatcher services.SideEffectDispatcher, logger *logrus.Logger, interval, pendingFor time.Duration) *ReminderJob {
	return &ReminderJob{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
		pendingFor: pendingFor,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the reminder loop
func (j *ReminderJob) Start(ctx context.Context) {
	j.logger.Info("Reminder job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runReminderCheck(ctx)

	for {
		select {
		case <-ticker.C:
			j.runReminderCheck(ctx)
		case <-j.stopCh:
			j.logger.Info("Reminder job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("Reminder job context cancelled")
			return
		}
	}
}

// Stop signals the job to stop
func (j *ReminderJob) Stop() {
	close(j.stopCh)
}

func (j *ReminderJob) runReminderCheck(ctx context.Context) {
	j.logger.Debug("Running reminder check...")

	instances, err := j.repo.FindInstancesAwaitingReminder(ctx, j.pendingFor)
	if err != nil {
		j.logger.Errorf("Failed to find instances awaiting reminder: %v", err)
		return
	}
	if len(instances) == 0 {
		j.logger.Debug("No instances awaiting reminder")
		return
	}

	j.logger.Infof("Found %d instances awaiting reminder", len(instances))

	for i := range instances {
		instance := &instances[i]
		if err := j.remind(ctx, instance); err != nil {
			j.logger.Errorf("Failed to remind for instance %s: %v", instance.ID, err)
		}
	}
}

func (j *ReminderJob) remind(ctx context.Context, instance *models.ApprovalInstance) error {
	var approverIDs []uuid.UUID
	for i := range instance.Approvers {
		a := &instance.Approvers[i]
		if a.LevelNumber == instance.CurrentLevel && !a.Skipped && a.Action == "" {
			approverIDs = append(approverIDs, a.UserID)
		}
	}
	if len(approverIDs) == 0 {
		// Nothing to nudge; stamp it anyway so the row stops matching.
		return j.repo.TouchReminder(ctx, instance.ID, time.Now().UTC())
	}

	if j.dispatcher != nil {
		j.dispatcher.ReminderDue(ctx, instance, approverIDs)
	}

	meta, _ := json.Marshal(map[string]interface{}{
		"level":          instance.CurrentLevel,
		"approver_count": len(approverIDs),
	})
	if err := j.repo.CreateAuditLog(ctx, &models.ApprovalAuditLog{
		InstanceID: instance.ID,
		TenantID:   instance.TenantID,
		EventType:  models.AuditEventReminderSent,
		Metadata:   meta,
	}); err != nil {
		j.logger.Errorf("Failed to write reminder audit log for %s: %v", instance.ID, err)
	}

	return j.repo.TouchReminder(ctx, instance.ID, time.Now().UTC())
}
