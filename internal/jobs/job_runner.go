package jobs

import (
	"context"
	"fmt"
	"time"

	"toolshare-backend/internal/config"
	"toolshare-backend/internal/logger"
	"toolshare-backend/internal/service"
)

// Job names accepted by Run.
const (
	JobPurgeHandoverCodes   = "purge-handover-codes"
	JobSendOverdueReminders = "send-overdue-reminders"
	JobAll                  = "all"
)

// jobTimeout bounds a single scheduled run.
const jobTimeout = 5 * time.Minute

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	config   *config.Config
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Borrows  service.BorrowLifecycle
	Handover service.HandoverVerifier
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		config:   cfg,
	}
}

// Config returns the configuration the runner was built with.
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	ctx = logger.WithRequest(ctx, "job", jobName)

	logger.Info("Starting job", "job", jobName)
	start := time.Now()
	if err = jobFunc(ctx); err != nil {
		logger.Error("Job failed", "job", jobName, "error", err, "duration", time.Since(start))
		return err
	}
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
	return nil
}

// PurgeExpiredHandoverCodes deletes unconsumed handover codes past their
// expiry window.
func (jr *JobRunner) PurgeExpiredHandoverCodes() error {
	return jr.runWithRecovery("PurgeExpiredHandoverCodes", func(ctx context.Context) error {
		n, err := jr.services.Handover.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		logger.FromContext(ctx).Info("Purged expired handover codes", "count", n)
		return nil
	})
}

// SendOverdueReminders notifies both parties of every loan past its due time.
func (jr *JobRunner) SendOverdueReminders() error {
	return jr.runWithRecovery("SendOverdueReminders", func(ctx context.Context) error {
		n, err := jr.services.Borrows.RemindOverdue(ctx)
		if err != nil {
			return err
		}
		logger.FromContext(ctx).Info("Sent overdue reminders", "count", n)
		return nil
	})
}

// RunAll runs every job once, continuing past failures.
func (jr *JobRunner) RunAll() error {
	errPurge := jr.PurgeExpiredHandoverCodes()
	errRemind := jr.SendOverdueReminders()
	if errPurge != nil {
		return errPurge
	}
	return errRemind
}

// Run executes the named job once (for manual execution).
func (jr *JobRunner) Run(name string) error {
	switch name {
	case JobPurgeHandoverCodes:
		return jr.PurgeExpiredHandoverCodes()
	case JobSendOverdueReminders:
		return jr.SendOverdueReminders()
	case JobAll:
		return jr.RunAll()
	}
	return fmt.Errorf("unknown job %q", name)
}
