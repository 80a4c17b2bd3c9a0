package agent

import (
	"context"
	"time"

	"github.com/ukydev/carbuddy/internal/retry"
	"github.com/ukydev/carbuddy/internal/scheduler"
)

// Job names.
const (
	JobDailyCheck       = "daily-maintenance-check"
	JobUrgentCheck      = "hourly-urgent-check"
	JobLearningUpdate   = "weekly-agent-learning"
	JobReminderDelivery = "reminder-delivery"
)

// Jobs returns the agent's periodic jobs.
func (a *Agent) Jobs() []scheduler.Job {
	return []scheduler.Job{
		{
			Name:     JobDailyCheck,
			Interval: 24 * time.Hour,
			Timeout:  time.Hour,
			Policy:   retry.Daily,
			Run: func(ctx context.Context) error {
				_, err := a.DailyCheck(ctx)
				return err
			},
		},
		{
			Name:     JobUrgentCheck,
			Interval: time.Hour,
			Timeout:  30 * time.Minute,
			Policy:   retry.None,
			Run: func(ctx context.Context) error {
				_, err := a.UrgentCheck(ctx)
				return err
			},
		},
		{
			Name:     JobLearningUpdate,
			Interval: 7 * 24 * time.Hour,
			Timeout:  2 * time.Hour,
			Policy:   retry.None,
			Run: func(ctx context.Context) error {
				_, err := a.LearningUpdate(ctx)
				return err
			},
		},
		{
			Name:     JobReminderDelivery,
			Interval: time.Minute,
			Timeout:  30 * time.Second,
			Policy:   retry.None,
			Run: func(ctx context.Context) error {
				_, err := a.DeliverDueReminders(ctx)
				return err
			},
		},
	}
}

// RecordJob feeds scheduler outcomes into the job counter.
func (a *Agent) RecordJob(out scheduler.Outcome) {
	a.Metrics.JobRun(context.Background(), out.Job, out.Status)
}
