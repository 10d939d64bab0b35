// Package jobs wires the engine's periodic work onto asynq: the nightly
// recalculation, the daily reminder and the weekly digest.
package jobs

import (
	"github.com/hibiken/asynq"

	"github.com/dadlink/dadlink/internal/telemetry"
)

// Task type identifiers.
const (
	TypeRecalculate   = "match:recalculate"
	TypeDailyReminder = "notification:daily_reminder"
	TypeWeeklyDigest  = "notification:weekly_digest"
)

// Scheduler registers the cron entries that enqueue the periodic tasks.
type Scheduler struct {
	scheduler *asynq.Scheduler
}

// NewScheduler creates the scheduler with one cron entry per task type.
func NewScheduler(redisURL, recalcCron, reminderCron, digestCron string) (*Scheduler, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(redisOpt, nil)

	entries := []struct {
		cron string
		task *asynq.Task
	}{
		{recalcCron, asynq.NewTask(TypeRecalculate, nil)},
		{reminderCron, asynq.NewTask(TypeDailyReminder, nil)},
		{digestCron, asynq.NewTask(TypeWeeklyDigest, nil)},
	}
	for _, e := range entries {
		if _, err := scheduler.Register(e.cron, e.task); err != nil {
			return nil, err
		}
		telemetry.GetGlobalLogger().WithFields(map[string]interface{}{
			"task_type": e.task.Type(),
			"schedule":  e.cron,
		}).Info("Registered scheduled job")
	}

	return &Scheduler{scheduler: scheduler}, nil
}

// Run starts the scheduler. Blocks until shutdown.
func (s *Scheduler) Run() error {
	return s.scheduler.Run()
}

// Shutdown gracefully stops the scheduler.
func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
