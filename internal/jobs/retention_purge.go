package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// RecordPurger removes candidate records past their retention window.
type RecordPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// RetentionPurgeJob deletes expired candidate records on a cron schedule.
type RetentionPurgeJob struct {
	purger   RecordPurger
	schedule string
	timeout  time.Duration
	now      func() time.Time
}

// NewRetentionPurgeJob creates a new retention purge job
func NewRetentionPurgeJob(purger RecordPurger, schedule string) *RetentionPurgeJob {
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	return &RetentionPurgeJob{
		purger:   purger,
		schedule: schedule,
		timeout:  30 * time.Minute,
		now:      time.Now,
	}
}

// Run purges every record whose retention_until has passed
func (j *RetentionPurgeJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	log.Println("[RETENTION] Starting candidate retention purge...")
	startTime := time.Now()

	purged, err := j.purger.PurgeExpired(ctx, j.now().UTC())
	if err != nil {
		log.Printf("[RETENTION] Purge finished with errors: deleted %d records in %v: %v", purged, time.Since(startTime), err)
		return err
	}

	log.Printf("[RETENTION] Purge complete: deleted %d records in %v", purged, time.Since(startTime))
	return nil
}

// Schedule returns the cron expression
func (j *RetentionPurgeJob) Schedule() string {
	return j.schedule
}

// NextRunTime returns the next run after t, or the zero time if the schedule does not parse
func (j *RetentionPurgeJob) NextRunTime(t time.Time) time.Time {
	sched, err := cron.ParseStandard(j.schedule)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t)
}
