// Package reminder schedules, replaces, and cancels the time-triggered
// reminder work for each medication. Registration goes through the
// TaskScheduler collaborator keyed so that repeated scheduling calls
// converge on exactly one active trigger per medication and time slot.
package reminder

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pgorski/dosetrack/internal/config"
	"github.com/pgorski/dosetrack/internal/metrics"
	"github.com/pgorski/dosetrack/internal/model"
	"github.com/pgorski/dosetrack/internal/schedule"
)

// Payload is what a trigger carries: the medication id and nothing
// else. The fire handler re-reads current state, so a trigger can
// never act on a snapshot that went stale between scheduling and
// firing.
type Payload struct {
	MedicationID string `json:"medication_id"`
}

// TaskScheduler is the external task-scheduling collaborator. A
// uniqueKey registered twice replaces the earlier trigger; cancelling
// an unknown tag is a no-op.
type TaskScheduler interface {
	ScheduleAt(tag, uniqueKey string, delay, every time.Duration, payload Payload) error
	CancelByTag(tag string)
}

// Scheduler derives the trigger set for a medication and keeps the
// task queue in sync with it.
type Scheduler struct {
	tasks   TaskScheduler
	cfg     *config.RemindersConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	now func() time.Time
}

func NewScheduler(tasks TaskScheduler, cfg *config.RemindersConfig, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:   tasks,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// WithClock overrides the clock. Tests use this; production code never
// caches "now" across calls.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func reminderTag(medicationID string) string {
	return "reminder_" + medicationID
}

func workKey(medicationID, slotLabel string) string {
	return fmt.Sprintf("reminder_%s_%s", medicationID, slotLabel)
}

// ScheduleReminders replaces the full trigger set for a medication.
// Safe to call repeatedly and concurrently with itself: existing
// triggers are cancelled by tag first and registration replaces on
// key conflict, so re-invocation converges instead of duplicating.
//
// A rejection from the task queue is logged and swallowed. The caller
// may be an acknowledgment flow that must not fail because a reminder
// could not be re-armed; the next reconcile pass retries.
func (s *Scheduler) ScheduleReminders(med *model.Medication) {
	now := s.now()
	tag := reminderTag(med.ID)

	s.tasks.CancelByTag(tag)

	hours := s.cfg.SlotHours(med.Frequency.TimesPerDay)
	for _, slot := range schedule.Slots(med.Frequency, hours, now) {
		delay := schedule.InitialDelay(now, slot.Hour, 0, slot.DayOffset)

		err := s.tasks.ScheduleAt(tag, workKey(med.ID, slot.Label), delay, slot.Forward, Payload{MedicationID: med.ID})
		if err != nil {
			s.metrics.ScheduleFailures.Inc()
			s.logger.Warn("Reminder registration rejected",
				zap.String("medication_id", med.ID),
				zap.String("slot", slot.Label),
				zap.Error(err),
			)
			continue
		}

		s.metrics.RemindersScheduled.Inc()
		s.logger.Debug("Reminder scheduled",
			zap.String("medication_id", med.ID),
			zap.String("slot", slot.Label),
			zap.Duration("initial_delay", delay),
			zap.Duration("every", slot.Forward),
		)
	}
}

// CancelReminders removes every trigger tagged with the medication id.
// Called on deletion; also implicitly part of every reschedule.
func (s *Scheduler) CancelReminders(medicationID string) {
	s.tasks.CancelByTag(reminderTag(medicationID))
}

// Reconcile re-registers triggers for the whole list. Runs at startup
// and after a resync; idempotent thanks to the replace-on-conflict
// keys.
func (s *Scheduler) Reconcile(meds []model.Medication) {
	for i := range meds {
		s.ScheduleReminders(&meds[i])
	}
	s.logger.Info("Reminder reconcile complete", zap.Int("medications", len(meds)))
}
