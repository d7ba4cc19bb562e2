// Package intake coordinates dose acknowledgments: the atomic ledger
// and supply update, low-supply alerting, and the follow-up reschedule
// of the medication's reminders.
package intake

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/pgorski/dosetrack/internal/errors"
	"github.com/pgorski/dosetrack/internal/metrics"
	"github.com/pgorski/dosetrack/internal/model"
	"github.com/pgorski/dosetrack/internal/notify"
	"github.com/pgorski/dosetrack/internal/reminder"
	"github.com/pgorski/dosetrack/internal/store"
)

// Coordinator applies acknowledgment operations. Operations for the
// same medication id are serialized in issue order; different ids
// proceed independently.
type Coordinator struct {
	store     *store.Store
	scheduler *reminder.Scheduler
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    *zap.Logger

	lowSupplyThreshold float64
	now                func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCoordinator(st *store.Store, sched *reminder.Scheduler, notifier notify.Notifier, m *metrics.Metrics, lowSupplyThreshold float64, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:              st,
		scheduler:          sched,
		notifier:           notifier,
		metrics:            m,
		logger:             logger,
		lowSupplyThreshold: lowSupplyThreshold,
		now:                time.Now,
		locks:              make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the clock for tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

func (c *Coordinator) lockFor(medicationID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[medicationID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[medicationID] = lock
	}
	return lock
}

// MarkTaken records a dose as taken on date. When the date is today
// and supply is on hand, the supply decrements by the parsed dose
// amount, clamped at zero, in the same update as the ledger entry.
// Marking a past or future date, or acknowledging with an empty
// bottle, records intake without touching supply: history stays
// writable regardless of inventory. Returns the updated medication.
func (c *Coordinator) MarkTaken(ctx context.Context, medicationID, date string) (*model.Medication, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, apperrors.ErrBadRequest
	}

	lock := c.lockFor(medicationID)
	lock.Lock()
	defer lock.Unlock()

	med, err := c.store.Get(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	if med == nil {
		return nil, apperrors.ErrMedicationNotFound
	}

	today := c.now().Format(model.DateLayout)
	if date == today && med.AvailableSupply > 0 {
		med.AvailableSupply -= med.DoseValue()
		if med.AvailableSupply < 0 {
			med.AvailableSupply = 0
		}
	}
	med.RecordIntake(date, true)

	if err := c.store.ApplyIntake(ctx, med); err != nil {
		return nil, err
	}

	c.metrics.DosesTaken.Inc()
	c.logger.Info("Dose marked taken",
		zap.String("medication_id", medicationID),
		zap.String("date", date),
		zap.Float64("supply", med.AvailableSupply),
	)

	c.afterUpdate(med)
	return med, nil
}

// MarkNotTaken flips the ledger entry to false. A correction to the
// record, not an inventory event: consumed supply is never restored.
func (c *Coordinator) MarkNotTaken(ctx context.Context, medicationID, date string) (*model.Medication, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, apperrors.ErrBadRequest
	}

	lock := c.lockFor(medicationID)
	lock.Lock()
	defer lock.Unlock()

	med, err := c.store.Get(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	if med == nil {
		return nil, apperrors.ErrMedicationNotFound
	}

	med.RecordIntake(date, false)

	if err := c.store.ApplyIntake(ctx, med); err != nil {
		return nil, err
	}

	c.metrics.DosesCorrected.Inc()
	c.afterUpdate(med)
	return med, nil
}

// AddSupply replenishes supply by packages of unitsPerPackage doses
// each, optionally updating the expiry date. Non-positive totals are
// rejected with no state change.
func (c *Coordinator) AddSupply(ctx context.Context, medicationID string, packages int, unitsPerPackage float64, expiryDate string) (*model.Medication, error) {
	total := float64(packages) * unitsPerPackage
	if total <= 0 {
		return nil, apperrors.ErrSupplyNotPositive
	}
	if expiryDate != "" {
		if _, err := time.Parse(model.DateLayout, expiryDate); err != nil {
			return nil, apperrors.ErrBadRequest
		}
	}

	lock := c.lockFor(medicationID)
	lock.Lock()
	defer lock.Unlock()

	med, err := c.store.Get(ctx, medicationID)
	if err != nil {
		return nil, err
	}
	if med == nil {
		return nil, apperrors.ErrMedicationNotFound
	}

	med.AvailableSupply += total
	if expiryDate != "" {
		med.ExpiryDate = expiryDate
	}

	if err := c.store.Update(ctx, med); err != nil {
		return nil, err
	}

	c.metrics.SupplyAdded.Inc()
	c.logger.Info("Supply added",
		zap.String("medication_id", medicationID),
		zap.Float64("added", total),
		zap.Float64("supply", med.AvailableSupply),
	)

	c.afterUpdate(med)
	return med, nil
}

// afterUpdate runs the follow-ups that must not fail the
// acknowledgment: rescheduling the medication's reminders and, when
// supply dipped into the low band, raising the low-supply signal.
func (c *Coordinator) afterUpdate(med *model.Medication) {
	snapshot := *med

	go func() {
		c.scheduler.ScheduleReminders(&snapshot)

		if snapshot.AvailableSupply > 0 && snapshot.AvailableSupply <= c.lowSupplyThreshold {
			title, body := notify.LowSupplyMessage(&snapshot)
			if err := c.notifier.Display(context.Background(), snapshot.ID, title, body, nil); err != nil {
				c.logger.Warn("Low-supply alert failed", zap.String("medication_id", snapshot.ID), zap.Error(err))
				return
			}
			c.metrics.LowSupplyAlerts.Inc()
		}
	}()
}
