package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	RemindersScheduled prometheus.Counter
	RemindersFired     prometheus.Counter
	RemindersSkipped   prometheus.Counter
	ScheduleFailures   prometheus.Counter

	DosesTaken      prometheus.Counter
	DosesCorrected  prometheus.Counter
	SupplyAdded     prometheus.Counter
	LowSupplyAlerts prometheus.Counter
}

// New registers the collectors on a registry. Passing nil uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RemindersScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_reminders_scheduled_total",
			Help: "Reminder triggers registered with the work queue.",
		}),
		RemindersFired: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_reminders_fired_total",
			Help: "Reminder triggers that fired and displayed a notification.",
		}),
		RemindersSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_reminders_skipped_total",
			Help: "Reminder fires skipped because the dose was already taken.",
		}),
		ScheduleFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_schedule_failures_total",
			Help: "Scheduling requests the work queue rejected.",
		}),
		DosesTaken: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_doses_taken_total",
			Help: "Dose acknowledgments recorded in the ledger.",
		}),
		DosesCorrected: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_doses_corrected_total",
			Help: "Ledger entries flipped back to not taken.",
		}),
		SupplyAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_supply_added_total",
			Help: "Supply replenishment operations applied.",
		}),
		LowSupplyAlerts: factory.NewCounter(prometheus.CounterOpts{
			Name: "dosetrack_low_supply_alerts_total",
			Help: "Low-supply signals raised to the notification channel.",
		}),
	}
}
