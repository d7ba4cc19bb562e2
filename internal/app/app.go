// Package app assembles the engine: storage, the reminder work queue,
// the notification channel, the intake coordinator, and the HTTP API,
// plus the process lifecycle around them.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pgorski/dosetrack/internal/api"
	"github.com/pgorski/dosetrack/internal/config"
	"github.com/pgorski/dosetrack/internal/intake"
	"github.com/pgorski/dosetrack/internal/metrics"
	"github.com/pgorski/dosetrack/internal/model"
	"github.com/pgorski/dosetrack/internal/notify"
	"github.com/pgorski/dosetrack/internal/reminder"
	"github.com/pgorski/dosetrack/internal/store"
)

type App struct {
	Config *config.Config
	Store  *store.Store
	Logger *zap.Logger

	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	queue       *reminder.WorkQueue
	scheduler   *reminder.Scheduler
	coordinator *intake.Coordinator
	notifier    notify.Notifier
	telegram    *notify.TelegramNotifier
	server      *api.Server
}

func New(cfg *config.Config, st *store.Store, logger *zap.Logger) *App {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	app := &App{
		Config:   cfg,
		Store:    st,
		Logger:   logger,
		registry: registry,
		metrics:  m,
	}

	// The queue's fire handler reads app fields, so the queue has to
	// exist before the scheduler that feeds it.
	app.queue = reminder.NewWorkQueue(app.fireReminder, logger)
	app.scheduler = reminder.NewScheduler(app.queue, &cfg.Reminders, m, logger)

	app.notifier = &notify.LogNotifier{Logger: logger}
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram, logger)
		if err != nil {
			logger.Warn("Failed to initialize telegram notifier, falling back to log", zap.Error(err))
		} else {
			app.telegram = tg
			app.notifier = tg
		}
	}

	app.coordinator = intake.NewCoordinator(st, app.scheduler, app.notifier, m, cfg.Supply.LowThreshold, logger)
	app.server = api.New(cfg, st, app.coordinator, app.scheduler, registry, logger)

	return app
}

// fireReminder handles a trigger coming due. State is re-read at fire
// time: the medication may have been deleted, or the dose already
// acknowledged, since the trigger was registered.
func (app *App) fireReminder(payload reminder.Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	med, err := app.Store.Get(ctx, payload.MedicationID)
	if err != nil {
		app.Logger.Error("Reminder lookup failed", zap.String("medication_id", payload.MedicationID), zap.Error(err))
		return
	}
	if med == nil {
		app.Logger.Debug("Reminder for deleted medication", zap.String("medication_id", payload.MedicationID))
		app.scheduler.CancelReminders(payload.MedicationID)
		return
	}

	now := time.Now()
	if med.TakenToday(now) {
		app.metrics.RemindersSkipped.Inc()
		app.Logger.Debug("Reminder skipped, dose already taken", zap.String("medication_id", med.ID))
		return
	}

	title, body := notify.ReminderMessage(med)
	today := now.Format(model.DateLayout)
	actions := []notify.Action{{
		Label: "Taken",
		OnInvoke: func(ctx context.Context) {
			if _, err := app.coordinator.MarkTaken(ctx, med.ID, today); err != nil {
				app.Logger.Error("Acknowledgment from notification failed", zap.String("medication_id", med.ID), zap.Error(err))
			}
		},
	}}

	if err := app.notifier.Display(ctx, med.ID, title, body, actions); err != nil {
		app.Logger.Warn("Reminder display failed", zap.String("medication_id", med.ID), zap.Error(err))
		return
	}
	app.metrics.RemindersFired.Inc()
}

// RunServer starts everything and blocks until SIGINT or SIGTERM.
func (app *App) RunServer() {
	app.queue.Start()

	if app.telegram != nil {
		app.telegram.Start()
		app.Logger.Info("Telegram notifier started")
	}

	// The medication feed keeps the trigger set converged with stored
	// state: every snapshot reconciles the whole list, so a missed or
	// rejected registration heals on the next change.
	feed, unsubscribe := app.Store.Subscribe(context.Background())
	go func() {
		first := true
		for meds := range feed {
			if first && !app.Config.Reminders.ReconcileOnStart {
				first = false
				continue
			}
			first = false
			app.scheduler.Reconcile(meds)
		}
	}()

	go func() {
		if err := app.server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	unsubscribe()

	if app.telegram != nil {
		app.telegram.Stop()
	}

	app.queue.Stop()

	if err := app.server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := app.Store.Close(); err != nil {
		app.Logger.Error("Store close error", zap.Error(err))
	}
}
