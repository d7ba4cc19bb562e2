// Package notify defines the notification-display collaborator and
// its payload builders. The engine only decides what to display and
// when; delivery guarantees belong to the channel underneath.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pgorski/dosetrack/internal/model"
)

// Action is a button attached to a notification.
type Action struct {
	Label    string
	OnInvoke func(ctx context.Context)
}

// Notifier displays a notification for a medication.
type Notifier interface {
	Display(ctx context.Context, medicationID, title, body string, actions []Action) error
}

// ReminderMessage builds the reminder payload for a due dose.
func ReminderMessage(med *model.Medication) (title, body string) {
	title = "Time for your medication"
	body = fmt.Sprintf("Take %s", med.Name)
	if med.DoseAmount != "" {
		body = fmt.Sprintf("Take %s %s %s", med.DoseAmount, med.DoseUnit, med.Name)
	}
	return title, body
}

// LowSupplyMessage builds the payload for a low-supply alert.
func LowSupplyMessage(med *model.Medication) (title, body string) {
	title = "Medication running low"
	body = fmt.Sprintf("Only %.4g %s of %s left. Time to restock.", med.AvailableSupply, med.DoseUnit, med.Name)
	return title, body
}

// LogNotifier writes notifications to the log. Used when no channel
// is configured, and by tests.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) Display(ctx context.Context, medicationID, title, body string, actions []Action) error {
	n.Logger.Info("Notification",
		zap.String("medication_id", medicationID),
		zap.String("title", title),
		zap.String("body", body),
		zap.Int("actions", len(actions)),
	)
	return nil
}
