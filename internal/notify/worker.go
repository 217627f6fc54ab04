package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/hourbank/backend/internal/models"
)

// DeliverArgs asks for one notification to be pushed to external
// transports. Enqueued by the Emitter; river retries on failure so a flaky
// transport never affects the operation that produced the event.
type DeliverArgs struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

func (DeliverArgs) Kind() string { return "deliver_notification" }

// NotificationReader loads a notification row for delivery.
type NotificationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
}

// Transport pushes one notification to an external channel.
type Transport interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

// DeliveryWorker is the river worker behind Emitter's async retry path.
type DeliveryWorker struct {
	river.WorkerDefaults[DeliverArgs]
	notifications NotificationReader
	transports    []Transport
	log           *slog.Logger
}

// NewDeliveryWorker returns a delivery worker. With no transports it is a
// no-op beyond logging, which is all a poll-based client needs.
func NewDeliveryWorker(notifications NotificationReader, transports []Transport, log *slog.Logger) *DeliveryWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DeliveryWorker{notifications: notifications, transports: transports, log: log}
}

func (w *DeliveryWorker) Work(ctx context.Context, job *river.Job[DeliverArgs]) error {
	n, err := w.notifications.GetByID(ctx, job.Args.NotificationID)
	if err != nil {
		return err
	}
	for _, t := range w.transports {
		if err := t.Deliver(ctx, n); err != nil {
			return err
		}
	}
	w.log.Debug("notification delivered", "notification_id", n.ID, "type", n.Type)
	return nil
}
