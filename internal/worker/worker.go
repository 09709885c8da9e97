// Package worker hosts the background loops: the notification consumer that
// turns domain events into renter and owner notifications, and the expiry
// sweeper that times out payments the gateway never settled.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"booking-service/internal/broker"
	"booking-service/internal/models"
	"booking-service/internal/service"
	"booking-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NotificationWorker consumes booking and payment events and notifies the
// parties involved. Delivery here is log-based; a real sender would plug in
// behind notify.
type NotificationWorker struct {
	consumer *broker.Consumer
	users    service.EntityReader
	logger   *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, users service.EntityReader) *NotificationWorker {
	return &NotificationWorker{
		consumer: consumer,
		users:    users,
		logger:   util.GetLogger(),
	}
}

// Run consumes events until the context is cancelled.
func (w *NotificationWorker) Run(ctx context.Context) error {
	return w.consumer.StartConsuming(ctx, w.handle)
}

func (w *NotificationWorker) handle(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		// Drop undecodable messages instead of blocking the partition.
		w.logger.Error("Discarding undecodable event",
			zap.String("key", string(msg.Key)), zap.Error(err))
		return nil
	}

	switch base.EventType {
	case models.EventTypeBookingPending, models.EventTypeBookingConfirmed, models.EventTypeBookingCancelled:
		var event models.BookingEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			w.logger.Error("Discarding malformed booking event", zap.Error(err))
			return nil
		}
		return w.handleBookingEvent(ctx, &event)
	case models.EventTypePaymentConfirmed, models.EventTypePaymentFailed, models.EventTypePaymentRefunded:
		var event models.PaymentEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			w.logger.Error("Discarding malformed payment event", zap.Error(err))
			return nil
		}
		w.notify(ctx, event.Status, fmt.Sprintf("payment %s is %s", event.TransactionID, event.Status))
		return nil
	default:
		w.logger.Warn("Unknown event type", zap.String("event_type", base.EventType))
		return nil
	}
}

// handleBookingEvent notifies both the renter and the boat owner.
func (w *NotificationWorker) handleBookingEvent(ctx context.Context, event *models.BookingEvent) error {
	message := fmt.Sprintf("booking %d for boat %d (%s to %s) is %s",
		event.BookingID, event.BoatID,
		event.StartDate.Format("2006-01-02 15:04"),
		event.EndDate.Format("2006-01-02 15:04"),
		event.Status)

	for _, userID := range []int64{event.RenterID, event.OwnerID} {
		user, err := w.users.GetUserByID(ctx, userID)
		if err != nil {
			w.logger.Warn("Could not resolve notification recipient",
				zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		w.notify(ctx, event.EventType, fmt.Sprintf("to %s: %s", user.Email, message))
	}
	return nil
}

func (w *NotificationWorker) notify(_ context.Context, kind, message string) {
	w.logger.Info("Notification sent",
		zap.String("kind", kind),
		zap.String("message", message))
}

// ExpiryWorker periodically sweeps payments stuck in PENDING past their TTL.
type ExpiryWorker struct {
	reconciler *service.PaymentReconciler
	interval   time.Duration
	batchSize  int
	logger     *zap.Logger
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(reconciler *service.PaymentReconciler, interval time.Duration, batchSize int) *ExpiryWorker {
	return &ExpiryWorker{
		reconciler: reconciler,
		interval:   interval,
		batchSize:  batchSize,
		logger:     util.GetLogger(),
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.logger.Info("Starting payment expiry worker",
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Expiry worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.reconciler.ExpireStalePayments(ctx, w.batchSize); err != nil {
				w.logger.Error("Expiry sweep failed", zap.Error(err))
			}
		}
	}
}
