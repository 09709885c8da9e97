package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/gateway"
	"booking-service/internal/models"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentReconciler settles delayed payment outcomes from gateway webhook
// notifications and expires payments the gateway never settled. All state
// changes go through the store's locked transition, so a replayed or
// out-of-order notification can never regress a terminal payment.
type PaymentReconciler struct {
	payments      PaymentTransitioner
	publisher     EventPublisher
	webhookSecret []byte
	pendingTTL    time.Duration
	logger        *zap.Logger
}

// NewPaymentReconciler creates a new payment reconciler
func NewPaymentReconciler(payments PaymentTransitioner, publisher EventPublisher, webhookSecret string, pendingTTL time.Duration) *PaymentReconciler {
	return &PaymentReconciler{
		payments:      payments,
		publisher:     publisher,
		webhookSecret: []byte(webhookSecret),
		pendingTTL:    pendingTTL,
		logger:        util.GetLogger(),
	}
}

// webhookPayload is the gateway's notification body. Status uses the
// gateway's lowercase vocabulary.
type webhookPayload struct {
	NotificationCode string `json:"notification_code"`
	TransactionID    string `json:"transaction_id"`
	Status           string `json:"status"`
	Message          string `json:"message"`
}

// VerifySignature checks the HMAC-SHA256 signature the gateway sends in the
// X-Signature header, computed over the raw request body and base64 encoded.
func (r *PaymentReconciler) VerifySignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, r.webhookSecret)
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HandleNotification validates and applies a gateway webhook. A bad
// signature is rejected before anything is read from the database; the
// attempt is logged for audit. Orphan notifications (unknown transaction)
// return not found. Replays and stale notifications commit no state change.
func (r *PaymentReconciler) HandleNotification(ctx context.Context, payload []byte, signature string) error {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.HandleNotification")
	defer span.End()

	if !r.VerifySignature(payload, signature) {
		util.WebhooksReceivedTotal.WithLabelValues("bad_signature").Inc()
		r.logger.Warn("Webhook signature verification failed",
			zap.Int("payload_bytes", len(payload)))
		return apperr.Validation("invalid webhook signature")
	}

	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		util.WebhooksReceivedTotal.WithLabelValues("bad_payload").Inc()
		return apperr.Validation("malformed webhook payload")
	}
	if body.TransactionID == "" || body.NotificationCode == "" {
		util.WebhooksReceivedTotal.WithLabelValues("bad_payload").Inc()
		return apperr.Validation("webhook payload missing transaction_id or notification_code")
	}

	incoming := gateway.MapGatewayStatus(body.Status)

	var settled *models.Payment
	err := r.payments.TransitionPayment(ctx, body.TransactionID, body.NotificationCode,
		func(current *models.Payment) (*store.PaymentTransition, error) {
			transition := r.decide(current, incoming, body.Message)
			if transition != nil {
				applied := *current
				applied.Status = transition.NewStatus
				settled = &applied
			}
			return transition, nil
		})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.WebhooksReceivedTotal.WithLabelValues("orphan").Inc()
			r.logger.Warn("Webhook for unknown transaction",
				zap.String("transaction_id", body.TransactionID),
				zap.String("notification_code", body.NotificationCode))
			return apperr.NotFound("no payment for transaction")
		}
		return fmt.Errorf("apply webhook: %w", err)
	}

	if settled == nil {
		util.WebhooksReceivedTotal.WithLabelValues("noop").Inc()
		return nil
	}

	util.WebhooksReceivedTotal.WithLabelValues("applied").Inc()
	if settled.Status.IsSuccessful() {
		util.PaymentConfirmedTotal.Inc()
	} else if settled.Status.IsTerminal() {
		util.PaymentFailedTotal.WithLabelValues("webhook").Inc()
		if settled.BookingID != nil {
			util.BookingsCancelledTotal.Inc()
		}
	}

	r.logger.Info("Payment reconciled",
		zap.String("transaction_id", settled.TransactionID),
		zap.String("status", string(settled.Status)),
		zap.String("notification_code", body.NotificationCode))

	r.publishPaymentEvent(ctx, settled, body.Message)
	return nil
}

// decide maps the incoming status onto the locked current state. A nil
// return records the notification without changing the payment.
func (r *PaymentReconciler) decide(current *models.Payment, incoming models.PaymentStatus, message string) *store.PaymentTransition {
	if incoming == current.Status || incoming == models.PaymentStatusUnknown {
		return nil
	}
	if current.Status.IsTerminal() {
		// Only a confirmed payment may still move, and only to refunded.
		if !(current.Status.IsRefundable() && incoming == models.PaymentStatusRefunded) {
			r.logger.Info("Ignoring webhook for settled payment",
				zap.String("transaction_id", current.TransactionID),
				zap.String("current", string(current.Status)),
				zap.String("incoming", string(incoming)))
			return nil
		}
	}

	transition := &store.PaymentTransition{
		NewStatus:      incoming,
		GatewayMessage: message,
	}
	switch {
	case incoming == models.PaymentStatusConfirmed:
		s := models.BookingStatusConfirmed
		transition.BookingStatus = &s
	case incoming.IsTerminal():
		s := models.BookingStatusCancelled
		transition.BookingStatus = &s
	}
	return transition
}

// ExpireStalePayments moves payments still pending past the TTL to EXPIRED
// and cancels their bookings. Returns how many payments were expired.
func (r *PaymentReconciler) ExpireStalePayments(ctx context.Context, batchSize int) (int, error) {
	cutoff := time.Now().Add(-r.pendingTTL)
	stale, err := r.payments.ListStalePendingPayments(ctx, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale payments: %w", err)
	}

	expired := 0
	for i := range stale {
		p := &stale[i]
		var settled *models.Payment
		err := r.payments.TransitionPayment(ctx, p.TransactionID, "",
			func(current *models.Payment) (*store.PaymentTransition, error) {
				// Re-check under the row lock; a webhook may have settled it
				// between the list and now.
				if current.Status != models.PaymentStatusPending {
					return nil, nil
				}
				s := models.BookingStatusCancelled
				applied := *current
				applied.Status = models.PaymentStatusExpired
				settled = &applied
				return &store.PaymentTransition{
					NewStatus:      models.PaymentStatusExpired,
					GatewayMessage: "payment expired before settlement",
					BookingStatus:  &s,
				}, nil
			})
		if err != nil {
			r.logger.Error("Failed to expire payment",
				zap.String("transaction_id", p.TransactionID), zap.Error(err))
			continue
		}
		if settled != nil {
			expired++
			util.PaymentFailedTotal.WithLabelValues("expired").Inc()
			if settled.BookingID != nil {
				util.BookingsCancelledTotal.Inc()
			}
			r.publishPaymentEvent(ctx, settled, "payment expired before settlement")
		}
	}

	if expired > 0 {
		r.logger.Info("Expired stale pending payments", zap.Int("count", expired))
	}
	return expired, nil
}

func (r *PaymentReconciler) publishPaymentEvent(ctx context.Context, payment *models.Payment, reason string) {
	eventType := models.EventTypePaymentFailed
	switch {
	case payment.Status.IsSuccessful():
		eventType = models.EventTypePaymentConfirmed
	case payment.Status == models.PaymentStatusRefunded:
		eventType = models.EventTypePaymentRefunded
	}

	event := &models.PaymentEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		PaymentID:     payment.ID,
		BookingID:     payment.BookingID,
		TransactionID: payment.TransactionID,
		AmountCents:   payment.AmountCents,
		Status:        string(payment.Status),
		Reason:        reason,
	}
	if err := r.publisher.PublishPaymentEvent(ctx, event); err != nil {
		r.logger.Error("Failed to publish payment event",
			zap.String("transaction_id", payment.TransactionID), zap.Error(err))
	}
}
