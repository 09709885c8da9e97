package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "test-webhook-secret"

func sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type fakeTransitioner struct {
	payments      map[string]*models.Payment
	bookings      map[int64]*models.Booking
	notifications map[string]bool
}

func newFakeTransitioner() *fakeTransitioner {
	return &fakeTransitioner{
		payments:      map[string]*models.Payment{},
		bookings:      map[int64]*models.Booking{},
		notifications: map[string]bool{},
	}
}

func (f *fakeTransitioner) addPayment(txnID string, status models.PaymentStatus, bookingID int64, createdAt time.Time) {
	f.payments[txnID] = &models.Payment{
		ID: int64(len(f.payments) + 1), BookingID: &bookingID,
		TransactionID: txnID, AmountCents: 25000, Status: status, CreatedAt: createdAt,
	}
	f.bookings[bookingID] = &models.Booking{ID: bookingID, Status: models.BookingStatusPending}
}

func (f *fakeTransitioner) TransitionPayment(_ context.Context, transactionID, notificationCode string,
	decide func(current *models.Payment) (*store.PaymentTransition, error)) error {

	payment, ok := f.payments[transactionID]
	if !ok {
		return store.ErrNotFound
	}

	snapshot := *payment
	transition, err := decide(&snapshot)
	if err != nil {
		return err
	}
	if transition != nil {
		payment.Status = transition.NewStatus
		payment.GatewayMessage = transition.GatewayMessage
		if transition.BookingStatus != nil && payment.BookingID != nil {
			f.bookings[*payment.BookingID].Status = *transition.BookingStatus
		}
	}
	if notificationCode != "" {
		f.notifications[notificationCode] = true
	}
	return nil
}

func (f *fakeTransitioner) ListStalePendingPayments(_ context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range f.payments {
		if p.Status == models.PaymentStatusPending && p.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func newReconcilerFixture() (*PaymentReconciler, *fakeTransitioner, *fakePublisher) {
	transitioner := newFakeTransitioner()
	publisher := &fakePublisher{}
	r := NewPaymentReconciler(transitioner, publisher, testWebhookSecret, 30*time.Minute)
	return r, transitioner, publisher
}

func notification(code, txnID, status string) string {
	return fmt.Sprintf(`{"notification_code":%q,"transaction_id":%q,"status":%q}`, code, txnID, status)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r, transitioner, publisher := newReconcilerFixture()
	transitioner.addPayment("txn-1", models.PaymentStatusPending, 1, time.Now())

	payload := notification("n-1", "txn-1", "confirmed")
	err := r.HandleNotification(context.Background(), []byte(payload), "bogus-signature")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Nothing moved: payment, booking and audit trail are untouched.
	assert.Equal(t, models.PaymentStatusPending, transitioner.payments["txn-1"].Status)
	assert.Equal(t, models.BookingStatusPending, transitioner.bookings[1].Status)
	assert.Empty(t, transitioner.notifications)
	assert.Empty(t, publisher.paymentEvents)
}

func TestWebhookConfirmsPaymentAndBooking(t *testing.T) {
	r, transitioner, publisher := newReconcilerFixture()
	transitioner.addPayment("txn-1", models.PaymentStatusPending, 1, time.Now())

	payload := notification("n-1", "txn-1", "confirmed")
	err := r.HandleNotification(context.Background(), []byte(payload), sign(payload))
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusConfirmed, transitioner.payments["txn-1"].Status)
	assert.Equal(t, models.BookingStatusConfirmed, transitioner.bookings[1].Status)
	assert.True(t, transitioner.notifications["n-1"])

	require.Len(t, publisher.paymentEvents, 1)
	assert.Equal(t, models.EventTypePaymentConfirmed, publisher.paymentEvents[0].EventType)
}

func TestWebhookFailureCancelsBooking(t *testing.T) {
	r, transitioner, publisher := newReconcilerFixture()
	transitioner.addPayment("txn-1", models.PaymentStatusPending, 1, time.Now())

	payload := notification("n-1", "txn-1", "failed")
	err := r.HandleNotification(context.Background(), []byte(payload), sign(payload))
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusFailed, transitioner.payments["txn-1"].Status)
	assert.Equal(t, models.BookingStatusCancelled, transitioner.bookings[1].Status)

	require.Len(t, publisher.paymentEvents, 1)
	assert.Equal(t, models.EventTypePaymentFailed, publisher.paymentEvents[0].EventType)
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	r, transitioner, publisher := newReconcilerFixture()
	transitioner.addPayment("txn-1", models.PaymentStatusPending, 1, time.Now())

	payload := notification("n-1", "txn-1", "confirmed")
	signature := sign(payload)

	require.NoError(t, r.HandleNotification(context.Background(), []byte(payload), signature))
	require.NoError(t, r.HandleNotification(context.Background(), []byte(payload), signature))

	assert.Equal(t, models.PaymentStatusConfirmed, transitioner.payments["txn-1"].Status)
	assert.Equal(t, models.BookingStatusConfirmed, transitioner.bookings[1].Status)

	// Exactly one observable transition.
	assert.Len(t, publisher.paymentEvents, 1)
}

func TestWebhookNeverRegressesTerminalStatus(t *testing.T) {
	r, transitioner, publisher := newReconcilerFixture()
	transitioner.addPayment("txn-1", models.PaymentStatusDeclined, 1, time.Now())
	transitioner.bookings[1].Status = models.BookingStatusCancelled

	payload := notification("n-2", "txn-1", "confirmed")
	err := r.HandleNotification(context.Background(), []byte(payload), sign(payload))
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusDeclined, transitioner.payments["txn-1"].Status)
	assert.Equal(t, models.BookingStatusCancelled, transitioner.bookings[1].Status)
	assert.Empty(t, publisher.paymentEvents)
	// The notification is still recorded for audit.
	assert.True(t, transitioner.notifications["n-2"])
}

func TestWebhookRefundAfterConfirmed(t *testing.T) {
	r, transitioner, publisher := newReconcilerFixture()
	transitioner.addPayment("txn-1", models.PaymentStatusConfirmed, 1, time.Now())
	transitioner.bookings[1].Status = models.BookingStatusConfirmed

	payload := notification("n-3", "txn-1", "refunded")
	err := r.HandleNotification(context.Background(), []byte(payload), sign(payload))
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusRefunded, transitioner.payments["txn-1"].Status)
	assert.Equal(t, models.BookingStatusCancelled, transitioner.bookings[1].Status)

	require.Len(t, publisher.paymentEvents, 1)
	assert.Equal(t, models.EventTypePaymentRefunded, publisher.paymentEvents[0].EventType)
}

func TestWebhookOrphanNotification(t *testing.T) {
	r, _, publisher := newReconcilerFixture()

	payload := notification("n-1", "txn-unknown", "confirmed")
	err := r.HandleNotification(context.Background(), []byte(payload), sign(payload))
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Empty(t, publisher.paymentEvents)
}

func TestWebhookMalformedPayload(t *testing.T) {
	r, _, _ := newReconcilerFixture()

	payload := `{"not json`
	err := r.HandleNotification(context.Background(), []byte(payload), sign(payload))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	payload = `{"status":"confirmed"}`
	err = r.HandleNotification(context.Background(), []byte(payload), sign(payload))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestExpireStalePayments(t *testing.T) {
	r, transitioner, publisher := newReconcilerFixture()
	transitioner.addPayment("txn-old", models.PaymentStatusPending, 1, time.Now().Add(-2*time.Hour))
	transitioner.addPayment("txn-fresh", models.PaymentStatusPending, 2, time.Now())
	transitioner.addPayment("txn-done", models.PaymentStatusConfirmed, 3, time.Now().Add(-2*time.Hour))

	expired, err := r.ExpireStalePayments(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	assert.Equal(t, models.PaymentStatusExpired, transitioner.payments["txn-old"].Status)
	assert.Equal(t, models.BookingStatusCancelled, transitioner.bookings[1].Status)

	assert.Equal(t, models.PaymentStatusPending, transitioner.payments["txn-fresh"].Status)
	assert.Equal(t, models.PaymentStatusConfirmed, transitioner.payments["txn-done"].Status)

	require.Len(t, publisher.paymentEvents, 1)
	assert.Equal(t, models.EventTypePaymentFailed, publisher.paymentEvents[0].EventType)
}
