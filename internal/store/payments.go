package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"
)

// CreatePayment persists a payment that has no booking attached (deposits,
// direct charges). Bookings get their payment row via CreateBookingWithPayment.
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	err := s.db.GetContext(ctx, payment, `
		INSERT INTO payments (booking_id, user_id, transaction_id, amount_cents, method, status, gateway_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		payment.BookingID, payment.UserID, payment.TransactionID,
		payment.AmountCents, payment.Method, payment.Status, payment.GatewayMessage)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetPaymentByTransactionID retrieves a payment by its gateway transaction id.
func (s *Store) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE transaction_id = $1", transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", transactionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListPaymentsByUser retrieves a user's payment history, newest first.
func (s *Store) ListPaymentsByUser(ctx context.Context, userID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return payments, err
}

// ListStalePendingPayments returns payments still PENDING after the cutoff.
// Used by the expiry sweeper.
func (s *Store) ListStalePendingPayments(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		`SELECT * FROM payments WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3`,
		models.PaymentStatusPending, cutoff, limit)
	return payments, err
}

// PaymentTransition describes the outcome the reconciler decided for a
// locked payment row. A nil BookingStatus leaves the linked booking alone.
type PaymentTransition struct {
	NewStatus      models.PaymentStatus
	GatewayMessage string
	BookingStatus  *string
}

// TransitionPayment locks the payment row FOR UPDATE, lets decide inspect the
// current state, and applies the returned transition plus any booking
// propagation in the same transaction. A nil transition commits nothing but
// still records the notification, so replays stay observable no-ops. The row
// lock keeps a concurrent orchestrator or reconciler write from being
// silently overwritten.
func (s *Store) TransitionPayment(ctx context.Context, transactionID, notificationCode string,
	decide func(current *models.Payment) (*PaymentTransition, error)) error {

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var payment models.Payment
	err = tx.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE transaction_id = $1 FOR UPDATE", transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("payment %s: %w", transactionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock payment: %w", err)
	}

	transition, err := decide(&payment)
	if err != nil {
		return err
	}

	if transition != nil {
		_, err = tx.ExecContext(ctx,
			"UPDATE payments SET status = $1, gateway_message = $2, updated_at = NOW() WHERE id = $3",
			transition.NewStatus, transition.GatewayMessage, payment.ID)
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}

		if transition.BookingStatus != nil && payment.BookingID != nil {
			_, err = tx.ExecContext(ctx,
				"UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2",
				*transition.BookingStatus, *payment.BookingID)
			if err != nil {
				return fmt.Errorf("update booking: %w", err)
			}
		}
	}

	if notificationCode != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO webhook_events (notification_code, transaction_id)
			 VALUES ($1, $2) ON CONFLICT (notification_code) DO NOTHING`,
			notificationCode, transactionID)
		if err != nil {
			return fmt.Errorf("record webhook event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
