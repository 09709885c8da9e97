package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"
)

// Overlap condition with inclusive boundaries: a booking that ends exactly
// when the candidate starts still blocks it. Cancelled bookings never block.
const bookingConflictCond = `boat_id = $1 AND status <> 'CANCELLED'
		  AND start_date <= $3 AND end_date >= $2`

// HasBookingConflict reports whether any non-cancelled booking for the boat
// overlaps the [start, end] interval.
func (s *Store) HasBookingConflict(ctx context.Context, boatID int64, start, end time.Time) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM bookings WHERE `+bookingConflictCond+`)`,
		boatID, start, end)
	if err != nil {
		return false, fmt.Errorf("conflict check: %w", err)
	}
	return exists, nil
}

// CreateBookingWithPayment durably writes the booking and its payment as one
// transaction. The boat row is locked FOR UPDATE so the conflict re-check and
// the insert are serialized per boat: of N concurrent requests for
// overlapping intervals exactly one commits, the rest get ErrBookingConflict.
func (s *Store) CreateBookingWithPayment(ctx context.Context, booking *models.Booking, payment *models.Payment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var dummy int
	err = tx.GetContext(ctx, &dummy, "SELECT 1 FROM boats WHERE id = $1 FOR UPDATE", booking.BoatID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("boat %d: %w", booking.BoatID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock boat: %w", err)
	}

	var conflict bool
	err = tx.GetContext(ctx, &conflict,
		`SELECT EXISTS(SELECT 1 FROM bookings WHERE `+bookingConflictCond+`)`,
		booking.BoatID, booking.StartDate, booking.EndDate)
	if err != nil {
		return fmt.Errorf("conflict re-check: %w", err)
	}
	if conflict {
		return ErrBookingConflict
	}

	err = tx.GetContext(ctx, booking, `
		INSERT INTO bookings (user_id, boat_id, start_date, end_date, status, total_price_cents, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		booking.UserID, booking.BoatID, booking.StartDate, booking.EndDate,
		booking.Status, booking.TotalPriceCents, booking.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	payment.BookingID = &booking.ID
	err = tx.GetContext(ctx, payment, `
		INSERT INTO payments (booking_id, user_id, transaction_id, amount_cents, method, status, gateway_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		payment.BookingID, payment.UserID, payment.TransactionID,
		payment.AmountCents, payment.Method, payment.Status, payment.GatewayMessage)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetBookingByIdempotencyKey returns the booking created under the given
// idempotency key, or nil when none exists.
func (s *Store) GetBookingByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, "SELECT * FROM bookings WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBookingDetail retrieves a booking with its boat, renter and owner in a
// single round-trip. Aggregates are loaded eagerly; there is no deferred
// association loading anywhere in the service.
func (s *Store) GetBookingDetail(ctx context.Context, id int64) (*models.BookingDetail, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT b.id, b.user_id, b.boat_id, b.start_date, b.end_date, b.status,
		       b.total_price_cents, b.idempotency_key, b.created_at, b.updated_at,
		       bt.id, bt.owner_id, bt.name, bt.created_at,
		       r.id, r.name, r.email, r.created_at,
		       o.id, o.name, o.email, o.created_at
		FROM bookings b
		JOIN boats bt ON bt.id = b.boat_id
		JOIN users r  ON r.id = b.user_id
		JOIN users o  ON o.id = bt.owner_id
		WHERE b.id = $1`, id)

	var d models.BookingDetail
	err := row.Scan(
		&d.Booking.ID, &d.Booking.UserID, &d.Booking.BoatID, &d.Booking.StartDate,
		&d.Booking.EndDate, &d.Booking.Status, &d.Booking.TotalPriceCents,
		&d.Booking.IdempotencyKey, &d.Booking.CreatedAt, &d.Booking.UpdatedAt,
		&d.Boat.ID, &d.Boat.OwnerID, &d.Boat.Name, &d.Boat.CreatedAt,
		&d.Renter.ID, &d.Renter.Name, &d.Renter.Email, &d.Renter.CreatedAt,
		&d.Owner.ID, &d.Owner.Name, &d.Owner.Email, &d.Owner.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking detail: %w", err)
	}
	return &d, nil
}

// ListBookingsByUser retrieves a renter's bookings, newest first. An empty
// status selects all.
func (s *Store) ListBookingsByUser(ctx context.Context, userID int64, status string) ([]models.Booking, error) {
	var bookings []models.Booking
	var err error
	if status != "" {
		err = s.db.SelectContext(ctx, &bookings,
			"SELECT * FROM bookings WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC",
			userID, status)
	} else {
		err = s.db.SelectContext(ctx, &bookings,
			"SELECT * FROM bookings WHERE user_id = $1 ORDER BY created_at DESC", userID)
	}
	return bookings, err
}
