package service

import (
	"context"
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

// BookingOrchestrator sequences a booking request: validate, resolve price,
// check conflicts, charge the gateway, persist booking and payment as one
// unit of work. Nothing is persisted unless the charge was accepted, so a
// failed payment never leaves an orphaned unpaid booking behind.
type BookingOrchestrator struct {
	bookings  BookingStore
	pricing   *PricingResolver
	conflicts *ConflictDetector
	charger   Charger
	locker    BoatLocker
	publisher EventPublisher
	lockTTL   time.Duration
	logger    *zap.Logger
}

// NewBookingOrchestrator creates a new booking orchestrator
func NewBookingOrchestrator(
	bookings BookingStore,
	pricing *PricingResolver,
	conflicts *ConflictDetector,
	charger Charger,
	locker BoatLocker,
	publisher EventPublisher,
	lockTTL time.Duration,
) *BookingOrchestrator {
	return &BookingOrchestrator{
		bookings:  bookings,
		pricing:   pricing,
		conflicts: conflicts,
		charger:   charger,
		locker:    locker,
		publisher: publisher,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
	}
}

// CreateBookingRequest represents a request to create a booking
type CreateBookingRequest struct {
	UserID         int64            `json:"-"`
	BoatID         int64            `json:"boat_id" binding:"required"`
	StartDate      time.Time        `json:"start_date" binding:"required"`
	EndDate        time.Time        `json:"end_date" binding:"required"`
	PaymentMethod  string           `json:"payment_method" binding:"required"`
	Card           *models.CardData `json:"card,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

// CreateBookingResponse represents the response after creating a booking
type CreateBookingResponse struct {
	BookingID       int64  `json:"booking_id"`
	Status          string `json:"status"`
	TotalPriceCents int64  `json:"total_price_cents"`
	TransactionID   string `json:"transaction_id"`
	PaymentStatus   string `json:"payment_status"`
}

// CreateBooking runs the full orchestration. The per-boat Redis lock sheds
// concurrent requests for the same boat before they reach the gateway; the
// insert transaction re-checks overlap under the boat row lock, so even a
// request that slipped past the fast path cannot commit an overlapping
// booking.
func (o *BookingOrchestrator) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	ctx, span := util.StartSpan(ctx, "BookingOrchestrator.CreateBooking")
	defer span.End()

	if req.IdempotencyKey != "" {
		existing, err := o.bookings.GetBookingByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			o.logger.Info("Duplicate booking request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("booking_id", existing.ID))
			return &CreateBookingResponse{
				BookingID:       existing.ID,
				Status:          existing.Status,
				TotalPriceCents: existing.TotalPriceCents,
			}, nil
		}
	}

	user, boat, err := o.validate(ctx, req)
	if err != nil {
		util.BookingsFailedTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return nil, err
	}

	totalCents, window, err := o.pricing.PriceForWindow(ctx, req.BoatID, req.StartDate, req.EndDate)
	if err != nil {
		util.BookingsFailedTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return nil, err
	}

	conflict, err := o.conflicts.HasConflict(ctx, req.BoatID, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("conflict check: %w", err)
	}
	if conflict {
		util.BookingConflictsTotal.Inc()
		return nil, apperr.Conflict("booking conflicts with an existing reservation")
	}

	lockToken := uuid.New().String()
	locked, err := o.locker.AcquireBoatLock(ctx, req.BoatID, lockToken, o.lockTTL)
	if err != nil {
		o.logger.Warn("Boat lock unavailable, relying on transaction guard",
			zap.Int64("boat_id", req.BoatID), zap.Error(err))
	} else if !locked {
		util.BookingConflictsTotal.Inc()
		return nil, apperr.Conflict("another booking for this boat is being processed")
	} else {
		defer func() {
			if err := o.locker.ReleaseBoatLock(context.Background(), req.BoatID, lockToken); err != nil {
				o.logger.Warn("Failed to release boat lock",
					zap.Int64("boat_id", req.BoatID), zap.Error(err))
			}
		}()
	}

	result, err := o.charge(ctx, req, user, boat, totalCents)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		UserID:          req.UserID,
		BoatID:          req.BoatID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Status:          bookingStatusFor(result.Status),
		TotalPriceCents: totalCents,
		IdempotencyKey:  req.IdempotencyKey,
	}
	payment := &models.Payment{
		UserID:         req.UserID,
		TransactionID:  result.TransactionID,
		AmountCents:    totalCents,
		Method:         req.PaymentMethod,
		Status:         result.Status,
		GatewayMessage: result.Message,
	}

	if err := o.bookings.CreateBookingWithPayment(ctx, booking, payment); err != nil {
		if errors.Is(err, store.ErrBookingConflict) {
			// Another request won the boat between our check and the
			// commit. The charge already went through, so reverse it; the
			// reconciler owns the refund outcome from here.
			o.refundAsync(result.TransactionID)
			util.BookingConflictsTotal.Inc()
			return nil, apperr.Conflict("booking conflicts with an existing reservation")
		}
		util.BookingsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to persist booking: %w", err)
	}

	util.BookingsCreatedTotal.Inc()
	o.logger.Info("Booking created",
		zap.Int64("booking_id", booking.ID),
		zap.String("status", booking.Status),
		zap.String("transaction_id", payment.TransactionID),
		zap.Int64("total_cents", totalCents),
		zap.Int64("window_id", window.ID))

	o.publishBookingEvent(ctx, booking, boat, bookingEventTypeFor(booking.Status), "")

	return &CreateBookingResponse{
		BookingID:       booking.ID,
		Status:          booking.Status,
		TotalPriceCents: totalCents,
		TransactionID:   payment.TransactionID,
		PaymentStatus:   string(payment.Status),
	}, nil
}

// validate checks referenced entities and the date range.
func (o *BookingOrchestrator) validate(ctx context.Context, req *CreateBookingRequest) (*models.User, *models.Boat, error) {
	user, err := o.bookings.GetUserByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperr.NotFound("user not found")
		}
		return nil, nil, err
	}

	boat, err := o.bookings.GetBoatByID(ctx, req.BoatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperr.NotFound("boat not found")
		}
		return nil, nil, err
	}

	if req.StartDate.IsZero() || req.EndDate.IsZero() || !req.StartDate.Before(req.EndDate) {
		return nil, nil, apperr.Validation("Invalid date range")
	}
	now := time.Now()
	if req.StartDate.Before(now) || req.EndDate.Before(now) {
		return nil, nil, apperr.Validation("booking dates must be in the future")
	}
	if !models.ValidPaymentMethod(req.PaymentMethod) {
		return nil, nil, apperr.Validation("unsupported payment method")
	}
	if req.PaymentMethod == models.PaymentMethodCreditCard {
		if err := validateCard(req.Card); err != nil {
			return nil, nil, err
		}
	}

	return user, boat, nil
}

// charge submits the payment and classifies the outcome. Declines and
// gateway failures both abort the orchestration with nothing persisted.
func (o *BookingOrchestrator) charge(ctx context.Context, req *CreateBookingRequest, user *models.User, boat *models.Boat, amountCents int64) (*gateway.ChargeResult, error) {
	util.PaymentAttemptsTotal.Inc()

	result, err := o.charger.Charge(ctx, &gateway.ChargeRequest{
		ReferenceID:   fmt.Sprintf("booking-%d-%s", req.BoatID, uuid.New().String()[:8]),
		AmountCents:   amountCents,
		Method:        req.PaymentMethod,
		Description:   fmt.Sprintf("Boat rental: %s (%s to %s)", boat.Name, req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02")),
		CustomerEmail: user.Email,
		Card:          req.Card,
	})
	if err != nil {
		util.PaymentFailedTotal.WithLabelValues("gateway_error").Inc()
		if errors.Is(err, gateway.ErrUnavailable) {
			return nil, apperr.GatewayUnavailable("payment gateway unavailable", err)
		}
		return nil, apperr.Wrap(apperr.KindGatewayDeclined, "payment rejected", err)
	}

	switch {
	case result.Status.IsSuccessful():
		util.PaymentConfirmedTotal.Inc()
	case result.Status.IsPendingOrProcessing():
		// Delayed methods confirm via webhook; booking stays pending.
	default:
		util.PaymentFailedTotal.WithLabelValues("declined").Inc()
		o.logger.Warn("Payment declined",
			zap.String("transaction_id", result.TransactionID),
			zap.String("status", string(result.Status)))
		return nil, apperr.GatewayDeclined("payment declined: " + result.Message)
	}

	return result, nil
}

func (o *BookingOrchestrator) refundAsync(transactionID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := o.charger.Refund(ctx, transactionID); err != nil {
			o.logger.Error("Failed to request refund for conflicted booking",
				zap.String("transaction_id", transactionID), zap.Error(err))
		}
	}()
}

// publishBookingEvent notifies renter and owner. Publish failures never roll
// back the booking.
func (o *BookingOrchestrator) publishBookingEvent(ctx context.Context, booking *models.Booking, boat *models.Boat, eventType, reason string) {
	event := &models.BookingEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		BookingID:       booking.ID,
		BoatID:          booking.BoatID,
		RenterID:        booking.UserID,
		OwnerID:         boat.OwnerID,
		StartDate:       booking.StartDate,
		EndDate:         booking.EndDate,
		TotalPriceCents: booking.TotalPriceCents,
		Status:          booking.Status,
		Reason:          reason,
	}
	if err := o.publisher.PublishBookingEvent(ctx, event); err != nil {
		o.logger.Error("Failed to publish booking event",
			zap.Int64("booking_id", booking.ID), zap.Error(err))
	}
}

// GetBooking retrieves a booking with boat, renter and owner eagerly loaded.
func (o *BookingOrchestrator) GetBooking(ctx context.Context, id int64) (*models.BookingDetail, error) {
	detail, err := o.bookings.GetBookingDetail(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("booking not found")
		}
		return nil, err
	}
	return detail, nil
}

// ListBookings retrieves a renter's bookings with an optional status filter.
func (o *BookingOrchestrator) ListBookings(ctx context.Context, userID int64, status string) ([]models.Booking, error) {
	return o.bookings.ListBookingsByUser(ctx, userID, status)
}

func bookingStatusFor(paymentStatus models.PaymentStatus) string {
	if paymentStatus.IsSuccessful() {
		return models.BookingStatusConfirmed
	}
	return models.BookingStatusPending
}

func bookingEventTypeFor(bookingStatus string) string {
	if bookingStatus == models.BookingStatusConfirmed {
		return models.EventTypeBookingConfirmed
	}
	return models.EventTypeBookingPending
}
