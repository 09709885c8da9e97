package service

import (
	"context"
	"time"

	"booking-service/internal/gateway"
	"booking-service/internal/models"
	"booking-service/internal/store"
)

// Consumer-side contracts for the services in this package. The Postgres
// store, the Redis client, the gateway client and the Kafka publisher satisfy
// them; tests substitute fakes.

// EntityReader loads the reference entities a booking points at.
type EntityReader interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetBoatByID(ctx context.Context, id int64) (*models.Boat, error)
}

// WindowStore is the availability-window persistence surface.
type WindowStore interface {
	CreateWindow(ctx context.Context, window *models.AvailabilityWindow) error
	GetWindowByID(ctx context.Context, id int64) (*models.AvailabilityWindow, error)
	ListWindowsByBoat(ctx context.Context, boatID int64) ([]models.AvailabilityWindow, error)
	FindWindowsOverlapping(ctx context.Context, boatID int64, start, end time.Time) ([]models.AvailabilityWindow, error)
	DeleteWindow(ctx context.Context, id int64) error
}

// BookingFinder answers overlap queries against existing bookings.
type BookingFinder interface {
	HasBookingConflict(ctx context.Context, boatID int64, start, end time.Time) (bool, error)
}

// BookingStore is the booking persistence surface used by the orchestrator.
type BookingStore interface {
	EntityReader
	BookingFinder
	CreateBookingWithPayment(ctx context.Context, booking *models.Booking, payment *models.Payment) error
	GetBookingByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error)
	GetBookingDetail(ctx context.Context, id int64) (*models.BookingDetail, error)
	ListBookingsByUser(ctx context.Context, userID int64, status string) ([]models.Booking, error)
}

// PaymentStore is the payment persistence surface for direct payments and
// lookups.
type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	ListPaymentsByUser(ctx context.Context, userID int64) ([]models.Payment, error)
}

// PaymentTransitioner applies atomic reconciliation transitions.
type PaymentTransitioner interface {
	TransitionPayment(ctx context.Context, transactionID, notificationCode string,
		decide func(current *models.Payment) (*store.PaymentTransition, error)) error
	ListStalePendingPayments(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
}

// Charger is the payment gateway contract.
type Charger interface {
	Charge(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResult, error)
	Refund(ctx context.Context, transactionID string) error
}

// BoatLocker is the fast-path per-boat lock in front of the booking
// transaction.
type BoatLocker interface {
	AcquireBoatLock(ctx context.Context, boatID int64, token string, ttl time.Duration) (bool, error)
	ReleaseBoatLock(ctx context.Context, boatID int64, token string) error
}

// EventPublisher emits domain events for the notification worker.
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, event *models.BookingEvent) error
	PublishPaymentEvent(ctx context.Context, event *models.PaymentEvent) error
}

// WindowCache caches a boat's windows for the read path.
type WindowCache interface {
	GetCachedWindows(ctx context.Context, boatID int64) ([]models.AvailabilityWindow, error)
	CacheWindows(ctx context.Context, boatID int64, windows []models.AvailabilityWindow, ttl time.Duration) error
	InvalidateWindows(ctx context.Context, boatID int64) error
}
