package models

import "time"

// Event types
const (
	EventTypeBookingPending   = "BOOKING_PENDING"
	EventTypeBookingConfirmed = "BOOKING_CONFIRMED"
	EventTypeBookingCancelled = "BOOKING_CANCELLED"
	EventTypePaymentConfirmed = "PAYMENT_CONFIRMED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
	EventTypePaymentRefunded  = "PAYMENT_REFUNDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingEvent is published when a booking is created or changes status.
// The notification worker uses it to inform both the renter and the owner.
type BookingEvent struct {
	BaseEvent
	BookingID       int64     `json:"booking_id"`
	BoatID          int64     `json:"boat_id"`
	RenterID        int64     `json:"renter_id"`
	OwnerID         int64     `json:"owner_id"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	TotalPriceCents int64     `json:"total_price_cents"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
}

// PaymentEvent is published when a payment reaches a terminal status.
type PaymentEvent struct {
	BaseEvent
	PaymentID     int64  `json:"payment_id"`
	BookingID     *int64 `json:"booking_id,omitempty"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}
