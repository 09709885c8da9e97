package models

import "time"

// User is a reference entity owned by the account service. Only the fields
// needed for booking and notification flows are read here.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Boat is a reference entity owned by the listing service.
type Boat struct {
	ID        int64     `db:"id" json:"id"`
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AvailabilityWindow is an owner-defined time range with an hourly rate
// during which a boat may be booked. Windows for the same boat never overlap.
type AvailabilityWindow struct {
	ID                int64     `db:"id" json:"id"`
	BoatID            int64     `db:"boat_id" json:"boat_id"`
	StartDate         time.Time `db:"start_date" json:"start_date"`
	EndDate           time.Time `db:"end_date" json:"end_date"`
	PricePerHourCents int64     `db:"price_per_hour_cents" json:"price_per_hour_cents"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Covers reports whether the window fully contains the [start, end] period.
func (w *AvailabilityWindow) Covers(start, end time.Time) bool {
	return !start.Before(w.StartDate) && !end.After(w.EndDate)
}

// Booking represents a renter's reservation of a boat for a time interval.
type Booking struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	BoatID          int64     `db:"boat_id" json:"boat_id"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	EndDate         time.Time `db:"end_date" json:"end_date"`
	Status          string    `db:"status" json:"status"`
	TotalPriceCents int64     `db:"total_price_cents" json:"total_price_cents"`
	IdempotencyKey  string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// OverlapsWith reports whether the booking interval overlaps [otherStart,
// otherEnd]. Boundaries are inclusive: a booking ending exactly when the
// other starts still counts as an overlap, which disallows back-to-back
// bookings on the same boat.
func (b *Booking) OverlapsWith(otherStart, otherEnd time.Time) bool {
	return !b.StartDate.After(otherEnd) && !b.EndDate.Before(otherStart)
}

// BookingDetail is a booking with its boat, renter and owner eagerly loaded.
type BookingDetail struct {
	Booking Booking `json:"booking"`
	Boat    Boat    `json:"boat"`
	Renter  User    `json:"renter"`
	Owner   User    `json:"owner"`
}

// Booking statuses
const (
	BookingStatusPending   = "PENDING"
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusCancelled = "CANCELLED"
)

// Payment methods
const (
	PaymentMethodCreditCard = "CREDIT_CARD"
	PaymentMethodPix        = "PIX"
	PaymentMethodBoleto     = "BOLETO"
)

// ValidPaymentMethod reports whether m is one of the supported methods.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPix, PaymentMethodBoleto:
		return true
	}
	return false
}

// PaymentStatus models the lifecycle of a payment transaction. The values
// mirror the gateway's status vocabulary.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusConfirmed  PaymentStatus = "CONFIRMED"
	PaymentStatusDeclined   PaymentStatus = "DECLINED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
	PaymentStatusExpired    PaymentStatus = "EXPIRED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
	PaymentStatusUnknown    PaymentStatus = "UNKNOWN"
)

// IsTerminal reports whether no further transition is expected, except the
// explicit CONFIRMED -> REFUNDED reversal.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusConfirmed, PaymentStatusDeclined, PaymentStatusFailed,
		PaymentStatusCancelled, PaymentStatusExpired, PaymentStatusRefunded:
		return true
	}
	return false
}

// IsSuccessful reports whether the payment completed. Only CONFIRMED counts.
func (s PaymentStatus) IsSuccessful() bool {
	return s == PaymentStatusConfirmed
}

// IsRefundable reports whether a refund may be issued for this status.
func (s PaymentStatus) IsRefundable() bool {
	return s == PaymentStatusConfirmed
}

// IsPendingOrProcessing reports whether the payment outcome is still open.
func (s PaymentStatus) IsPendingOrProcessing() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// Payment represents a payment transaction. BookingID is nullable: direct
// payments (deposits, inquiries) exist without a booking. TransactionID is
// assigned by the gateway and is the idempotency key for reconciliation.
type Payment struct {
	ID             int64         `db:"id" json:"id"`
	BookingID      *int64        `db:"booking_id" json:"booking_id,omitempty"`
	UserID         int64         `db:"user_id" json:"user_id"`
	TransactionID  string        `db:"transaction_id" json:"transaction_id"`
	AmountCents    int64         `db:"amount_cents" json:"amount_cents"`
	Method         string        `db:"method" json:"method"`
	Status         PaymentStatus `db:"status" json:"status"`
	GatewayMessage string        `db:"gateway_message" json:"gateway_message,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// CardData carries sandbox card details for CREDIT_CARD charges.
type CardData struct {
	Number         string `json:"number"`
	HolderName     string `json:"holder_name"`
	ExpirationDate string `json:"expiration_date"`
	CVV            string `json:"cvv"`
}
