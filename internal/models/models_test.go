package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour int) time.Time {
	return time.Date(2026, 9, 14, hour, 0, 0, 0, time.UTC)
}

func TestBookingOverlapsWith(t *testing.T) {
	booking := &Booking{StartDate: at(10), EndDate: at(14)}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"fully inside", at(11), at(13), true},
		{"fully containing", at(9), at(15), true},
		{"overlapping start", at(9), at(11), true},
		{"overlapping end", at(13), at(16), true},
		{"touching at end is still a conflict", at(14), at(18), true},
		{"touching at start is still a conflict", at(6), at(10), true},
		{"strictly before", at(6), at(9), false},
		{"strictly after", at(15), at(18), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, booking.OverlapsWith(tt.start, tt.end))
		})
	}
}

func TestWindowCovers(t *testing.T) {
	window := &AvailabilityWindow{StartDate: at(8), EndDate: at(20)}

	assert.True(t, window.Covers(at(8), at(20)))
	assert.True(t, window.Covers(at(10), at(15)))
	assert.False(t, window.Covers(at(7), at(15)))
	assert.False(t, window.Covers(at(10), at(21)))
}

func TestPaymentStatusPredicates(t *testing.T) {
	assert.False(t, PaymentStatusPending.IsTerminal())
	assert.False(t, PaymentStatusProcessing.IsTerminal())
	assert.False(t, PaymentStatusUnknown.IsTerminal())
	assert.True(t, PaymentStatusConfirmed.IsTerminal())
	assert.True(t, PaymentStatusDeclined.IsTerminal())
	assert.True(t, PaymentStatusRefunded.IsTerminal())

	assert.True(t, PaymentStatusConfirmed.IsSuccessful())
	assert.False(t, PaymentStatusRefunded.IsSuccessful())

	assert.True(t, PaymentStatusConfirmed.IsRefundable())
	assert.False(t, PaymentStatusDeclined.IsRefundable())
}

func TestValidPaymentMethod(t *testing.T) {
	assert.True(t, ValidPaymentMethod(PaymentMethodCreditCard))
	assert.True(t, ValidPaymentMethod(PaymentMethodPix))
	assert.True(t, ValidPaymentMethod(PaymentMethodBoleto))
	assert.False(t, ValidPaymentMethod("CASH"))
	assert.False(t, ValidPaymentMethod(""))
}
