package broker

import (
	"context"
	"fmt"

	"booking-service/internal/models"
)

// PublishBookingEvent emits a booking lifecycle event keyed by booking id, so
// events for the same booking stay ordered within a partition.
func (p *Producer) PublishBookingEvent(ctx context.Context, event *models.BookingEvent) error {
	return p.publish(ctx, fmt.Sprintf("booking-%d", event.BookingID), event)
}

// PublishPaymentEvent emits a payment lifecycle event keyed by payment id.
func (p *Producer) PublishPaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	return p.publish(ctx, fmt.Sprintf("payment-%d", event.PaymentID), event)
}
