package service

import (
	"context"
	"time"

	"booking-service/internal/util"

	"go.uber.org/zap"
)

// ConflictDetector decides whether a candidate interval overlaps an existing
// non-cancelled booking for a boat. Boundaries are inclusive, so a booking
// ending exactly when the candidate starts still conflicts; back-to-back
// bookings are not possible under the current policy.
type ConflictDetector struct {
	bookings BookingFinder
	logger   *zap.Logger
}

// NewConflictDetector creates a new conflict detector
func NewConflictDetector(bookings BookingFinder) *ConflictDetector {
	return &ConflictDetector{
		bookings: bookings,
		logger:   util.GetLogger(),
	}
}

// HasConflict reports whether [start, end] overlaps any non-cancelled
// booking for the boat. Malformed ranges are rejected by validation before
// this point; the detector itself only queries.
func (d *ConflictDetector) HasConflict(ctx context.Context, boatID int64, start, end time.Time) (bool, error) {
	conflict, err := d.bookings.HasBookingConflict(ctx, boatID, start, end)
	if err != nil {
		return false, err
	}
	if conflict {
		d.logger.Info("Booking conflict detected",
			zap.Int64("boat_id", boatID),
			zap.Time("start", start),
			zap.Time("end", end))
	}
	return conflict, nil
}
