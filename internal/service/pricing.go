package service

import (
	"context"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// MinBookingHours is the minimum billable duration. Shorter intervals are
// charged as if they lasted this long.
const MinBookingHours = 4

// PricingResolver computes booking prices from per-window hourly rates.
// All amounts are integer cents; no float enters any computation.
type PricingResolver struct {
	windows WindowStore
	logger  *zap.Logger
}

// NewPricingResolver creates a new pricing resolver
func NewPricingResolver(windows WindowStore) *PricingResolver {
	return &PricingResolver{
		windows: windows,
		logger:  util.GetLogger(),
	}
}

// Price computes the total for a flat hourly rate. Duration is truncated to
// whole hours, then floored to the minimum billable duration.
func (r *PricingResolver) Price(pricePerHourCents int64, start, end time.Time) (int64, error) {
	if pricePerHourCents <= 0 {
		return 0, apperr.Validation("Boat and price per hour must not be null")
	}
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return 0, apperr.Validation("Invalid date range")
	}

	hours := int64(end.Sub(start) / time.Hour)
	if hours < MinBookingHours {
		hours = MinBookingHours
	}
	return pricePerHourCents * hours, nil
}

// PriceForWindow resolves the single availability window that fully contains
// the candidate interval and prices against its hourly rate. An interval
// spanning a gap or crossing two windows has no single rate and is rejected.
func (r *PricingResolver) PriceForWindow(ctx context.Context, boatID int64, start, end time.Time) (int64, *models.AvailabilityWindow, error) {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return 0, nil, apperr.Validation("Invalid date range")
	}

	windows, err := r.windows.FindWindowsOverlapping(ctx, boatID, start, end)
	if err != nil {
		return 0, nil, err
	}

	for i := range windows {
		if windows[i].Covers(start, end) {
			amount, err := r.Price(windows[i].PricePerHourCents, start, end)
			if err != nil {
				return 0, nil, err
			}
			return amount, &windows[i], nil
		}
	}

	r.logger.Debug("No covering availability window",
		zap.Int64("boat_id", boatID),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("overlapping", len(windows)))
	return 0, nil, apperr.Validation("no matching availability window")
}
