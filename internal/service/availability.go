package service

import (
	"context"
	"errors"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/models"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

const windowCacheTTL = 5 * time.Minute

// AvailabilityService manages owner-defined priced windows. Windows have no
// awareness of bookings; owner edits are rare and off the booking hot path.
type AvailabilityService struct {
	entities EntityReader
	windows  WindowStore
	cache    WindowCache
	logger   *zap.Logger
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(entities EntityReader, windows WindowStore, cache WindowCache) *AvailabilityService {
	return &AvailabilityService{
		entities: entities,
		windows:  windows,
		cache:    cache,
		logger:   util.GetLogger(),
	}
}

// CreateWindowRequest describes a window to create for a boat.
type CreateWindowRequest struct {
	BoatID            int64     `json:"-"`
	OwnerID           int64     `json:"-"`
	StartDate         time.Time `json:"start_date" binding:"required"`
	EndDate           time.Time `json:"end_date" binding:"required"`
	PricePerHourCents int64     `json:"price_per_hour_cents" binding:"required"`
}

// CreateWindow validates and stores a priced window. Only the boat's owner
// may define windows; a window overlapping an existing one is rejected.
func (s *AvailabilityService) CreateWindow(ctx context.Context, req *CreateWindowRequest) (*models.AvailabilityWindow, error) {
	boat, err := s.entities.GetBoatByID(ctx, req.BoatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("boat not found")
		}
		return nil, err
	}
	if boat.OwnerID != req.OwnerID {
		return nil, apperr.Validation("only the boat owner can manage availability")
	}

	if req.StartDate.IsZero() || req.EndDate.IsZero() || !req.StartDate.Before(req.EndDate) {
		return nil, apperr.Validation("Invalid date range")
	}
	if req.PricePerHourCents <= 0 {
		return nil, apperr.Validation("price per hour must be positive")
	}

	window := &models.AvailabilityWindow{
		BoatID:            req.BoatID,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		PricePerHourCents: req.PricePerHourCents,
	}

	if err := s.windows.CreateWindow(ctx, window); err != nil {
		if errors.Is(err, store.ErrWindowOverlap) {
			return nil, apperr.Validation("window overlaps an existing availability window")
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("boat not found")
		}
		return nil, err
	}

	if err := s.cache.InvalidateWindows(ctx, req.BoatID); err != nil {
		s.logger.Warn("Failed to invalidate window cache",
			zap.Int64("boat_id", req.BoatID), zap.Error(err))
	}

	s.logger.Info("Availability window created",
		zap.Int64("window_id", window.ID),
		zap.Int64("boat_id", window.BoatID))
	return window, nil
}

// ListWindows returns a boat's windows, served from cache when possible.
func (s *AvailabilityService) ListWindows(ctx context.Context, boatID int64) ([]models.AvailabilityWindow, error) {
	cached, err := s.cache.GetCachedWindows(ctx, boatID)
	if err != nil {
		s.logger.Warn("Window cache read failed, falling back to DB",
			zap.Int64("boat_id", boatID), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	windows, err := s.windows.ListWindowsByBoat(ctx, boatID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.CacheWindows(ctx, boatID, windows, windowCacheTTL); err != nil {
		s.logger.Warn("Failed to cache windows",
			zap.Int64("boat_id", boatID), zap.Error(err))
	}
	return windows, nil
}

// DeleteWindow removes a window after checking ownership.
func (s *AvailabilityService) DeleteWindow(ctx context.Context, windowID, ownerID int64) error {
	window, err := s.windows.GetWindowByID(ctx, windowID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("availability window not found")
		}
		return err
	}

	boat, err := s.entities.GetBoatByID(ctx, window.BoatID)
	if err != nil {
		return err
	}
	if boat.OwnerID != ownerID {
		return apperr.Validation("only the boat owner can manage availability")
	}

	if err := s.windows.DeleteWindow(ctx, windowID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("availability window not found")
		}
		return err
	}

	if err := s.cache.InvalidateWindows(ctx, window.BoatID); err != nil {
		s.logger.Warn("Failed to invalidate window cache",
			zap.Int64("boat_id", window.BoatID), zap.Error(err))
	}
	return nil
}
