package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"
)

// CreateWindow persists an availability window after verifying it does not
// overlap an existing window for the same boat. The boat row lock serializes
// concurrent window creation per boat.
func (s *Store) CreateWindow(ctx context.Context, window *models.AvailabilityWindow) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var dummy int
	err = tx.GetContext(ctx, &dummy, "SELECT 1 FROM boats WHERE id = $1 FOR UPDATE", window.BoatID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("boat %d: %w", window.BoatID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock boat: %w", err)
	}

	var overlaps bool
	err = tx.GetContext(ctx, &overlaps, `
		SELECT EXISTS(SELECT 1 FROM availability_windows
		  WHERE boat_id = $1 AND start_date < $3 AND end_date > $2)`,
		window.BoatID, window.StartDate, window.EndDate)
	if err != nil {
		return fmt.Errorf("window overlap check: %w", err)
	}
	if overlaps {
		return ErrWindowOverlap
	}

	err = tx.GetContext(ctx, window, `
		INSERT INTO availability_windows (boat_id, start_date, end_date, price_per_hour_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		window.BoatID, window.StartDate, window.EndDate, window.PricePerHourCents)
	if err != nil {
		return fmt.Errorf("insert window: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetWindowByID retrieves a window by ID
func (s *Store) GetWindowByID(ctx context.Context, id int64) (*models.AvailabilityWindow, error) {
	var window models.AvailabilityWindow
	err := s.db.GetContext(ctx, &window, "SELECT * FROM availability_windows WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("availability window %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &window, nil
}

// ListWindowsByBoat retrieves all windows for a boat ordered by start date.
func (s *Store) ListWindowsByBoat(ctx context.Context, boatID int64) ([]models.AvailabilityWindow, error) {
	var windows []models.AvailabilityWindow
	err := s.db.SelectContext(ctx, &windows,
		"SELECT * FROM availability_windows WHERE boat_id = $1 ORDER BY start_date", boatID)
	return windows, err
}

// FindWindowsOverlapping retrieves windows for a boat that overlap the
// [start, end] period. The pricing resolver filters for full coverage.
func (s *Store) FindWindowsOverlapping(ctx context.Context, boatID int64, start, end time.Time) ([]models.AvailabilityWindow, error) {
	var windows []models.AvailabilityWindow
	err := s.db.SelectContext(ctx, &windows, `
		SELECT * FROM availability_windows
		WHERE boat_id = $1 AND start_date <= $3 AND end_date >= $2
		ORDER BY start_date`,
		boatID, start, end)
	if err != nil {
		return nil, fmt.Errorf("find overlapping windows: %w", err)
	}
	return windows, nil
}

// DeleteWindow removes an availability window.
func (s *Store) DeleteWindow(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM availability_windows WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("availability window %d: %w", id, ErrNotFound)
	}
	return nil
}
