package repository

import (
	"context"
	"fmt"
	"time"

	"stay-booking/internal/data/entity"
	"stay-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type CalendarRepository interface {
	// FindUnavailable returns blocked nights in [start, end).
	FindUnavailable(ctx context.Context, listingID uuid.UUID, start, end time.Time) ([]*entity.CalendarDate, error)
	// LockRange marks [start, end) unavailable for bookingID and returns the
	// nights it actually took. Nights held by another booking or a host
	// block are left untouched.
	LockRange(ctx context.Context, listingID, bookingID uuid.UUID, start, end time.Time) ([]time.Time, error)
	// FreeByBooking releases every night held by bookingID.
	FreeByBooking(ctx context.Context, bookingID uuid.UUID) ([]time.Time, error)
}

type calendarRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewCalendarRepository(db database.Querier, log *zap.Logger) CalendarRepository {
	return &calendarRepository{
		db:  db,
		log: log.With(zap.String("repository", "calendar")),
	}
}

func (r *calendarRepository) FindUnavailable(ctx context.Context, listingID uuid.UUID, start, end time.Time) ([]*entity.CalendarDate, error) {
	query := `
		SELECT listing_id, date, is_available, booking_id, created_at, updated_at
		FROM calendar_dates
		WHERE listing_id = $1
		  AND date >= $2::date
		  AND date < $3::date
		  AND is_available = false
		ORDER BY date
	`

	rows, err := r.db.Query(ctx, query, listingID, start, end)
	if err != nil {
		r.log.Error("Failed to find unavailable dates",
			zap.Error(err),
			zap.String("listing_id", listingID.String()),
			zap.Time("start", start),
			zap.Time("end", end),
		)
		return nil, fmt.Errorf("find unavailable dates for listing %s: %w", listingID.String(), err)
	}
	defer rows.Close()

	var dates []*entity.CalendarDate
	for rows.Next() {
		var d entity.CalendarDate
		if err := rows.Scan(&d.ListingID, &d.Date, &d.IsAvailable, &d.BookingID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			r.log.Error("Failed to scan calendar row", zap.Error(err))
			return nil, fmt.Errorf("scan calendar row: %w", err)
		}
		dates = append(dates, &d)
	}

	return dates, rows.Err()
}

func (r *calendarRepository) LockRange(ctx context.Context, listingID, bookingID uuid.UUID, start, end time.Time) ([]time.Time, error) {
	query := `
		INSERT INTO calendar_dates (listing_id, date, is_available, booking_id, created_at, updated_at)
		SELECT $1, d::date, false, $4, NOW(), NOW()
		FROM generate_series($2::date, $3::date - 1, interval '1 day') AS d
		ON CONFLICT (listing_id, date) DO UPDATE
		SET is_available = false,
		    booking_id = EXCLUDED.booking_id,
		    updated_at = NOW()
		WHERE calendar_dates.is_available = true
		   OR calendar_dates.booking_id = EXCLUDED.booking_id
		RETURNING date
	`

	rows, err := r.db.Query(ctx, query, listingID, start, end, bookingID)
	if err != nil {
		r.log.Error("Failed to lock calendar range",
			zap.Error(err),
			zap.String("listing_id", listingID.String()),
			zap.String("booking_id", bookingID.String()),
		)
		return nil, fmt.Errorf("lock range for booking %s: %w", bookingID.String(), err)
	}

	return collectDates(rows)
}

func (r *calendarRepository) FreeByBooking(ctx context.Context, bookingID uuid.UUID) ([]time.Time, error) {
	query := `
		UPDATE calendar_dates
		SET is_available = true, booking_id = NULL, updated_at = NOW()
		WHERE booking_id = $1
		RETURNING date
	`

	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		r.log.Error("Failed to free calendar range",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return nil, fmt.Errorf("free range for booking %s: %w", bookingID.String(), err)
	}

	return collectDates(rows)
}

func collectDates(rows pgx.Rows) ([]time.Time, error) {
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan calendar date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
