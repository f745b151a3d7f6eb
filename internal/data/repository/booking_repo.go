package repository

import (
	"context"
	"errors"
	"fmt"

	"stay-booking/internal/data/entity"
	"stay-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByGuestID(ctx context.Context, guestID uuid.UUID, limit, offset int) ([]*entity.Booking, error)
	CountByGuestID(ctx context.Context, guestID uuid.UUID) (int64, error)

	// Conditional transitions; false means the booking was not in the
	// expected status and nothing was written.
	UpdateStatus(ctx context.Context, id uuid.UUID, from entity.BookingStatus, to entity.BookingStatus, paymentStatus entity.PaymentStatus) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from entity.BookingStatus, paymentStatus entity.PaymentStatus) (bool, error)
	Cancel(ctx context.Context, booking *entity.Booking, from entity.BookingStatus) (bool, error)
}

const bookingColumns = `
	id, listing_id, guest_id, check_in_date, check_out_date, guest_count,
	guest_name, contact_email, contact_phone, currency,
	nightly_rate_cents, number_of_nights, nights_cost_cents, cleaning_fee_cents,
	security_deposit_cents, platform_fee_cents, total_amount_cents,
	booking_status, payment_status, cancellation_reason,
	refund_amount_cents, refund_reason, refund_reference, refunded_at, cancelled_at,
	created_at, updated_at`

type bookingRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewBookingRepository(db database.Querier, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

func scanBooking(row rowScanner) (*entity.Booking, error) {
	var b entity.Booking
	err := row.Scan(
		&b.ID,
		&b.ListingID,
		&b.GuestID,
		&b.CheckInDate,
		&b.CheckOutDate,
		&b.GuestCount,
		&b.GuestName,
		&b.ContactEmail,
		&b.ContactPhone,
		&b.Currency,
		&b.NightlyRateCents,
		&b.NumberOfNights,
		&b.NightsCostCents,
		&b.CleaningFeeCents,
		&b.SecurityDepositCents,
		&b.PlatformFeeCents,
		&b.TotalAmountCents,
		&b.BookingStatus,
		&b.PaymentStatus,
		&b.CancellationReason,
		&b.RefundAmountCents,
		&b.RefundReason,
		&b.RefundReference,
		&b.RefundedAt,
		&b.CancelledAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (id, listing_id, guest_id, check_in_date, check_out_date, guest_count,
		                      guest_name, contact_email, contact_phone, currency,
		                      nightly_rate_cents, number_of_nights, nights_cost_cents, cleaning_fee_cents,
		                      security_deposit_cents, platform_fee_cents, total_amount_cents,
		                      booking_status, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.ListingID,
		booking.GuestID,
		booking.CheckInDate,
		booking.CheckOutDate,
		booking.GuestCount,
		booking.GuestName,
		booking.ContactEmail,
		booking.ContactPhone,
		booking.Currency,
		booking.NightlyRateCents,
		booking.NumberOfNights,
		booking.NightsCostCents,
		booking.CleaningFeeCents,
		booking.SecurityDepositCents,
		booking.PlatformFeeCents,
		booking.TotalAmountCents,
		booking.BookingStatus,
		booking.PaymentStatus,
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("listing_id", booking.ListingID.String()),
			zap.String("guest_id", booking.GuestID.String()),
		)
		return fmt.Errorf("create booking %s: %w", booking.ID.String(), err)
	}

	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.findOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND deleted_at IS NULL`, id)
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (r *bookingRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.findOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
}

func (r *bookingRepository) findOne(ctx context.Context, query string, id uuid.UUID) (*entity.Booking, error) {
	booking, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID",
			zap.Error(err),
			zap.String("booking_id", id.String()),
		)
		return nil, fmt.Errorf("find booking by ID %s: %w", id.String(), err)
	}

	return booking, nil
}

func (r *bookingRepository) FindByGuestID(ctx context.Context, guestID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE guest_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, guestID, limit, offset)
	if err != nil {
		r.log.Error("Failed to find bookings by guest ID",
			zap.Error(err),
			zap.String("guest_id", guestID.String()),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, fmt.Errorf("find bookings by guest ID %s: %w", guestID.String(), err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			r.log.Error("Failed to scan booking row", zap.Error(err))
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

func (r *bookingRepository) CountByGuestID(ctx context.Context, guestID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE guest_id = $1 AND deleted_at IS NULL`

	var count int64
	err := r.db.QueryRow(ctx, query, guestID).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count bookings by guest ID",
			zap.Error(err),
			zap.String("guest_id", guestID.String()),
		)
		return 0, fmt.Errorf("count bookings by guest ID %s: %w", guestID.String(), err)
	}

	return count, nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from entity.BookingStatus, to entity.BookingStatus, paymentStatus entity.PaymentStatus) (bool, error) {
	query := `
		UPDATE bookings
		SET booking_status = $3, payment_status = $4, updated_at = NOW()
		WHERE id = $1 AND booking_status = $2
	`

	result, err := r.db.Exec(ctx, query, id, from, to, paymentStatus)
	if err != nil {
		r.log.Error("Failed to update booking status",
			zap.Error(err),
			zap.String("booking_id", id.String()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return false, fmt.Errorf("update booking %s status to %s: %w", id.String(), string(to), err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *bookingRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from entity.BookingStatus, paymentStatus entity.PaymentStatus) (bool, error) {
	query := `
		UPDATE bookings
		SET payment_status = $3, updated_at = NOW()
		WHERE id = $1 AND booking_status = $2
	`

	result, err := r.db.Exec(ctx, query, id, from, paymentStatus)
	if err != nil {
		r.log.Error("Failed to update booking payment status",
			zap.Error(err),
			zap.String("booking_id", id.String()),
			zap.String("payment_status", string(paymentStatus)),
		)
		return false, fmt.Errorf("update booking %s payment status to %s: %w", id.String(), string(paymentStatus), err)
	}

	return result.RowsAffected() > 0, nil
}

// Cancel writes the cancellation and any refund fields carried by booking.
func (r *bookingRepository) Cancel(ctx context.Context, booking *entity.Booking, from entity.BookingStatus) (bool, error) {
	query := `
		UPDATE bookings
		SET booking_status = 'cancelled',
		    payment_status = $3,
		    cancellation_reason = $4,
		    refund_amount_cents = $5,
		    refund_reason = $6,
		    refund_reference = $7,
		    refunded_at = $8,
		    cancelled_at = $9,
		    updated_at = NOW()
		WHERE id = $1 AND booking_status = $2
	`

	result, err := r.db.Exec(ctx, query,
		booking.ID,
		from,
		booking.PaymentStatus,
		booking.CancellationReason,
		booking.RefundAmountCents,
		booking.RefundReason,
		booking.RefundReference,
		booking.RefundedAt,
		booking.CancelledAt,
	)
	if err != nil {
		r.log.Error("Failed to cancel booking",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
		)
		return false, fmt.Errorf("cancel booking %s: %w", booking.ID.String(), err)
	}

	return result.RowsAffected() > 0, nil
}
