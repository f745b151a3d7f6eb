package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is a guest's reservation of a listing for a date range. Money
// fields are minor units (cents). SecurityDepositCents is tracked but is not
// part of TotalAmountCents.
type Booking struct {
	Base
	ListingID            uuid.UUID     `db:"listing_id"`
	GuestID              uuid.UUID     `db:"guest_id"`
	CheckInDate          time.Time     `db:"check_in_date"`
	CheckOutDate         time.Time     `db:"check_out_date"`
	GuestCount           int           `db:"guest_count"`
	GuestName            string        `db:"guest_name"`
	ContactEmail         string        `db:"contact_email"`
	ContactPhone         string        `db:"contact_phone"`
	Currency             string        `db:"currency"`
	NightlyRateCents     int64         `db:"nightly_rate_cents"`
	NumberOfNights       int           `db:"number_of_nights"`
	NightsCostCents      int64         `db:"nights_cost_cents"`
	CleaningFeeCents     int64         `db:"cleaning_fee_cents"`
	SecurityDepositCents int64         `db:"security_deposit_cents"`
	PlatformFeeCents     int64         `db:"platform_fee_cents"`
	TotalAmountCents     int64         `db:"total_amount_cents"`
	BookingStatus        BookingStatus `db:"booking_status"`
	PaymentStatus        PaymentStatus `db:"payment_status"`
	CancellationReason   *string       `db:"cancellation_reason"`
	RefundAmountCents    *int64        `db:"refund_amount_cents"`
	RefundReason         *string       `db:"refund_reason"`
	RefundReference      *string       `db:"refund_reference"`
	RefundedAt           *time.Time    `db:"refunded_at"`
	CancelledAt          *time.Time    `db:"cancelled_at"`
}

// IsPending reports whether the booking still awaits a payment outcome.
func (b *Booking) IsPending() bool {
	return b.BookingStatus == BookingStatusPending
}
