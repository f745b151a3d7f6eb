package usecase

import (
	"context"
	"time"

	"stay-booking/internal/data/entity"
	"stay-booking/pkg/utils"

	"go.uber.org/zap"
)

// Routing keys published on the events exchange.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingRefunded  = "booking.refunded"
	EventPaymentPaid      = "payment.paid"
	EventPaymentFailed    = "payment.failed"
	EventPaymentOrphaned  = "payment.orphaned"
	EventCalendarConflict = "calendar.conflict"
)

type SettlementEvent struct {
	Type          string               `json:"type"`
	BookingID     string               `json:"booking_id"`
	ListingID     string               `json:"listing_id"`
	GuestID       string               `json:"guest_id"`
	PaymentID     string               `json:"payment_id,omitempty"`
	BookingStatus entity.BookingStatus `json:"booking_status"`
	PaymentStatus entity.PaymentStatus `json:"payment_status"`
	AmountCents   int64                `json:"amount_cents"`
	Currency      string               `json:"currency"`
	Dates         []string             `json:"dates,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// emit publishes an event and pushes the booking's new status to live
// subscribers. Failures are logged; the state change already committed.
func (s *bookingService) emit(ctx context.Context, eventType string, booking *entity.Booking, payment *entity.Payment, dates []time.Time) {
	if booking == nil {
		return
	}

	event := SettlementEvent{
		Type:          eventType,
		BookingID:     booking.ID.String(),
		ListingID:     booking.ListingID.String(),
		GuestID:       booking.GuestID.String(),
		BookingStatus: booking.BookingStatus,
		PaymentStatus: booking.PaymentStatus,
		AmountCents:   booking.TotalAmountCents,
		Currency:      booking.Currency,
		OccurredAt:    s.deps.Now().UTC(),
	}
	if payment != nil {
		event.PaymentID = payment.ID.String()
		event.AmountCents = payment.AmountCents
	}
	if eventType == EventBookingRefunded && booking.RefundAmountCents != nil {
		event.AmountCents = *booking.RefundAmountCents
	}
	if len(dates) > 0 {
		event.Dates = utils.FormatDates(dates)
	}

	if err := s.deps.Events.PublishJSON(ctx, eventType, event); err != nil {
		s.log.Warn("Failed to publish event",
			zap.Error(err),
			zap.String("event", eventType),
			zap.String("booking_id", event.BookingID),
		)
	}

	s.deps.Notifier.Publish(booking.ID, s.statusOf(booking, payment))
}
