package response

import (
	"time"

	"stay-booking/internal/data/entity"
	"stay-booking/pkg/utils"
)

type PriceBreakdown struct {
	Currency             string `json:"currency"`
	NightlyRateCents     int64  `json:"nightly_rate_cents"`
	Nights               int    `json:"nights"`
	NightsCostCents      int64  `json:"nights_cost_cents"`
	CleaningFeeCents     int64  `json:"cleaning_fee_cents"`
	PlatformFeeCents     int64  `json:"platform_fee_cents"`
	TotalAmountCents     int64  `json:"total_amount_cents"`
	SecurityDepositCents int64  `json:"security_deposit_cents"`
}

type RefundInfo struct {
	AmountCents int64     `json:"amount_cents"`
	Reason      string    `json:"reason"`
	Reference   string    `json:"reference,omitempty"`
	RefundedAt  time.Time `json:"refunded_at"`
}

type BookingResponse struct {
	ID            string               `json:"id"`
	ListingID     string               `json:"listing_id"`
	GuestID       string               `json:"guest_id"`
	CheckInDate   string               `json:"check_in_date"`
	CheckOutDate  string               `json:"check_out_date"`
	GuestCount    int                  `json:"guest_count"`
	GuestName     string               `json:"guest_name"`
	ContactEmail  string               `json:"contact_email"`
	ContactPhone  string               `json:"contact_phone"`
	Price         PriceBreakdown       `json:"price"`
	BookingStatus entity.BookingStatus `json:"booking_status"`
	PaymentStatus entity.PaymentStatus `json:"payment_status"`
	Refund        *RefundInfo          `json:"refund,omitempty"`
	CancelledAt   *time.Time           `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type PaymentResponse struct {
	ID              string               `json:"id"`
	GatewayOrderID  string               `json:"gateway_order_id"`
	MerchantOrderID string               `json:"merchant_order_id"`
	AmountCents     int64                `json:"amount_cents"`
	Currency        string               `json:"currency"`
	Status          entity.PaymentStatus `json:"status"`
	PaymentURL      string               `json:"payment_url,omitempty"`
	ExpiresAt       time.Time            `json:"expires_at"`
	PaidAt          *time.Time           `json:"paid_at,omitempty"`
}

// BookingPaymentResponse is returned when a payment attempt is opened.
type BookingPaymentResponse struct {
	Booking BookingResponse `json:"booking"`
	Payment PaymentResponse `json:"payment"`
}

// BookingStatusResponse is what polling clients and websocket frames carry.
type BookingStatusResponse struct {
	BookingID     string               `json:"booking_id"`
	BookingStatus entity.BookingStatus `json:"booking_status"`
	PaymentStatus entity.PaymentStatus `json:"payment_status"`
	PaymentURL    string               `json:"payment_url,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type AvailabilityResponse struct {
	ListingID    string   `json:"listing_id"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Available    bool     `json:"available"`
	BlockedDates []string `json:"blocked_dates"`
}

type PaymentMethodResponse struct {
	Code              string `json:"code"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	FeeCents          int64  `json:"fee_cents"`
	TotalWithFeeCents int64  `json:"total_with_fee_cents"`
}

type WebhookAckResponse struct {
	Received bool `json:"received"`
	Applied  bool `json:"applied"`
}

// Helper converters
func BookingToResponse(b *entity.Booking) BookingResponse {
	resp := BookingResponse{
		ID:           b.ID.String(),
		ListingID:    b.ListingID.String(),
		GuestID:      b.GuestID.String(),
		CheckInDate:  b.CheckInDate.Format(utils.DateLayout),
		CheckOutDate: b.CheckOutDate.Format(utils.DateLayout),
		GuestCount:   b.GuestCount,
		GuestName:    b.GuestName,
		ContactEmail: b.ContactEmail,
		ContactPhone: b.ContactPhone,
		Price: PriceBreakdown{
			Currency:             b.Currency,
			NightlyRateCents:     b.NightlyRateCents,
			Nights:               b.NumberOfNights,
			NightsCostCents:      b.NightsCostCents,
			CleaningFeeCents:     b.CleaningFeeCents,
			PlatformFeeCents:     b.PlatformFeeCents,
			TotalAmountCents:     b.TotalAmountCents,
			SecurityDepositCents: b.SecurityDepositCents,
		},
		BookingStatus: b.BookingStatus,
		PaymentStatus: b.PaymentStatus,
		CancelledAt:   b.CancelledAt,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}

	if b.RefundAmountCents != nil && b.RefundedAt != nil {
		refund := &RefundInfo{AmountCents: *b.RefundAmountCents, RefundedAt: *b.RefundedAt}
		if b.RefundReason != nil {
			refund.Reason = *b.RefundReason
		}
		if b.RefundReference != nil {
			refund.Reference = *b.RefundReference
		}
		resp.Refund = refund
	}

	return resp
}

func PaymentToResponse(p *entity.Payment) PaymentResponse {
	return PaymentResponse{
		ID:              p.ID.String(),
		GatewayOrderID:  p.GatewayOrderID,
		MerchantOrderID: p.MerchantOrderID,
		AmountCents:     p.AmountCents,
		Currency:        p.Currency,
		Status:          p.Status,
		PaymentURL:      p.PaymentURL,
		ExpiresAt:       p.ExpiresAt,
		PaidAt:          p.PaidAt,
	}
}
