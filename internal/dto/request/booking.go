package request

// CreateBookingRequest is the final wizard submission.
type CreateBookingRequest struct {
	ListingID    string `json:"listing_id" validate:"required,uuid"`
	CheckInDate  string `json:"check_in_date" validate:"required,datetime=2006-01-02"`
	CheckOutDate string `json:"check_out_date" validate:"required,datetime=2006-01-02"`
	GuestCount   int    `json:"guest_count" validate:"required,gte=1,lte=50"`
	GuestName    string `json:"guest_name" validate:"required,min=2,max=150"`
	ContactEmail string `json:"contact_email" validate:"required,email"`
	ContactPhone string `json:"contact_phone" validate:"required,e164"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RefundRequest is an operator-initiated cancellation with refund.
type RefundRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required,min=3,max=500"`
}

type AvailabilityRequest struct {
	ListingID string `validate:"required,uuid"`
	Start     string `validate:"required,datetime=2006-01-02"`
	End       string `validate:"required,datetime=2006-01-02"`
}
