package usecase

import (
	"fmt"
	"math"
	"strings"
	"time"

	"stay-booking/internal/data/entity"
	"stay-booking/pkg/gateway"
	"stay-booking/pkg/utils"
)

// ToMinorUnits converts a major-unit amount to cents, rounding to nearest.
// Rate cards are stored in major units; this is the only place the
// conversion happens.
func ToMinorUnits(major float64) int64 {
	return int64(math.Round(major * 100))
}

// Quote is the priced breakdown of a stay. All amounts are cents.
type Quote struct {
	Currency             string
	Nights               int
	NightlyRateCents     int64
	NightsCostCents      int64
	CleaningFeeCents     int64
	PlatformFeeCents     int64
	SecurityDepositCents int64
	TotalAmountCents     int64
}

// QuoteStay prices [checkIn, checkOut) against the listing's rate card.
// The platform fee is feeBps basis points of the nights cost, rounded half
// up; the security deposit is reported but not charged.
func QuoteStay(listing *entity.Listing, checkIn, checkOut time.Time, feeBps int64) (Quote, error) {
	nights := utils.NightsBetween(checkIn, checkOut)
	if nights <= 0 {
		return Quote{}, validationErr("check-out must be after check-in")
	}
	if feeBps < 0 {
		return Quote{}, fmt.Errorf("negative platform fee %d bps", feeBps)
	}

	q := Quote{
		Currency:             listing.Currency,
		Nights:               nights,
		NightlyRateCents:     ToMinorUnits(listing.NightlyRate),
		CleaningFeeCents:     ToMinorUnits(listing.CleaningFee),
		SecurityDepositCents: ToMinorUnits(listing.SecurityDeposit),
	}
	q.NightsCostCents = q.NightlyRateCents * int64(nights)
	q.PlatformFeeCents = (q.NightsCostCents*feeBps + 5000) / 10000
	q.TotalAmountCents = q.NightsCostCents + q.CleaningFeeCents + q.PlatformFeeCents

	return q, nil
}

// lineItems splits a booking total into the rows shown on the hosted page.
// The rows always sum to TotalAmountCents.
func lineItems(b *entity.Booking, title string) []gateway.LineItem {
	items := []gateway.LineItem{{
		Name:        title,
		Description: fmt.Sprintf("%d night(s), %s to %s", b.NumberOfNights, b.CheckInDate.Format(utils.DateLayout), b.CheckOutDate.Format(utils.DateLayout)),
		AmountCents: b.NightsCostCents,
		Quantity:    1,
	}}
	if b.CleaningFeeCents > 0 {
		items = append(items, gateway.LineItem{Name: "Cleaning fee", AmountCents: b.CleaningFeeCents, Quantity: 1})
	}
	if b.PlatformFeeCents > 0 {
		items = append(items, gateway.LineItem{Name: "Service fee", AmountCents: b.PlatformFeeCents, Quantity: 1})
	}
	return items
}

// splitName turns a free-form guest name into billing first/last names.
func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
