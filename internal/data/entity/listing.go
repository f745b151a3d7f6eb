package entity

import (
	"github.com/google/uuid"
)

// Listing carries the rate card a booking is priced from. Rates are major
// currency units as entered by the host.
type Listing struct {
	Base
	HostID          uuid.UUID `db:"host_id"`
	Title           string    `db:"title"`
	NightlyRate     float64   `db:"nightly_rate"`
	CleaningFee     float64   `db:"cleaning_fee"`
	SecurityDeposit float64   `db:"security_deposit"`
	Currency        string    `db:"currency"`
	MinNights       int       `db:"min_nights"`
	MaxGuests       int       `db:"max_guests"`
	IsActive        bool      `db:"is_active"`
}
