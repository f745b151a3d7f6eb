package entity

import (
	"time"

	"github.com/google/uuid"
)

// CalendarDate is one night of one listing. BookingID is set when the night
// was locked by a confirmed booking; a row with IsAvailable false and no
// BookingID is a host block.
type CalendarDate struct {
	ListingID   uuid.UUID  `db:"listing_id"`
	Date        time.Time  `db:"date"`
	IsAvailable bool       `db:"is_available"`
	BookingID   *uuid.UUID `db:"booking_id"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}
