package usecase

import (
	"errors"
	"fmt"
	"time"

	"stay-booking/pkg/utils"

	"github.com/google/uuid"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid state")
	ErrRequestInProgress = errors.New("request already in progress")
)

// DatesUnavailableError lists the nights that block a requested stay.
type DatesUnavailableError struct {
	ListingID    uuid.UUID
	BlockedDates []time.Time
}

func (e *DatesUnavailableError) Error() string {
	return fmt.Sprintf("listing %s is unavailable on %v", e.ListingID, utils.FormatDates(e.BlockedDates))
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invalidStateErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func notFoundErr(what string, id any) error {
	return fmt.Errorf("%s %v %w", what, id, ErrNotFound)
}
