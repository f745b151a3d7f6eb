package usecase

import (
	"context"
	"fmt"
	"time"

	"stay-booking/internal/data/repository"
	"stay-booking/internal/dto/request"
	"stay-booking/internal/dto/response"
	"stay-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxAvailabilityWindow caps the public availability query.
const maxAvailabilityWindow = 366

// CalendarService owns the per-listing, per-night availability ledger.
//
// The availability check and the lock are separate steps: CheckAvailability
// runs when a booking is created and LockRange only when its payment
// succeeds. Two guests can therefore both pass the check for overlapping
// nights; whichever payment is applied first takes the nights.
type CalendarService interface {
	CheckAvailability(ctx context.Context, listingID uuid.UUID, checkIn, checkOut time.Time) ([]time.Time, error)
	LockRange(ctx context.Context, listingID, bookingID uuid.UUID, checkIn, checkOut time.Time) ([]time.Time, error)
	FreeRange(ctx context.Context, bookingID uuid.UUID) ([]time.Time, error)
	GetAvailability(ctx context.Context, req *request.AvailabilityRequest) (*response.AvailabilityResponse, error)
}

type calendarService struct {
	repo *repository.Repository
	log  *zap.Logger
}

func NewCalendarService(repo *repository.Repository, log *zap.Logger) CalendarService {
	return &calendarService{
		repo: repo,
		log:  log.With(zap.String("service", "calendar")),
	}
}

// CheckAvailability returns the blocked nights of [checkIn, checkOut).
// An empty result means the whole range is free.
func (s *calendarService) CheckAvailability(ctx context.Context, listingID uuid.UUID, checkIn, checkOut time.Time) ([]time.Time, error) {
	rows, err := s.repo.Calendar.FindUnavailable(ctx, listingID, utils.TruncateDay(checkIn), utils.TruncateDay(checkOut))
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}

	blocked := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		blocked = append(blocked, utils.TruncateDay(row.Date))
	}
	return blocked, nil
}

// LockRange marks every night of the stay unavailable for bookingID and
// returns the nights it could not take because something else already held
// them. Nights already held by bookingID count as locked.
func (s *calendarService) LockRange(ctx context.Context, listingID, bookingID uuid.UUID, checkIn, checkOut time.Time) ([]time.Time, error) {
	wanted := utils.NightsOf(checkIn, checkOut)

	locked, err := s.repo.Calendar.LockRange(ctx, listingID, bookingID, utils.TruncateDay(checkIn), utils.TruncateDay(checkOut))
	if err != nil {
		return nil, fmt.Errorf("lock calendar range: %w", err)
	}

	got := make(map[string]struct{}, len(locked))
	for _, d := range locked {
		got[d.UTC().Format(utils.DateLayout)] = struct{}{}
	}

	var conflicts []time.Time
	for _, night := range wanted {
		if _, ok := got[night.Format(utils.DateLayout)]; !ok {
			conflicts = append(conflicts, night)
		}
	}

	if len(conflicts) > 0 {
		s.log.Warn("Calendar nights already held by another booking",
			zap.String("listing_id", listingID.String()),
			zap.String("booking_id", bookingID.String()),
			zap.Strings("conflicts", utils.FormatDates(conflicts)),
		)
	}
	return conflicts, nil
}

// FreeRange releases every night held by bookingID.
func (s *calendarService) FreeRange(ctx context.Context, bookingID uuid.UUID) ([]time.Time, error) {
	freed, err := s.repo.Calendar.FreeByBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("free calendar range: %w", err)
	}
	return freed, nil
}

func (s *calendarService) GetAvailability(ctx context.Context, req *request.AvailabilityRequest) (*response.AvailabilityResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, validationErr("%s", utils.FormatValidationErrors(errs))
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return nil, validationErr("invalid listing ID %s", req.ListingID)
	}
	start, err := utils.ParseDate(req.Start)
	if err != nil {
		return nil, validationErr("%v", err)
	}
	end, err := utils.ParseDate(req.End)
	if err != nil {
		return nil, validationErr("%v", err)
	}
	if !end.After(start) {
		return nil, validationErr("end must be after start")
	}
	if utils.NightsBetween(start, end) > maxAvailabilityWindow {
		return nil, validationErr("range may span at most %d nights", maxAvailabilityWindow)
	}

	listing, err := s.repo.Listing.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, notFoundErr("listing", listingID)
	}

	blocked, err := s.CheckAvailability(ctx, listingID, start, end)
	if err != nil {
		return nil, err
	}

	return &response.AvailabilityResponse{
		ListingID:    listingID.String(),
		Start:        req.Start,
		End:          req.End,
		Available:    len(blocked) == 0,
		BlockedDates: utils.FormatDates(blocked),
	}, nil
}
