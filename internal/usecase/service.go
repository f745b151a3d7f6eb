package usecase

import (
	"stay-booking/internal/data/repository"
	"stay-booking/pkg/utils"

	"go.uber.org/zap"
)

type Service struct {
	Booking       BookingService
	Calendar      CalendarService
	PaymentMethod PaymentMethodService
}

func NewService(repo *repository.Repository, deps BookingDeps, cache Cache, config *utils.Config, log *zap.Logger) *Service {
	return &Service{
		Booking:       NewBookingService(repo, deps, config.Booking, log),
		Calendar:      NewCalendarService(repo, log),
		PaymentMethod: NewPaymentMethodService(repo.PaymentMethod, deps.Gateway, cache, config.Booking, log),
	}
}
