package adaptor

import (
	"context"
	"errors"
	"net/http"

	"stay-booking/internal/usecase"
	"stay-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Handler struct {
	Booking *BookingHandler
	Listing *ListingHandler
	Webhook *WebhookHandler
}

// StatusStream upgrades a request to a live status feed for one booking.
type StatusStream interface {
	Serve(w http.ResponseWriter, r *http.Request, bookingID uuid.UUID, initial any) error
}

func NewHandler(service *usecase.Service, stream StatusStream, log *zap.Logger) *Handler {
	return &Handler{
		Booking: NewBookingHandler(service.Booking, service.PaymentMethod, stream, log),
		Listing: NewListingHandler(service.Calendar, log),
		Webhook: NewWebhookHandler(service.Booking, log),
	}
}

// writeServiceError maps service errors onto the response envelope.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	var unavailable *usecase.DatesUnavailableError

	switch {
	case errors.As(err, &unavailable):
		log.Info(operation+" failed - dates unavailable",
			zap.Strings("blocked_dates", utils.FormatDates(unavailable.BlockedDates)))
		utils.ResponseConflict(w, utils.CodeDatesUnavailable, "Selected dates are no longer available",
			map[string]any{"blocked_dates": utils.FormatDates(unavailable.BlockedDates)})

	case errors.Is(err, usecase.ErrValidation):
		log.Warn(operation+" validation failed", zap.Error(err))
		utils.ResponseBadRequest(w, err.Error(), nil)

	case errors.Is(err, usecase.ErrNotFound):
		log.Warn(operation+" failed - not found", zap.Error(err))
		utils.ResponseNotFound(w, err.Error())

	case errors.Is(err, usecase.ErrForbidden):
		log.Warn(operation+" failed - forbidden", zap.Error(err))
		utils.ResponseForbidden(w, "You do not have access to this booking")

	case errors.Is(err, usecase.ErrInvalidState):
		log.Warn(operation+" failed - invalid state", zap.Error(err))
		utils.ResponseConflict(w, utils.CodeInvalidState, err.Error(), nil)

	case errors.Is(err, usecase.ErrRequestInProgress):
		log.Info(operation+" already in progress")
		utils.ResponseConflict(w, utils.CodeRequestInProgress, "Request is already being processed", nil)

	case usecase.IsGatewayFailure(err), errors.Is(err, context.DeadlineExceeded):
		log.Error(operation+" failed - payment gateway", zap.Error(err))
		utils.ResponseBadGateway(w, "Payment provider is unavailable, please retry")

	default:
		log.Error("Failed to "+operation, zap.Error(err))
		utils.ResponseInternalError(w, "Internal server error")
	}
}
