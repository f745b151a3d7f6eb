package adaptor

import (
	"net/http"

	"stay-booking/internal/dto/request"
	"stay-booking/internal/usecase"
	"stay-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ListingHandler struct {
	calendar usecase.CalendarService
	log      *zap.Logger
}

func NewListingHandler(calendar usecase.CalendarService, log *zap.Logger) *ListingHandler {
	return &ListingHandler{
		calendar: calendar,
		log:      log.With(zap.String("handler", "listing")),
	}
}

// GetAvailability handles GET /api/listings/{id}/availability?start=&end= (public)
func (h *ListingHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := &request.AvailabilityRequest{
		ListingID: chi.URLParam(r, "id"),
		Start:     query.Get("start"),
		End:       query.Get("end"),
	}

	availability, err := h.calendar.GetAvailability(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err, "get availability")
		return
	}

	utils.ResponseSuccess(w, "success", availability)
}
