package adaptor

import (
	"encoding/json"
	"io"
	"net/http"

	"stay-booking/internal/dto/response"
	"stay-booking/internal/usecase"
	"stay-booking/pkg/utils"

	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	service usecase.BookingService
	log     *zap.Logger
}

func NewWebhookHandler(service usecase.BookingService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		log:     log.With(zap.String("handler", "webhook")),
	}
}

// PaymentCallback handles POST /api/webhooks/payment?hmac= (gateway only).
// Rejected deliveries are acknowledged with applied=false; only a storage
// failure answers 5xx so the gateway redelivers.
func (h *WebhookHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		utils.ResponseBadRequest(w, "Unreadable body", nil)
		return
	}

	applied, err := h.service.ApplyWebhook(r.Context(), body, r.URL.Query().Get("hmac"))
	if err != nil {
		h.log.Error("Webhook processing failed", zap.Error(err))
		utils.ResponseInternalError(w, "Webhook processing failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response.WebhookAckResponse{Received: true, Applied: applied})
}
