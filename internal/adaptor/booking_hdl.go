package adaptor

import (
	"encoding/json"
	"net/http"
	"strconv"

	"stay-booking/internal/dto/request"
	"stay-booking/internal/usecase"
	"stay-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

type BookingHandler struct {
	service usecase.BookingService
	methods usecase.PaymentMethodService
	stream  StatusStream
	log     *zap.Logger
}

func NewBookingHandler(service usecase.BookingService, methods usecase.PaymentMethodService, stream StatusStream, log *zap.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		methods: methods,
		stream:  stream,
		log:     log.With(zap.String("handler", "booking")),
	}
}

// CreateBooking handles POST /api/bookings (protected)
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.UserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	key := r.Header.Get(idempotencyHeader)
	if len(key) > 128 {
		utils.ResponseBadRequest(w, "Idempotency-Key is too long", nil)
		return
	}

	result, err := h.service.CreateBookingPayment(r.Context(), userID.String(), key, &req)
	if err != nil {
		writeServiceError(w, h.log, err, "create booking")
		return
	}

	utils.ResponseCreated(w, "Booking created, awaiting payment", result)
}

// GetBookingStatus handles GET /api/bookings/{id}/status (protected)
func (h *BookingHandler) GetBookingStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.UserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	status, err := h.service.GetBookingStatus(r.Context(), userID.String(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "get booking status")
		return
	}

	utils.ResponseSuccess(w, "success", status)
}

// StreamStatus handles GET /api/bookings/{id}/ws (protected)
func (h *BookingHandler) StreamStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.UserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	status, err := h.service.GetBookingStatus(r.Context(), userID.String(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "stream booking status")
		return
	}

	// The upgrader has already answered the request when Serve fails.
	if err := h.stream.Serve(w, r, uuid.MustParse(status.BookingID), status); err != nil {
		h.log.Debug("Status stream closed", zap.Error(err), zap.String("booking_id", status.BookingID))
	}
}

// RetryPayment handles POST /api/bookings/{id}/retry-payment (protected)
func (h *BookingHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.UserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	result, err := h.service.RetryPayment(r.Context(), userID.String(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.log, err, "retry payment")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}

// CancelBooking handles POST /api/bookings/{id}/cancel (protected)
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.UserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.CancelBookingRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.ResponseBadRequest(w, "Invalid request body", nil)
			return
		}
	}

	booking, err := h.service.CancelBooking(r.Context(), userID.String(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "cancel booking")
		return
	}

	utils.ResponseSuccess(w, "Booking cancelled", booking)
}

// GetUserBookings handles GET /api/user/bookings (protected)
func (h *BookingHandler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.UserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	query := r.URL.Query()
	req := &request.PaginatedRequest{
		Page:    utils.ParseInt(query.Get("page"), 1),
		PerPage: utils.ParseInt(query.Get("per_page"), 10),
	}

	bookings, err := h.service.GetUserBookings(r.Context(), userID.String(), req)
	if err != nil {
		writeServiceError(w, h.log, err, "get user bookings")
		return
	}

	utils.ResponseSuccess(w, "success", bookings)
}

// GetPaymentMethods handles GET /api/payment-methods?amount_cents= (public)
func (h *BookingHandler) GetPaymentMethods(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount_cents"), 10, 64)
	if err != nil || amount <= 0 {
		utils.ResponseBadRequest(w, "amount_cents must be a positive integer", nil)
		return
	}

	methods, err := h.methods.GetPaymentMethods(r.Context(), amount, r.URL.Query().Get("currency"))
	if err != nil {
		writeServiceError(w, h.log, err, "get payment methods")
		return
	}

	utils.ResponseSuccess(w, "success", methods)
}

// ==================== ADMIN METHODS ====================

// RefundBooking handles POST /api/admin/bookings/{id}/refund (admin only)
func (h *BookingHandler) RefundBooking(w http.ResponseWriter, r *http.Request) {
	var req request.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	booking, err := h.service.CancelAndRefund(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, h.log, err, "refund booking")
		return
	}

	utils.ResponseSuccess(w, "Booking refunded", booking)
}
