package wire

import (
	"stay-booking/internal/adaptor"
	"stay-booking/internal/data/repository"
	"stay-booking/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	repo *repository.Repository,
	limiter *middleware.RateLimiter,
	log *zap.Logger,
) {
	// ==================== PROTECTED ROUTES (require auth) ====================
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthSession(repo.Session, log))

		// POST /api/bookings - Create booking and open its payment
		r.With(middleware.RateLimit(limiter, log)).Post("/api/bookings", bookingHandler.CreateBooking)

		// GET /api/bookings/{id}/status - Poll booking and payment status
		r.Get("/api/bookings/{id}/status", bookingHandler.GetBookingStatus)

		// GET /api/bookings/{id}/ws - Live status frames over websocket
		r.Get("/api/bookings/{id}/ws", bookingHandler.StreamStatus)

		// POST /api/bookings/{id}/retry-payment - New attempt after failure/expiry
		r.Post("/api/bookings/{id}/retry-payment", bookingHandler.RetryPayment)

		// POST /api/bookings/{id}/cancel - Cancel a pending booking
		r.Post("/api/bookings/{id}/cancel", bookingHandler.CancelBooking)

		// GET /api/user/bookings - Booking history
		r.Get("/api/user/bookings", bookingHandler.GetUserBookings)
	})

	// ==================== PUBLIC ROUTES ====================
	// GET /api/payment-methods?amount_cents= - Eligible payment methods
	r.Get("/api/payment-methods", bookingHandler.GetPaymentMethods)

	// ==================== ADMIN ROUTES ====================
	r.Route("/api/admin/bookings", func(r chi.Router) {
		// Require both authentication AND admin role
		r.Use(middleware.AuthSession(repo.Session, log))
		r.Use(middleware.Admin(repo.User, log))

		// POST /api/admin/bookings/{id}/refund - Refund and cancel a paid booking
		r.Post("/{id}/refund", bookingHandler.RefundBooking)
	})
}

func wireListing(r chi.Router, listingHandler *adaptor.ListingHandler) {
	// GET /api/listings/{id}/availability?start=&end= (public)
	r.Get("/api/listings/{id}/availability", listingHandler.GetAvailability)
}

func wireWebhook(r chi.Router, webhookHandler *adaptor.WebhookHandler, limiter *middleware.RateLimiter, log *zap.Logger) {
	// POST /api/webhooks/payment?hmac= - Gateway transaction callback, signature checked in the service
	r.With(middleware.RateLimit(limiter, log)).Post("/api/webhooks/payment", webhookHandler.PaymentCallback)
}
