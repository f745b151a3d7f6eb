// internal/wire/wire.go
package wire

import (
	"net/http"

	"stay-booking/internal/adaptor"
	"stay-booking/internal/data/repository"
	"stay-booking/internal/usecase"
	"stay-booking/pkg/middleware"
	"stay-booking/pkg/realtime"
	"stay-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// App menyimpan semua dependencies
type App struct {
	Router *chi.Mux
}

// Infra groups the external collaborators built in main.
type Infra struct {
	Gateway     usecase.PaymentGateway
	Idempotency usecase.IdempotencyStore
	Locker      usecase.Locker
	Cache       usecase.Cache
	Events      usecase.EventPublisher
	Hub         *realtime.Hub
}

// Wiring menginisialisasi semua dependencies
func Wiring(repo *repository.Repository, infra Infra, config *utils.Config, logger *zap.Logger) *App {
	deps := usecase.BookingDeps{
		Gateway:     infra.Gateway,
		Idempotency: infra.Idempotency,
		Locker:      infra.Locker,
		Events:      infra.Events,
	}
	var stream adaptor.StatusStream
	if infra.Hub != nil {
		deps.Notifier = infra.Hub
		stream = infra.Hub
	}

	service := usecase.NewService(repo, deps, infra.Cache, config, logger)
	handler := adaptor.NewHandler(service, stream, logger)

	router := setupRouter(handler, repo, config, logger)

	return &App{
		Router: router,
	}
}

// newRateLimiters builds the guest-facing limiter and the one for gateway
// callbacks. Gateway deliveries arrive in bursts from a few addresses, so
// the webhook limiter never falls below the guest one.
func newRateLimiters(cfg utils.RateLimitConfig) (guest, webhook *middleware.RateLimiter) {
	rps, burst := cfg.WebhookRPS, cfg.WebhookBurst
	if rps < cfg.RPS {
		rps = cfg.RPS
	}
	if burst < cfg.Burst {
		burst = cfg.Burst
	}
	return middleware.NewRateLimiter(cfg.RPS, cfg.Burst), middleware.NewRateLimiter(rps, burst)
}

// setupRouter konfigurasi Chi router
func setupRouter(
	handler *adaptor.Handler,
	repo *repository.Repository,
	config *utils.Config,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS())

	limiter, webhookLimiter := newRateLimiters(config.RateLimit)

	// Apply routes
	wireListing(r, handler.Listing)
	wireBooking(r, handler.Booking, repo, limiter, logger)
	wireWebhook(r, handler.Webhook, webhookLimiter, logger)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
