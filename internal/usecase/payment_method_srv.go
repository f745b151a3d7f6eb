package usecase

import (
	"context"

	"stay-booking/internal/data/entity"
	"stay-booking/internal/data/repository"
	"stay-booking/internal/dto/response"
	"stay-booking/pkg/gateway"
	"stay-booking/pkg/utils"

	"go.uber.org/zap"
)

type PaymentMethodService interface {
	GetPaymentMethods(ctx context.Context, amountCents int64, currency string) ([]response.PaymentMethodResponse, error)
}

type paymentMethodService struct {
	repo    repository.PaymentMethodRepository
	gateway PaymentGateway
	cache   Cache
	cfg     utils.BookingConfig
	log     *zap.Logger
}

// NewPaymentMethodService serves the catalog from the database, cached in
// cache when it is non-nil, and falls back to the gateway catalog when the
// database has nothing.
func NewPaymentMethodService(repo repository.PaymentMethodRepository, gw PaymentGateway, cache Cache, cfg utils.BookingConfig, log *zap.Logger) PaymentMethodService {
	return &paymentMethodService{
		repo:    repo,
		gateway: gw,
		cache:   cache,
		cfg:     cfg,
		log:     log.With(zap.String("service", "payment_method")),
	}
}

func (s *paymentMethodService) GetPaymentMethods(ctx context.Context, amountCents int64, currency string) ([]response.PaymentMethodResponse, error) {
	if amountCents <= 0 {
		return nil, validationErr("amount_cents must be greater than 0")
	}
	if currency == "" {
		currency = s.gateway.Currency()
	}

	methods := s.catalog(ctx, currency)
	if len(methods) == 0 {
		methods = s.gateway.GetAvailablePaymentMethods(ctx, amountCents, currency)
	} else {
		methods = gateway.FilterEligible(methods, amountCents, currency)
	}

	out := make([]response.PaymentMethodResponse, 0, len(methods))
	for _, m := range methods {
		fee := (amountCents*m.FeeBps+5000)/10000 + m.FixedFeeCents
		out = append(out, response.PaymentMethodResponse{
			Code:              m.Code,
			Name:              m.Name,
			Category:          m.Category,
			FeeCents:          fee,
			TotalWithFeeCents: amountCents + fee,
		})
	}
	return out, nil
}

func (s *paymentMethodService) catalog(ctx context.Context, currency string) []gateway.PaymentMethod {
	key := "payment-methods:" + currency

	if s.cache != nil {
		var cached []gateway.PaymentMethod
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("Payment method cache read failed", zap.Error(err))
		}
		if found && len(cached) > 0 {
			return cached
		}
	}

	rows, err := s.repo.FindAllActive(ctx, currency)
	if err != nil {
		s.log.Warn("Payment method catalog unavailable", zap.Error(err))
		return nil
	}

	methods := make([]gateway.PaymentMethod, 0, len(rows))
	for _, row := range rows {
		methods = append(methods, toGatewayMethod(row))
	}

	if s.cache != nil && len(methods) > 0 {
		if err := s.cache.Set(ctx, key, methods, s.cfg.MethodCacheTTL); err != nil {
			s.log.Warn("Payment method cache write failed", zap.Error(err))
		}
	}
	return methods
}

func toGatewayMethod(m *entity.PaymentMethod) gateway.PaymentMethod {
	return gateway.PaymentMethod{
		Code:           m.Code,
		Name:           m.Name,
		Category:       string(m.Category),
		FeeBps:         m.FeeBps,
		FixedFeeCents:  m.FixedFeeCents,
		MinAmountCents: m.MinAmountCents,
		MaxAmountCents: m.MaxAmountCents,
		Currencies:     []string{m.Currency},
	}
}
