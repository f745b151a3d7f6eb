package gateway

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type PaymentMethod struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	FeeBps         int64    `json:"fee_bps"`
	FixedFeeCents  int64    `json:"fixed_fee_cents"`
	MinAmountCents int64    `json:"min_amount_cents"`
	MaxAmountCents int64    `json:"max_amount_cents"`
	Currencies     []string `json:"currencies"`
}

// Supports reports whether the method accepts amountCents in currency.
func (m PaymentMethod) Supports(amountCents int64, currency string) bool {
	if m.MinAmountCents > 0 && amountCents < m.MinAmountCents {
		return false
	}
	if m.MaxAmountCents > 0 && amountCents > m.MaxAmountCents {
		return false
	}
	if len(m.Currencies) == 0 {
		return true
	}
	for _, cur := range m.Currencies {
		if cur == currency {
			return true
		}
	}
	return false
}

// Catalog categories.
const (
	CategoryCard         = "card"
	CategoryWallet       = "wallet"
	CategoryBankTransfer = "bank-transfer"
	CategoryBNPL         = "buy-now-pay-later"
	CategoryKiosk        = "kiosk"
)

// DefaultPaymentMethods is served whenever the provider catalog cannot be
// fetched.
func DefaultPaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		{Code: "card", Name: "Credit / Debit Card", Category: CategoryCard, FeeBps: 275, FixedFeeCents: 300, Currencies: []string{"EGP", "USD"}},
		{Code: "wallet", Name: "Mobile Wallet", Category: CategoryWallet, FeeBps: 200, MinAmountCents: 1000, MaxAmountCents: 3000000, Currencies: []string{"EGP"}},
		{Code: "bank_transfer", Name: "Bank Transfer", Category: CategoryBankTransfer, FixedFeeCents: 500, MinAmountCents: 10000, Currencies: []string{"EGP", "USD"}},
		{Code: "installments", Name: "Buy Now, Pay Later", Category: CategoryBNPL, FeeBps: 450, MinAmountCents: 50000, MaxAmountCents: 10000000, Currencies: []string{"EGP"}},
		{Code: "kiosk", Name: "Cash at Kiosk", Category: CategoryKiosk, FeeBps: 250, MinAmountCents: 5000, MaxAmountCents: 1500000, Currencies: []string{"EGP"}},
	}
}

// GetAvailablePaymentMethods never fails: on any provider error it degrades
// to DefaultPaymentMethods. The result is filtered to methods accepting
// amountCents in currency.
func (c *Client) GetAvailablePaymentMethods(ctx context.Context, amountCents int64, currency string) []PaymentMethod {
	ctx, span := c.tracer.Start(ctx, "gateway.GetAvailablePaymentMethods")
	defer span.End()

	if currency == "" {
		currency = c.cfg.Currency
	}

	methods, err := c.fetchPaymentMethods(ctx)
	if err != nil || len(methods) == 0 {
		c.log.Warn("Payment method catalog unavailable, using defaults", zap.Error(err))
		methods = DefaultPaymentMethods()
	}

	return FilterEligible(methods, amountCents, currency)
}

func (c *Client) fetchPaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	var out struct {
		Methods []PaymentMethod `json:"methods"`
	}
	err := c.withToken(ctx, func(token string) error {
		req := map[string]string{"auth_token": token}
		return c.doJSON(ctx, http.MethodPost, pathMethods, req, &out, "list payment methods", ErrOrder)
	})
	if err != nil {
		return nil, err
	}
	return out.Methods, nil
}

// FilterEligible keeps methods that accept amountCents in currency.
func FilterEligible(methods []PaymentMethod, amountCents int64, currency string) []PaymentMethod {
	eligible := make([]PaymentMethod, 0, len(methods))
	for _, m := range methods {
		if m.Supports(amountCents, currency) {
			eligible = append(eligible, m)
		}
	}
	return eligible
}
