package entity

type PaymentMethodCategory string

const (
	PaymentMethodCard         PaymentMethodCategory = "card"
	PaymentMethodWallet       PaymentMethodCategory = "wallet"
	PaymentMethodBankTransfer PaymentMethodCategory = "bank-transfer"
	PaymentMethodBNPL         PaymentMethodCategory = "buy-now-pay-later"
	PaymentMethodKiosk        PaymentMethodCategory = "kiosk"
)

// PaymentMethod is a catalog entry shown to the guest on the payment step.
// Min/Max bound the eligible amount in minor units; zero means unbounded.
type PaymentMethod struct {
	Base
	Code           string                `db:"code"`
	Name           string                `db:"name"`
	Category       PaymentMethodCategory `db:"category"`
	Currency       string                `db:"currency"`
	FeeBps         int64                 `db:"fee_bps"`
	FixedFeeCents  int64                 `db:"fixed_fee_cents"`
	MinAmountCents int64                 `db:"min_amount_cents"`
	MaxAmountCents int64                 `db:"max_amount_cents"`
	SortOrder      int                   `db:"sort_order"`
	IsActive       bool                  `db:"is_active"`
}
