package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// IsTerminal reports whether a webhook has already settled this status.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

// Payment is one gateway payment attempt for a booking. The latest row per
// booking is authoritative; earlier failed attempts are kept as history.
type Payment struct {
	BaseNoDelete
	BookingID            uuid.UUID       `db:"booking_id"`
	GatewayOrderID       string          `db:"gateway_order_id"`
	MerchantOrderID      string          `db:"merchant_order_id"`
	AmountCents          int64           `db:"amount_cents"`
	Currency             string          `db:"currency"`
	Status               PaymentStatus   `db:"status"`
	PaymentMethod        *string         `db:"payment_method"`
	GatewayTransactionID *string         `db:"gateway_transaction_id"`
	PaymentURL           string          `db:"payment_url"`
	ExpiresAt            time.Time       `db:"expires_at"`
	PaidAt               *time.Time      `db:"paid_at"`
	Metadata             json.RawMessage `db:"metadata"`
}

// HasTransaction reports whether txID is the transaction already recorded.
func (p *Payment) HasTransaction(txID string) bool {
	return p.GatewayTransactionID != nil && *p.GatewayTransactionID == txID
}
