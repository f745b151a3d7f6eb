package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stay-booking/internal/data/entity"
	"stay-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PaymentOutcome is what a gateway transaction callback settles on a payment.
type PaymentOutcome struct {
	Status        entity.PaymentStatus
	TransactionID string
	Method        string
	PaidAt        *time.Time
	Metadata      json.RawMessage
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error)
	FindLatestByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error)
	// FindPaidByBookingID returns the captured attempt of a booking, which
	// need not be its latest.
	FindPaidByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error)

	// Row-locking lookups used while applying a webhook.
	FindByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*entity.Payment, error)
	FindByMerchantOrderIDForUpdate(ctx context.Context, merchantOrderID string) (*entity.Payment, error)

	// ApplyOutcome records a terminal outcome. It never moves a paid
	// payment; false means nothing was written.
	ApplyOutcome(ctx context.Context, id uuid.UUID, outcome PaymentOutcome) (bool, error)
}

const paymentColumns = `
	id, booking_id, gateway_order_id, merchant_order_id, amount_cents, currency, status,
	payment_method, gateway_transaction_id, payment_url, expires_at, paid_at,
	COALESCE(metadata, '{}'::jsonb), created_at, updated_at`

type paymentRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewPaymentRepository(db database.Querier, log *zap.Logger) PaymentRepository {
	return &paymentRepository{
		db:  db,
		log: log.With(zap.String("repository", "payment")),
	}
}

func scanPayment(row rowScanner) (*entity.Payment, error) {
	var p entity.Payment
	var metadata []byte
	err := row.Scan(
		&p.ID,
		&p.BookingID,
		&p.GatewayOrderID,
		&p.MerchantOrderID,
		&p.AmountCents,
		&p.Currency,
		&p.Status,
		&p.PaymentMethod,
		&p.GatewayTransactionID,
		&p.PaymentURL,
		&p.ExpiresAt,
		&p.PaidAt,
		&metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Metadata = json.RawMessage(metadata)
	return &p, nil
}

func (r *paymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (id, booking_id, gateway_order_id, merchant_order_id, amount_cents, currency,
		                      status, payment_url, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(ctx, query,
		payment.ID,
		payment.BookingID,
		payment.GatewayOrderID,
		payment.MerchantOrderID,
		payment.AmountCents,
		payment.Currency,
		payment.Status,
		payment.PaymentURL,
		payment.ExpiresAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create payment",
			zap.Error(err),
			zap.String("booking_id", payment.BookingID.String()),
			zap.String("gateway_order_id", payment.GatewayOrderID),
		)
		return fmt.Errorf("create payment for booking %s: %w", payment.BookingID.String(), err)
	}

	return nil
}

func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.findOne(ctx, query, "id", id.String(), id)
}

func (r *paymentRepository) FindLatestByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.findOne(ctx, query, "booking_id", bookingID.String(), bookingID)
}

func (r *paymentRepository) FindPaidByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE booking_id = $1 AND status = 'paid'
		ORDER BY paid_at DESC
		LIMIT 1
	`
	return r.findOne(ctx, query, "booking_id", bookingID.String(), bookingID)
}

func (r *paymentRepository) FindByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_order_id = $1 FOR UPDATE`
	return r.findOne(ctx, query, "gateway_order_id", gatewayOrderID, gatewayOrderID)
}

func (r *paymentRepository) FindByMerchantOrderIDForUpdate(ctx context.Context, merchantOrderID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE merchant_order_id = $1 FOR UPDATE`
	return r.findOne(ctx, query, "merchant_order_id", merchantOrderID, merchantOrderID)
}

func (r *paymentRepository) findOne(ctx context.Context, query, key, value string, arg any) (*entity.Payment, error) {
	payment, err := scanPayment(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find payment",
			zap.Error(err),
			zap.String(key, value),
		)
		return nil, fmt.Errorf("find payment by %s %s: %w", key, value, err)
	}

	return payment, nil
}

func (r *paymentRepository) ApplyOutcome(ctx context.Context, id uuid.UUID, outcome PaymentOutcome) (bool, error) {
	query := `
		UPDATE payments
		SET status = $2,
		    gateway_transaction_id = $3,
		    payment_method = NULLIF($4, ''),
		    paid_at = $5,
		    metadata = COALESCE(metadata, '{}'::jsonb) || COALESCE($6::jsonb, '{}'::jsonb),
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'paid'
	`

	var metadata any
	if len(outcome.Metadata) > 0 {
		metadata = string(outcome.Metadata)
	}

	result, err := r.db.Exec(ctx, query,
		id,
		outcome.Status,
		outcome.TransactionID,
		outcome.Method,
		outcome.PaidAt,
		metadata,
	)
	if err != nil {
		r.log.Error("Failed to apply payment outcome",
			zap.Error(err),
			zap.String("payment_id", id.String()),
			zap.String("status", string(outcome.Status)),
			zap.String("transaction_id", outcome.TransactionID),
		)
		return false, fmt.Errorf("apply outcome %s to payment %s: %w", outcome.Status, id.String(), err)
	}

	return result.RowsAffected() > 0, nil
}
