package repository

import (
	"context"
	"fmt"

	"stay-booking/internal/data/entity"
	"stay-booking/pkg/database"

	"go.uber.org/zap"
)

type PaymentMethodRepository interface {
	FindAllActive(ctx context.Context, currency string) ([]*entity.PaymentMethod, error)
}

type paymentMethodRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewPaymentMethodRepository(db database.Querier, log *zap.Logger) PaymentMethodRepository {
	return &paymentMethodRepository{
		db:  db,
		log: log.With(zap.String("repository", "payment_method")),
	}
}

func (r *paymentMethodRepository) FindAllActive(ctx context.Context, currency string) ([]*entity.PaymentMethod, error) {
	query := `
		SELECT id, code, name, category, currency, fee_bps, fixed_fee_cents,
		       min_amount_cents, max_amount_cents, sort_order, is_active, created_at, updated_at
		FROM payment_methods
		WHERE is_active = true AND deleted_at IS NULL AND currency = $1
		ORDER BY sort_order, name
	`

	rows, err := r.db.Query(ctx, query, currency)
	if err != nil {
		r.log.Error("Failed to find all active payment methods", zap.Error(err), zap.String("currency", currency))
		return nil, fmt.Errorf("find all active payment methods: %w", err)
	}
	defer rows.Close()

	var paymentMethods []*entity.PaymentMethod
	for rows.Next() {
		var pm entity.PaymentMethod
		err := rows.Scan(
			&pm.ID,
			&pm.Code,
			&pm.Name,
			&pm.Category,
			&pm.Currency,
			&pm.FeeBps,
			&pm.FixedFeeCents,
			&pm.MinAmountCents,
			&pm.MaxAmountCents,
			&pm.SortOrder,
			&pm.IsActive,
			&pm.CreatedAt,
			&pm.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan payment method row", zap.Error(err))
			return nil, fmt.Errorf("scan payment method row: %w", err)
		}
		paymentMethods = append(paymentMethods, &pm)
	}

	return paymentMethods, rows.Err()
}
