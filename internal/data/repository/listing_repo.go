package repository

import (
	"context"
	"errors"
	"fmt"

	"stay-booking/internal/data/entity"
	"stay-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ListingRepository is read-only here; listings are managed elsewhere.
type ListingRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Listing, error)
}

type listingRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewListingRepository(db database.Querier, log *zap.Logger) ListingRepository {
	return &listingRepository{
		db:  db,
		log: log.With(zap.String("repository", "listing")),
	}
}

func (r *listingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Listing, error) {
	query := `
		SELECT id, host_id, title, nightly_rate, cleaning_fee, security_deposit, currency,
		       min_nights, max_guests, is_active, created_at, updated_at, deleted_at
		FROM listings
		WHERE id = $1 AND deleted_at IS NULL
	`

	var listing entity.Listing
	err := r.db.QueryRow(ctx, query, id).Scan(
		&listing.ID,
		&listing.HostID,
		&listing.Title,
		&listing.NightlyRate,
		&listing.CleaningFee,
		&listing.SecurityDeposit,
		&listing.Currency,
		&listing.MinNights,
		&listing.MaxGuests,
		&listing.IsActive,
		&listing.CreatedAt,
		&listing.UpdatedAt,
		&listing.DeletedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find listing by ID",
			zap.Error(err),
			zap.String("listing_id", id.String()),
		)
		return nil, fmt.Errorf("find listing by ID %s: %w", id.String(), err)
	}

	return &listing, nil
}
