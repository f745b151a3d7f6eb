package repository

import (
	"context"

	"stay-booking/pkg/database"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type Repository struct {
	User          UserRepository
	Session       SessionRepository
	Listing       ListingRepository
	Booking       BookingRepository
	Payment       PaymentRepository
	Calendar      CalendarRepository
	PaymentMethod PaymentMethodRepository

	Tx Transactor
}

// Transactor runs fn against repositories bound to a single transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(repo *Repository) error) error
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	repo := newRepositorySet(db, log)
	repo.Tx = &pgTransactor{db: db, log: log}
	return repo
}

func newRepositorySet(q database.Querier, log *zap.Logger) *Repository {
	return &Repository{
		User:          NewUserRepository(q, log),
		Session:       NewSessionRepository(q, log),
		Listing:       NewListingRepository(q, log),
		Booking:       NewBookingRepository(q, log),
		Payment:       NewPaymentRepository(q, log),
		Calendar:      NewCalendarRepository(q, log),
		PaymentMethod: NewPaymentMethodRepository(q, log),
	}
}

type pgTransactor struct {
	db  database.PgxIface
	log *zap.Logger
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn func(repo *Repository) error) error {
	return database.RunInTx(ctx, t.db, func(tx pgx.Tx) error {
		txRepo := newRepositorySet(tx, t.log)
		txRepo.Tx = joinTx{repo: txRepo}
		return fn(txRepo)
	})
}

// joinTx lets code that already holds a transaction-bound Repository call
// WithinTx again without opening a nested transaction.
type joinTx struct {
	repo *Repository
}

func (j joinTx) WithinTx(ctx context.Context, fn func(repo *Repository) error) error {
	return fn(j.repo)
}
