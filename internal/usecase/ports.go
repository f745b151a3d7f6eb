package usecase

import (
	"context"
	"time"

	"stay-booking/pkg/gateway"

	"github.com/google/uuid"
)

// PaymentGateway is the slice of the gateway client the services drive.
type PaymentGateway interface {
	Currency() string
	CreatePaymentIntention(ctx context.Context, req gateway.IntentionRequest) (*gateway.Intention, error)
	VerifyWebhookSignature(cb *gateway.TransactionCallback, signature string) bool
	IssueRefund(ctx context.Context, transactionID string, amountCents int64) (*gateway.Refund, error)
	GetAvailablePaymentMethods(ctx context.Context, amountCents int64, currency string) []gateway.PaymentMethod
}

type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (replay []byte, claimed bool, err error)
	Complete(ctx context.Context, key string, result []byte) error
	Release(ctx context.Context, key string) error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error)
}

type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

// EventPublisher ships settlement events to the broker.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// StatusNotifier pushes booking status frames to live subscribers.
type StatusNotifier interface {
	Publish(bookingID uuid.UUID, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Publish(uuid.UUID, any) {}

type nopPublisher struct{}

func (nopPublisher) PublishJSON(context.Context, string, any) error { return nil }
