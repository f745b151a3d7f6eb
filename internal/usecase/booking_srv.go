package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stay-booking/internal/data/entity"
	"stay-booking/internal/data/repository"
	"stay-booking/internal/dto/request"
	"stay-booking/internal/dto/response"
	"stay-booking/pkg/gateway"
	"stay-booking/pkg/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type BookingService interface {
	// Guest endpoints
	CreateBookingPayment(ctx context.Context, guestID, idempotencyKey string, req *request.CreateBookingRequest) (*response.BookingPaymentResponse, error)
	RetryPayment(ctx context.Context, guestID, bookingID string) (*response.BookingPaymentResponse, error)
	CancelBooking(ctx context.Context, guestID, bookingID string, req *request.CancelBookingRequest) (*response.BookingResponse, error)
	GetBookingStatus(ctx context.Context, guestID, bookingID string) (*response.BookingStatusResponse, error)
	GetUserBookings(ctx context.Context, guestID string, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error)

	// Gateway callback
	ApplyWebhook(ctx context.Context, payload []byte, signature string) (bool, error)

	// Admin endpoints
	CancelAndRefund(ctx context.Context, bookingID string, req *request.RefundRequest) (*response.BookingResponse, error)
}

// BookingDeps are the collaborators outside the database. Nil Idempotency
// or Locker disables that guard; nil Events or Notifier drops the signal.
type BookingDeps struct {
	Gateway     PaymentGateway
	Idempotency IdempotencyStore
	Locker      Locker
	Events      EventPublisher
	Notifier    StatusNotifier
	Now         func() time.Time
}

type bookingService struct {
	repo   *repository.Repository
	deps   BookingDeps
	cfg    utils.BookingConfig
	log    *zap.Logger
	tracer trace.Tracer
}

func NewBookingService(repo *repository.Repository, deps BookingDeps, cfg utils.BookingConfig, log *zap.Logger) BookingService {
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.RefundLockTTL <= 0 {
		cfg.RefundLockTTL = 30 * time.Second
	}

	return &bookingService{
		repo:   repo,
		deps:   deps,
		cfg:    cfg,
		log:    log.With(zap.String("service", "booking")),
		tracer: otel.Tracer("stay-booking/booking"),
	}
}

// idempotentRecord is what an Idempotency-Key resolves to. BookingID alone
// means the booking was created but its payment step did not finish.
type idempotentRecord struct {
	BookingID string                           `json:"booking_id"`
	Result    *response.BookingPaymentResponse `json:"result,omitempty"`
}

func (s *bookingService) CreateBookingPayment(ctx context.Context, guestID, idempotencyKey string, req *request.CreateBookingRequest) (*response.BookingPaymentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "booking.CreateBookingPayment")
	defer span.End()

	// Validate request
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Create booking validation failed", zap.Any("errors", errs))
		return nil, validationErr("%s", utils.FormatValidationErrors(errs))
	}

	guestUUID, err := uuid.Parse(guestID)
	if err != nil {
		return nil, validationErr("invalid guest ID %s", guestID)
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		return nil, validationErr("invalid listing ID %s", req.ListingID)
	}
	checkIn, err := utils.ParseDate(req.CheckInDate)
	if err != nil {
		return nil, validationErr("%v", err)
	}
	checkOut, err := utils.ParseDate(req.CheckOutDate)
	if err != nil {
		return nil, validationErr("%v", err)
	}
	if !checkOut.After(checkIn) {
		return nil, validationErr("check-out must be after check-in")
	}
	if checkIn.Before(utils.TruncateDay(s.deps.Now())) {
		return nil, validationErr("check-in date %s is in the past", req.CheckInDate)
	}

	listing, err := s.repo.Listing.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil || !listing.IsActive {
		return nil, notFoundErr("listing", listingID)
	}

	nights := utils.NightsBetween(checkIn, checkOut)
	if listing.MinNights > 0 && nights < listing.MinNights {
		return nil, validationErr("listing requires at least %d nights", listing.MinNights)
	}
	if listing.MaxGuests > 0 && req.GuestCount > listing.MaxGuests {
		return nil, validationErr("listing accepts at most %d guests", listing.MaxGuests)
	}

	span.SetAttributes(
		attribute.String("listing.id", listingID.String()),
		attribute.Int("booking.nights", nights),
	)

	// Idempotency
	if idempotencyKey != "" && s.deps.Idempotency != nil {
		replay, claimed, err := s.deps.Idempotency.Claim(ctx, s.idempotencyScope(guestUUID, idempotencyKey))
		if err != nil {
			return nil, err
		}
		if !claimed {
			return s.resumeIdempotent(ctx, guestUUID, idempotencyKey, replay)
		}
	}

	blocked, err := NewCalendarService(s.repo, s.log).CheckAvailability(ctx, listingID, checkIn, checkOut)
	if err != nil {
		s.releaseKey(ctx, guestUUID, idempotencyKey)
		return nil, err
	}
	if len(blocked) > 0 {
		s.releaseKey(ctx, guestUUID, idempotencyKey)
		s.log.Info("Requested nights unavailable",
			zap.String("listing_id", listingID.String()),
			zap.Strings("blocked", utils.FormatDates(blocked)),
		)
		return nil, &DatesUnavailableError{ListingID: listingID, BlockedDates: blocked}
	}

	quote, err := QuoteStay(listing, checkIn, checkOut, s.cfg.PlatformFeeBps)
	if err != nil {
		s.releaseKey(ctx, guestUUID, idempotencyKey)
		return nil, err
	}

	now := s.deps.Now()
	booking := &entity.Booking{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		ListingID:            listingID,
		GuestID:              guestUUID,
		CheckInDate:          checkIn,
		CheckOutDate:         checkOut,
		GuestCount:           req.GuestCount,
		GuestName:            req.GuestName,
		ContactEmail:         req.ContactEmail,
		ContactPhone:         req.ContactPhone,
		Currency:             s.currencyFor(listing),
		NightlyRateCents:     quote.NightlyRateCents,
		NumberOfNights:       quote.Nights,
		NightsCostCents:      quote.NightsCostCents,
		CleaningFeeCents:     quote.CleaningFeeCents,
		SecurityDepositCents: quote.SecurityDepositCents,
		PlatformFeeCents:     quote.PlatformFeeCents,
		TotalAmountCents:     quote.TotalAmountCents,
		BookingStatus:        entity.BookingStatusPending,
		PaymentStatus:        entity.PaymentStatusPending,
	}

	if err := s.repo.Booking.Create(ctx, booking); err != nil {
		s.releaseKey(ctx, guestUUID, idempotencyKey)
		s.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("listing_id", listingID.String()),
		)
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.log.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("listing_id", listingID.String()),
		zap.Int("nights", booking.NumberOfNights),
		zap.Int64("total_amount_cents", booking.TotalAmountCents),
	)
	s.emit(ctx, EventBookingCreated, booking, nil, nil)

	// The key stays in flight until the gateway answers, so a same-key
	// request arriving meanwhile cannot open a second intention.
	result, err := s.openPayment(ctx, booking, listing.Title)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// A retry with the same key resumes this booking.
		s.storeIdempotent(ctx, guestUUID, idempotencyKey, idempotentRecord{BookingID: booking.ID.String()})
		return nil, err
	}

	s.storeIdempotent(ctx, guestUUID, idempotencyKey, idempotentRecord{BookingID: booking.ID.String(), Result: result})
	return result, nil
}

// resumeIdempotent answers a repeated Idempotency-Key: a stored result is
// replayed, a half-finished booking gets its payment step retried.
func (s *bookingService) resumeIdempotent(ctx context.Context, guestID uuid.UUID, key string, replay []byte) (*response.BookingPaymentResponse, error) {
	if replay == nil {
		return nil, ErrRequestInProgress
	}

	var record idempotentRecord
	if err := json.Unmarshal(replay, &record); err != nil {
		return nil, fmt.Errorf("decode idempotent result: %w", err)
	}
	if record.Result != nil {
		s.log.Info("Replaying booking result", zap.String("booking_id", record.BookingID))
		return record.Result, nil
	}

	result, err := s.RetryPayment(ctx, guestID.String(), record.BookingID)
	if err != nil {
		return nil, err
	}
	s.storeIdempotent(ctx, guestID, key, idempotentRecord{BookingID: record.BookingID, Result: result})
	return result, nil
}

func (s *bookingService) idempotencyScope(guestID uuid.UUID, key string) string {
	return "booking:" + guestID.String() + ":" + key
}

func (s *bookingService) storeIdempotent(ctx context.Context, guestID uuid.UUID, key string, record idempotentRecord) {
	if key == "" || s.deps.Idempotency == nil {
		return
	}
	raw, err := json.Marshal(record)
	if err != nil {
		s.log.Error("Failed to encode idempotent result", zap.Error(err))
		return
	}
	if err := s.deps.Idempotency.Complete(ctx, s.idempotencyScope(guestID, key), raw); err != nil {
		s.log.Warn("Failed to store idempotent result", zap.Error(err), zap.String("booking_id", record.BookingID))
	}
}

func (s *bookingService) releaseKey(ctx context.Context, guestID uuid.UUID, key string) {
	if key == "" || s.deps.Idempotency == nil {
		return
	}
	if err := s.deps.Idempotency.Release(ctx, s.idempotencyScope(guestID, key)); err != nil {
		s.log.Warn("Failed to release idempotency key", zap.Error(err))
	}
}

func (s *bookingService) currencyFor(listing *entity.Listing) string {
	if listing.Currency != "" {
		return listing.Currency
	}
	return s.deps.Gateway.Currency()
}

// openPayment asks the gateway for a hosted payment page and records the
// attempt as a new pending Payment. On gateway failure the booking stays
// pending/pending and can be retried.
func (s *bookingService) openPayment(ctx context.Context, booking *entity.Booking, title string) (*response.BookingPaymentResponse, error) {
	now := s.deps.Now()
	paymentID := uuid.New()
	merchantOrderID := utils.GenerateMerchantOrderID(paymentID, now)

	first, last := splitName(booking.GuestName)
	intention, err := s.deps.Gateway.CreatePaymentIntention(ctx, gateway.IntentionRequest{
		AmountCents:     booking.TotalAmountCents,
		Currency:        booking.Currency,
		MerchantOrderID: merchantOrderID,
		Items:           lineItems(booking, title),
		Billing: gateway.BillingData{
			FirstName: first,
			LastName:  last,
			Email:     booking.ContactEmail,
			Phone:     booking.ContactPhone,
		},
	})
	if err != nil {
		s.log.Error("Failed to create payment intention",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("merchant_order_id", merchantOrderID),
		)
		return nil, err
	}

	payment := &entity.Payment{
		BaseNoDelete: entity.BaseNoDelete{
			ID:        paymentID,
			CreatedAt: now,
			UpdatedAt: now,
		},
		BookingID:       booking.ID,
		GatewayOrderID:  intention.OrderID,
		MerchantOrderID: merchantOrderID,
		AmountCents:     booking.TotalAmountCents,
		Currency:        booking.Currency,
		Status:          entity.PaymentStatusPending,
		PaymentURL:      intention.PaymentURL,
		ExpiresAt:       intention.ExpiresAt,
	}

	if err := s.repo.Payment.Create(ctx, payment); err != nil {
		s.log.Error("Failed to record payment",
			zap.Error(err),
			zap.String("booking_id", booking.ID.String()),
			zap.String("gateway_order_id", intention.OrderID),
		)
		return nil, fmt.Errorf("record payment: %w", err)
	}

	s.log.Info("Payment opened",
		zap.String("booking_id", booking.ID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("gateway_order_id", payment.GatewayOrderID),
		zap.Int64("amount_cents", payment.AmountCents),
	)

	return &response.BookingPaymentResponse{
		Booking: response.BookingToResponse(booking),
		Payment: response.PaymentToResponse(payment),
	}, nil
}

// RetryPayment opens a fresh payment attempt for a pending booking whose
// last attempt failed, expired or never reached the gateway. A still-open
// attempt is returned as is.
func (s *bookingService) RetryPayment(ctx context.Context, guestID, bookingID string) (*response.BookingPaymentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "booking.RetryPayment")
	defer span.End()

	booking, err := s.ownedBooking(ctx, guestID, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.IsPending() {
		return nil, invalidStateErr("booking %s is %s", booking.ID, booking.BookingStatus)
	}

	if s.deps.Locker != nil {
		release, ok, err := s.deps.Locker.Acquire(ctx, "payment:"+booking.ID.String(), s.cfg.RefundLockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRequestInProgress
		}
		defer release(context.WithoutCancel(ctx))
	}

	latest, err := s.repo.Payment.FindLatestByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		switch {
		case latest.Status == entity.PaymentStatusPaid:
			return nil, invalidStateErr("booking %s is already paid", booking.ID)
		case latest.Status == entity.PaymentStatusPending && s.deps.Now().Before(latest.ExpiresAt):
			return &response.BookingPaymentResponse{
				Booking: response.BookingToResponse(booking),
				Payment: response.PaymentToResponse(latest),
			}, nil
		}
	}

	listing, err := s.repo.Listing.FindByID(ctx, booking.ListingID)
	if err != nil {
		return nil, err
	}
	title := "Stay"
	if listing != nil {
		title = listing.Title
	}

	result, err := s.openPayment(ctx, booking, title)
	if err != nil {
		return nil, err
	}

	// The booking follows its newest attempt.
	if booking.PaymentStatus == entity.PaymentStatusFailed {
		ok, err := s.repo.Booking.UpdatePaymentStatus(ctx, booking.ID, entity.BookingStatusPending, entity.PaymentStatusPending)
		if err != nil {
			return nil, err
		}
		if ok {
			booking.PaymentStatus = entity.PaymentStatusPending
			result.Booking = response.BookingToResponse(booking)
		}
	}
	return result, nil
}

// webhookResult is what one delivery did, collected inside the transaction
// and acted on after commit.
type webhookResult struct {
	applied   bool
	booking   *entity.Booking
	payment   *entity.Payment
	events    []string
	conflicts []time.Time
	locked    []time.Time
}

// ApplyWebhook verifies and applies a gateway transaction callback. It
// returns true when the payment reflects the callback's outcome, whether
// applied now or by an earlier delivery. Invalid signatures, unknown orders
// and non-terminal callbacks return false with no state change.
func (s *bookingService) ApplyWebhook(ctx context.Context, payload []byte, signature string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "booking.ApplyWebhook")
	defer span.End()

	cb, err := gateway.ParseCallback(payload)
	if err != nil {
		s.log.Warn("Rejected malformed webhook", zap.Error(err))
		return false, nil
	}

	txn := cb.Obj
	log := s.log.With(
		zap.String("transaction_id", txn.TransactionID()),
		zap.String("gateway_order_id", txn.GatewayOrderID()),
	)

	if !s.deps.Gateway.VerifyWebhookSignature(cb, signature) {
		log.Warn("Rejected webhook with invalid signature")
		span.SetAttributes(attribute.Bool("webhook.verified", false))
		return false, nil
	}
	span.SetAttributes(
		attribute.Bool("webhook.verified", true),
		attribute.Bool("webhook.success", txn.Success),
	)

	if txn.Pending || txn.IsRefunded || txn.IsVoided {
		log.Info("Ignoring non-settling transaction callback",
			zap.Bool("pending", txn.Pending),
			zap.Bool("refunded", txn.IsRefunded),
			zap.Bool("voided", txn.IsVoided),
		)
		return false, nil
	}

	var result webhookResult
	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		result = webhookResult{}
		return s.applyTransaction(ctx, tx, txn, log, &result)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Failed to apply webhook", zap.Error(err))
		return false, err
	}

	for _, event := range result.events {
		dates := result.locked
		if event == EventCalendarConflict {
			dates = result.conflicts
		}
		s.emit(ctx, event, result.booking, result.payment, dates)
	}

	return result.applied, nil
}

func (s *bookingService) applyTransaction(ctx context.Context, tx *repository.Repository, txn gateway.Transaction, log *zap.Logger, result *webhookResult) error {
	payment, err := tx.Payment.FindByGatewayOrderIDForUpdate(ctx, txn.GatewayOrderID())
	if err != nil {
		return err
	}
	if payment == nil && txn.Order.MerchantOrderID != "" {
		payment, err = tx.Payment.FindByMerchantOrderIDForUpdate(ctx, txn.Order.MerchantOrderID)
		if err != nil {
			return err
		}
	}
	if payment == nil {
		log.Warn("Webhook for unknown order")
		return nil
	}

	txID := txn.TransactionID()
	switch {
	case payment.Status.IsTerminal() && payment.HasTransaction(txID):
		log.Info("Duplicate webhook delivery", zap.String("payment_status", string(payment.Status)))
		result.applied = true
		return nil
	case payment.Status == entity.PaymentStatusPaid:
		if txn.Success {
			log.Error("Second successful transaction for a paid payment",
				zap.String("payment_id", payment.ID.String()),
			)
		} else {
			log.Info("Ignoring failed transaction for a paid payment")
		}
		return nil
	case payment.Status == entity.PaymentStatusFailed && !txn.Success:
		log.Info("Payment already failed")
		result.applied = true
		return nil
	}

	if txn.Success && txn.AmountCents != payment.AmountCents {
		log.Error("Webhook amount differs from payment amount",
			zap.Int64("webhook_amount_cents", txn.AmountCents),
			zap.Int64("payment_amount_cents", payment.AmountCents),
		)
		return nil
	}

	now := s.deps.Now()
	outcome := repository.PaymentOutcome{
		Status:        entity.PaymentStatusFailed,
		TransactionID: txID,
		Method:        txn.MethodLabel(),
		Metadata:      transactionMetadata(txn),
	}
	if txn.Success {
		outcome.Status = entity.PaymentStatusPaid
		outcome.PaidAt = &now
	}

	ok, err := tx.Payment.ApplyOutcome(ctx, payment.ID, outcome)
	if err != nil {
		return err
	}
	if !ok {
		result.applied = true
		return nil
	}
	payment.Status = outcome.Status
	payment.GatewayTransactionID = &txID
	payment.PaidAt = outcome.PaidAt

	booking, err := tx.Booking.FindByIDForUpdate(ctx, payment.BookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return fmt.Errorf("payment %s references missing booking %s", payment.ID, payment.BookingID)
	}

	result.applied = true
	result.booking = booking
	result.payment = payment

	if !txn.Success {
		latest, err := tx.Payment.FindLatestByBookingID(ctx, booking.ID)
		if err != nil {
			return err
		}
		// A superseded attempt failing says nothing about the open one.
		if booking.IsPending() && latest != nil && latest.ID == payment.ID {
			if _, err := tx.Booking.UpdatePaymentStatus(ctx, booking.ID, entity.BookingStatusPending, entity.PaymentStatusFailed); err != nil {
				return err
			}
			booking.PaymentStatus = entity.PaymentStatusFailed
		}
		log.Info("Payment failed",
			zap.String("booking_id", booking.ID.String()),
			zap.String("reason", txn.Data.Message),
		)
		result.events = append(result.events, EventPaymentFailed)
		return nil
	}

	if !booking.IsPending() {
		// Money arrived for a booking that is no longer waiting for it.
		if _, err := tx.Booking.UpdatePaymentStatus(ctx, booking.ID, booking.BookingStatus, entity.PaymentStatusPaid); err != nil {
			return err
		}
		booking.PaymentStatus = entity.PaymentStatusPaid
		log.Error("Payment captured for a booking that is not pending",
			zap.String("booking_id", booking.ID.String()),
			zap.String("booking_status", string(booking.BookingStatus)),
		)
		result.events = append(result.events, EventPaymentPaid, EventPaymentOrphaned)
		return nil
	}

	if _, err := tx.Booking.UpdateStatus(ctx, booking.ID, entity.BookingStatusPending, entity.BookingStatusConfirmed, entity.PaymentStatusPaid); err != nil {
		return err
	}
	booking.BookingStatus = entity.BookingStatusConfirmed
	booking.PaymentStatus = entity.PaymentStatusPaid

	conflicts, err := NewCalendarService(tx, s.log).LockRange(ctx, booking.ListingID, booking.ID, booking.CheckInDate, booking.CheckOutDate)
	if err != nil {
		return err
	}
	result.conflicts = conflicts
	result.locked = subtractDates(utils.NightsOf(booking.CheckInDate, booking.CheckOutDate), conflicts)

	log.Info("Booking confirmed",
		zap.String("booking_id", booking.ID.String()),
		zap.String("payment_id", payment.ID.String()),
	)
	result.events = append(result.events, EventPaymentPaid, EventBookingConfirmed)
	if len(conflicts) > 0 {
		result.events = append(result.events, EventCalendarConflict)
	}
	return nil
}

func transactionMetadata(txn gateway.Transaction) json.RawMessage {
	raw, err := json.Marshal(map[string]any{
		"transaction_id":    txn.ID,
		"pan":               txn.SourceData.Pan,
		"message":           txn.Data.Message,
		"txn_response_code": txn.Data.TxnResponseCode,
		"is_3d_secure":      txn.Is3DSecure,
	})
	if err != nil {
		return nil
	}
	return raw
}

func subtractDates(all, minus []time.Time) []time.Time {
	skip := make(map[string]struct{}, len(minus))
	for _, d := range minus {
		skip[d.Format(utils.DateLayout)] = struct{}{}
	}
	out := make([]time.Time, 0, len(all))
	for _, d := range all {
		if _, ok := skip[d.Format(utils.DateLayout)]; !ok {
			out = append(out, d)
		}
	}
	return out
}

// CancelBooking cancels a booking that has not been paid. Paid bookings go
// through CancelAndRefund.
func (s *bookingService) CancelBooking(ctx context.Context, guestID, bookingID string, req *request.CancelBookingRequest) (*response.BookingResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, validationErr("%s", utils.FormatValidationErrors(errs))
	}

	guestUUID, id, err := parseGuestAndBooking(guestID, bookingID)
	if err != nil {
		return nil, err
	}

	var cancelled *entity.Booking
	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		booking, err := tx.Booking.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if booking == nil {
			return notFoundErr("booking", id)
		}
		if booking.GuestID != guestUUID {
			return ErrForbidden
		}
		if !booking.IsPending() {
			return invalidStateErr("only pending bookings can be cancelled, booking is %s", booking.BookingStatus)
		}

		now := s.deps.Now()
		reason := req.Reason
		if reason == "" {
			reason = "cancelled by guest"
		}
		booking.CancellationReason = &reason
		booking.CancelledAt = &now

		ok, err := tx.Booking.Cancel(ctx, booking, entity.BookingStatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return invalidStateErr("booking %s changed concurrently", id)
		}
		booking.BookingStatus = entity.BookingStatusCancelled
		booking.UpdatedAt = now
		cancelled = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Booking cancelled", zap.String("booking_id", id.String()))
	s.emit(ctx, EventBookingCancelled, cancelled, nil, nil)

	resp := response.BookingToResponse(cancelled)
	return &resp, nil
}

// CancelAndRefund refunds a paid booking through the gateway, then cancels
// it and frees its nights. Nothing changes locally when the gateway
// rejects the refund.
func (s *bookingService) CancelAndRefund(ctx context.Context, bookingID string, req *request.RefundRequest) (*response.BookingResponse, error) {
	ctx, span := s.tracer.Start(ctx, "booking.CancelAndRefund")
	defer span.End()

	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, validationErr("%s", utils.FormatValidationErrors(errs))
	}

	id, err := uuid.Parse(bookingID)
	if err != nil {
		return nil, validationErr("invalid booking ID %s", bookingID)
	}

	if s.deps.Locker != nil {
		release, ok, err := s.deps.Locker.Acquire(ctx, "refund:"+id.String(), s.cfg.RefundLockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrRequestInProgress
		}
		defer release(context.WithoutCancel(ctx))
	}

	booking, err := s.repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, notFoundErr("booking", id)
	}
	if booking.RefundReference != nil {
		return nil, invalidStateErr("booking %s is already refunded", id)
	}
	if booking.PaymentStatus != entity.PaymentStatusPaid {
		return nil, invalidStateErr("refund requires a paid booking, payment is %s", booking.PaymentStatus)
	}

	payment, err := s.repo.Payment.FindPaidByBookingID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.GatewayTransactionID == nil {
		return nil, invalidStateErr("booking %s has no captured payment", id)
	}
	if req.AmountCents > payment.AmountCents {
		return nil, validationErr("refund of %d exceeds paid amount %d", req.AmountCents, payment.AmountCents)
	}

	span.SetAttributes(
		attribute.String("booking.id", id.String()),
		attribute.Int64("refund.amount_cents", req.AmountCents),
	)

	refund, err := s.deps.Gateway.IssueRefund(ctx, *payment.GatewayTransactionID, req.AmountCents)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("Gateway refund failed",
			zap.Error(err),
			zap.String("booking_id", id.String()),
			zap.Int64("amount_cents", req.AmountCents),
		)
		return nil, err
	}

	var freed []time.Time
	var refunded *entity.Booking
	err = s.repo.Tx.WithinTx(ctx, func(tx *repository.Repository) error {
		current, err := tx.Booking.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return notFoundErr("booking", id)
		}

		now := s.deps.Now()
		amount := req.AmountCents
		reason := req.Reason
		reference := refund.ID
		from := current.BookingStatus

		current.RefundAmountCents = &amount
		current.RefundReason = &reason
		current.RefundReference = &reference
		current.RefundedAt = &now
		current.CancelledAt = &now
		if current.CancellationReason == nil {
			current.CancellationReason = &reason
		}

		ok, err := tx.Booking.Cancel(ctx, current, from)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("booking %s changed while refund %s was issued", id, reference)
		}
		current.BookingStatus = entity.BookingStatusCancelled
		current.UpdatedAt = now

		freed, err = NewCalendarService(tx, s.log).FreeRange(ctx, id)
		if err != nil {
			return err
		}
		refunded = current
		return nil
	})
	if err != nil {
		// The money already moved; surface loudly so an operator reconciles.
		s.log.Error("Refund issued but booking not updated",
			zap.Error(err),
			zap.String("booking_id", id.String()),
			zap.String("refund_id", refund.ID),
		)
		return nil, err
	}

	s.log.Info("Booking refunded",
		zap.String("booking_id", id.String()),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount_cents", req.AmountCents),
		zap.Int("freed_nights", len(freed)),
	)
	s.emit(ctx, EventBookingRefunded, refunded, payment, freed)
	s.emit(ctx, EventBookingCancelled, refunded, payment, freed)

	resp := response.BookingToResponse(refunded)
	return &resp, nil
}

func (s *bookingService) GetBookingStatus(ctx context.Context, guestID, bookingID string) (*response.BookingStatusResponse, error) {
	booking, err := s.ownedBooking(ctx, guestID, bookingID)
	if err != nil {
		return nil, err
	}

	payment, err := s.repo.Payment.FindLatestByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	return s.statusOf(booking, payment), nil
}

func (s *bookingService) statusOf(booking *entity.Booking, payment *entity.Payment) *response.BookingStatusResponse {
	resp := &response.BookingStatusResponse{
		BookingID:     booking.ID.String(),
		BookingStatus: booking.BookingStatus,
		PaymentStatus: booking.PaymentStatus,
		UpdatedAt:     booking.UpdatedAt,
	}
	if booking.IsPending() && payment != nil && payment.Status == entity.PaymentStatusPending && s.deps.Now().Before(payment.ExpiresAt) {
		resp.PaymentURL = payment.PaymentURL
	}
	return resp
}

func (s *bookingService) GetUserBookings(ctx context.Context, guestID string, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	guestUUID, err := uuid.Parse(guestID)
	if err != nil {
		return nil, validationErr("invalid guest ID %s", guestID)
	}

	limit := req.Limit()
	bookings, err := s.repo.Booking.FindByGuestID(ctx, guestUUID, limit, req.Offset())
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Booking.CountByGuestID(ctx, guestUUID)
	if err != nil {
		return nil, err
	}

	data := make([]response.BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		data = append(data, response.BookingToResponse(b))
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	return response.NewPaginatedResponse(data, page, limit, total), nil
}

func (s *bookingService) ownedBooking(ctx context.Context, guestID, bookingID string) (*entity.Booking, error) {
	guestUUID, id, err := parseGuestAndBooking(guestID, bookingID)
	if err != nil {
		return nil, err
	}

	booking, err := s.repo.Booking.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, notFoundErr("booking", id)
	}
	if booking.GuestID != guestUUID {
		return nil, ErrForbidden
	}
	return booking, nil
}

func parseGuestAndBooking(guestID, bookingID string) (uuid.UUID, uuid.UUID, error) {
	guestUUID, err := uuid.Parse(guestID)
	if err != nil {
		return uuid.Nil, uuid.Nil, validationErr("invalid guest ID %s", guestID)
	}
	id, err := uuid.Parse(bookingID)
	if err != nil {
		return uuid.Nil, uuid.Nil, validationErr("invalid booking ID %s", bookingID)
	}
	return guestUUID, id, nil
}

// IsGatewayFailure reports whether err came from the payment provider.
func IsGatewayFailure(err error) bool {
	return gateway.IsGatewayError(err) || errors.Is(err, gateway.ErrAuth)
}
