package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stay-booking/internal/data/entity"
	"stay-booking/internal/data/repository"
	"stay-booking/pkg/gateway"
	"stay-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// memStore backs the in-memory repositories used by the service tests.
type memStore struct {
	mu       sync.Mutex
	listings map[uuid.UUID]*entity.Listing
	bookings map[uuid.UUID]*entity.Booking
	payments []*entity.Payment
	calendar map[string]*entity.CalendarDate
	methods  []*entity.PaymentMethod
}

func newMemStore() *memStore {
	return &memStore{
		listings: make(map[uuid.UUID]*entity.Listing),
		bookings: make(map[uuid.UUID]*entity.Booking),
		calendar: make(map[string]*entity.CalendarDate),
	}
}

func (m *memStore) repository() *repository.Repository {
	repo := &repository.Repository{
		Listing:       &memListingRepo{m},
		Booking:       &memBookingRepo{m},
		Payment:       &memPaymentRepo{m},
		Calendar:      &memCalendarRepo{m},
		PaymentMethod: &memPaymentMethodRepo{m},
	}
	repo.Tx = &memTx{repo: repo}
	return repo
}

func (m *memStore) booking(id uuid.UUID) entity.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bookings[id]
}

func (m *memStore) paymentsOf(bookingID uuid.UUID) []entity.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Payment
	for _, p := range m.payments {
		if p.BookingID == bookingID {
			out = append(out, *p)
		}
	}
	return out
}

// unavailable lists the blocked nights of a listing as YYYY-MM-DD.
func (m *memStore) unavailable(listingID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, d := range m.calendar {
		if d.ListingID == listingID && !d.IsAvailable {
			out = append(out, d.Date.Format(utils.DateLayout))
		}
	}
	sort.Strings(out)
	return out
}

func calendarKey(listingID uuid.UUID, day time.Time) string {
	return listingID.String() + "|" + day.Format(utils.DateLayout)
}

type memTx struct {
	repo *repository.Repository
}

func (t *memTx) WithinTx(ctx context.Context, fn func(repo *repository.Repository) error) error {
	return fn(t.repo)
}

type memListingRepo struct{ m *memStore }

func (r *memListingRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Listing, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.listings[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

type memBookingRepo struct{ m *memStore }

func (r *memBookingRepo) Create(ctx context.Context, b *entity.Booking) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *b
	r.m.bookings[b.ID] = &cp
	return nil
}

func (r *memBookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.bookings[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *memBookingRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	return r.FindByID(ctx, id)
}

func (r *memBookingRepo) FindByGuestID(ctx context.Context, guestID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var all []*entity.Booking
	for _, b := range r.m.bookings {
		if b.GuestID == guestID {
			cp := *b
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *memBookingRepo) CountByGuestID(ctx context.Context, guestID uuid.UUID) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for _, b := range r.m.bookings {
		if b.GuestID == guestID {
			n++
		}
	}
	return n, nil
}

func (r *memBookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.BookingStatus, ps entity.PaymentStatus) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.bookings[id]
	if !ok || b.BookingStatus != from {
		return false, nil
	}
	b.BookingStatus = to
	b.PaymentStatus = ps
	return true, nil
}

func (r *memBookingRepo) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from entity.BookingStatus, ps entity.PaymentStatus) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.bookings[id]
	if !ok || b.BookingStatus != from {
		return false, nil
	}
	b.PaymentStatus = ps
	return true, nil
}

func (r *memBookingRepo) Cancel(ctx context.Context, booking *entity.Booking, from entity.BookingStatus) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.bookings[booking.ID]
	if !ok || b.BookingStatus != from {
		return false, nil
	}
	b.BookingStatus = entity.BookingStatusCancelled
	b.PaymentStatus = booking.PaymentStatus
	b.CancellationReason = booking.CancellationReason
	b.RefundAmountCents = booking.RefundAmountCents
	b.RefundReason = booking.RefundReason
	b.RefundReference = booking.RefundReference
	b.RefundedAt = booking.RefundedAt
	b.CancelledAt = booking.CancelledAt
	return true, nil
}

type memPaymentRepo struct{ m *memStore }

func (r *memPaymentRepo) Create(ctx context.Context, p *entity.Payment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.payments {
		if existing.GatewayOrderID == p.GatewayOrderID {
			return fmt.Errorf("duplicate gateway order %s", p.GatewayOrderID)
		}
	}
	cp := *p
	r.m.payments = append(r.m.payments, &cp)
	return nil
}

func (r *memPaymentRepo) find(match func(p *entity.Payment) bool) *entity.Payment {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := len(r.m.payments) - 1; i >= 0; i-- {
		if match(r.m.payments[i]) {
			cp := *r.m.payments[i]
			return &cp
		}
	}
	return nil
}

func (r *memPaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Payment, error) {
	return r.find(func(p *entity.Payment) bool { return p.ID == id }), nil
}

func (r *memPaymentRepo) FindLatestByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	return r.find(func(p *entity.Payment) bool { return p.BookingID == bookingID }), nil
}

func (r *memPaymentRepo) FindPaidByBookingID(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	return r.find(func(p *entity.Payment) bool {
		return p.BookingID == bookingID && p.Status == entity.PaymentStatusPaid
	}), nil
}

func (r *memPaymentRepo) FindByGatewayOrderIDForUpdate(ctx context.Context, orderID string) (*entity.Payment, error) {
	return r.find(func(p *entity.Payment) bool { return p.GatewayOrderID == orderID }), nil
}

func (r *memPaymentRepo) FindByMerchantOrderIDForUpdate(ctx context.Context, merchantOrderID string) (*entity.Payment, error) {
	return r.find(func(p *entity.Payment) bool { return p.MerchantOrderID == merchantOrderID }), nil
}

func (r *memPaymentRepo) ApplyOutcome(ctx context.Context, id uuid.UUID, outcome repository.PaymentOutcome) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.payments {
		if p.ID != id {
			continue
		}
		if p.Status == entity.PaymentStatusPaid {
			return false, nil
		}
		txID := outcome.TransactionID
		method := outcome.Method
		p.Status = outcome.Status
		p.GatewayTransactionID = &txID
		p.PaymentMethod = &method
		p.PaidAt = outcome.PaidAt
		return true, nil
	}
	return false, nil
}

type memCalendarRepo struct{ m *memStore }

func (r *memCalendarRepo) FindUnavailable(ctx context.Context, listingID uuid.UUID, start, end time.Time) ([]*entity.CalendarDate, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*entity.CalendarDate
	for _, night := range utils.NightsOf(start, end) {
		if d, ok := r.m.calendar[calendarKey(listingID, night)]; ok && !d.IsAvailable {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memCalendarRepo) LockRange(ctx context.Context, listingID, bookingID uuid.UUID, start, end time.Time) ([]time.Time, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var locked []time.Time
	for _, night := range utils.NightsOf(start, end) {
		key := calendarKey(listingID, night)
		d, ok := r.m.calendar[key]
		if ok && !d.IsAvailable && (d.BookingID == nil || *d.BookingID != bookingID) {
			continue
		}
		id := bookingID
		r.m.calendar[key] = &entity.CalendarDate{ListingID: listingID, Date: night, IsAvailable: false, BookingID: &id}
		locked = append(locked, night)
	}
	return locked, nil
}

func (r *memCalendarRepo) FreeByBooking(ctx context.Context, bookingID uuid.UUID) ([]time.Time, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var freed []time.Time
	for _, d := range r.m.calendar {
		if d.BookingID != nil && *d.BookingID == bookingID {
			d.IsAvailable = true
			d.BookingID = nil
			freed = append(freed, d.Date)
		}
	}
	sort.Slice(freed, func(i, j int) bool { return freed[i].Before(freed[j]) })
	return freed, nil
}

type memPaymentMethodRepo struct{ m *memStore }

func (r *memPaymentMethodRepo) FindAllActive(ctx context.Context, currency string) ([]*entity.PaymentMethod, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*entity.PaymentMethod
	for _, pm := range r.m.methods {
		if pm.IsActive && pm.Currency == currency {
			cp := *pm
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MockGateway records calls and answers with deterministic order ids.
type MockGateway struct {
	mu                         sync.Mutex
	CreatePaymentIntentionFunc func(ctx context.Context, req gateway.IntentionRequest) (*gateway.Intention, error)
	IssueRefundFunc            func(ctx context.Context, transactionID string, amountCents int64) (*gateway.Refund, error)
	MethodsFunc                func(ctx context.Context, amountCents int64, currency string) []gateway.PaymentMethod

	intentions []gateway.IntentionRequest
	refunds    []string
	nextOrder  int
	now        func() time.Time
}

const validSignature = "valid-signature"

func (g *MockGateway) Currency() string { return "EGP" }

func (g *MockGateway) CreatePaymentIntention(ctx context.Context, req gateway.IntentionRequest) (*gateway.Intention, error) {
	g.mu.Lock()
	g.intentions = append(g.intentions, req)
	g.nextOrder++
	order := 9000 + g.nextOrder
	g.mu.Unlock()

	if g.CreatePaymentIntentionFunc != nil {
		return g.CreatePaymentIntentionFunc(ctx, req)
	}
	return &gateway.Intention{
		OrderID:    fmt.Sprint(order),
		PaymentKey: fmt.Sprintf("key-%d", order),
		PaymentURL: fmt.Sprintf("https://pay.example.test/iframes/1?payment_token=key-%d", order),
		ExpiresAt:  g.now().Add(time.Hour),
	}, nil
}

func (g *MockGateway) VerifyWebhookSignature(cb *gateway.TransactionCallback, signature string) bool {
	return signature == validSignature
}

func (g *MockGateway) IssueRefund(ctx context.Context, transactionID string, amountCents int64) (*gateway.Refund, error) {
	g.mu.Lock()
	g.refunds = append(g.refunds, transactionID)
	g.mu.Unlock()

	if g.IssueRefundFunc != nil {
		return g.IssueRefundFunc(ctx, transactionID, amountCents)
	}
	return &gateway.Refund{ID: "rf-" + transactionID, AmountCents: amountCents}, nil
}

func (g *MockGateway) GetAvailablePaymentMethods(ctx context.Context, amountCents int64, currency string) []gateway.PaymentMethod {
	if g.MethodsFunc != nil {
		return g.MethodsFunc(ctx, amountCents, currency)
	}
	return gateway.FilterEligible(gateway.DefaultPaymentMethods(), amountCents, currency)
}

func (g *MockGateway) intentionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.intentions)
}

func (g *MockGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []SettlementEvent
}

func (p *recordingPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, v.(SettlementEvent))
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) last(eventType string) (SettlementEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == eventType {
			return p.events[i], true
		}
	}
	return SettlementEvent{}, false
}

type recordingNotifier struct {
	mu     sync.Mutex
	frames map[uuid.UUID][]any
}

func (n *recordingNotifier) Publish(bookingID uuid.UUID, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frames == nil {
		n.frames = make(map[uuid.UUID][]any)
	}
	n.frames[bookingID] = append(n.frames[bookingID], payload)
}

func (n *recordingNotifier) count(bookingID uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.frames[bookingID])
}

type memIdempotency struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (s *memIdempotency) Claim(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string][]byte)
	}
	val, ok := s.entries[key]
	if !ok {
		s.entries[key] = nil
		return nil, true, nil
	}
	return val, false, nil
}

func (s *memIdempotency) Complete(ctx context.Context, key string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = result
	return nil
}

func (s *memIdempotency) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, true, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]any
	gets    int
}

func (c *memCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	*(dest.(*[]gateway.PaymentMethod)) = v.([]gateway.PaymentMethod)
	return true, nil
}

func (c *memCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]any)
	}
	c.entries[key] = v
	return nil
}

// testEnv wires a booking service over in-memory collaborators with a
// fixed clock.
type testEnv struct {
	store    *memStore
	repo     *repository.Repository
	gw       *MockGateway
	events   *recordingPublisher
	notifier *recordingNotifier
	idem     *memIdempotency
	locker   *memLocker
	svc      BookingService
	listing  *entity.Listing
	now      time.Time
}

func newTestEnv() *testEnv {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newMemStore()
	listing := &entity.Listing{
		Base:            entity.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		HostID:          uuid.New(),
		Title:           "Nile view flat",
		NightlyRate:     800,
		CleaningFee:     200,
		SecurityDeposit: 500,
		Currency:        "EGP",
		MinNights:       1,
		MaxGuests:       4,
		IsActive:        true,
	}
	store.listings[listing.ID] = listing

	env := &testEnv{
		store:    store,
		repo:     store.repository(),
		gw:       &MockGateway{now: func() time.Time { return now }},
		events:   &recordingPublisher{},
		notifier: &recordingNotifier{},
		idem:     &memIdempotency{},
		locker:   &memLocker{},
		listing:  listing,
		now:      now,
	}
	env.svc = NewBookingService(env.repo, BookingDeps{
		Gateway:     env.gw,
		Idempotency: env.idem,
		Locker:      env.locker,
		Events:      env.events,
		Notifier:    env.notifier,
		Now:         func() time.Time { return env.now },
	}, utils.BookingConfig{
		PlatformFeeBps: 1200,
		RefundLockTTL:  30 * time.Second,
	}, zap.NewNop())
	return env
}
