package bookingclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"stay-booking/pkg/utils"
)

const (
	MaxSubmitAttempts = 3
	BaseRetryDelay    = time.Second
)

var (
	ErrStepIncomplete     = errors.New("current step is incomplete")
	ErrNoPreviousStep     = errors.New("no previous step")
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrNotRetryable       = errors.New("no retryable submission")
	ErrSubmissionFatal    = errors.New("submission failed permanently")
	ErrNoBooking          = errors.New("no booking submitted yet")
	ErrPaymentStillOpen   = errors.New("payment attempt is still open")
)

// BookingAPI is the part of *Client the wizard drives.
type BookingAPI interface {
	CreateBooking(ctx context.Context, idempotencyKey string, req BookingRequest) (*BookingPayment, error)
	GetStatus(ctx context.Context, bookingID string) (*BookingStatus, error)
	CheckAvailability(ctx context.Context, listingID, start, end string) (*Availability, error)
	RetryPayment(ctx context.Context, bookingID string) (*BookingPayment, error)
}

type Step int

const (
	StepDates Step = iota
	StepGuests
	StepDetails
	StepPayment
	StepConfirmation
)

func (s Step) String() string {
	switch s {
	case StepDates:
		return "dates"
	case StepGuests:
		return "guests"
	case StepDetails:
		return "details"
	case StepPayment:
		return "payment"
	case StepConfirmation:
		return "confirmation"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

type SubmissionState int

const (
	SubmissionIdle SubmissionState = iota
	SubmissionInFlight
	SubmissionRetryable
	SubmissionFatal
)

func (s SubmissionState) String() string {
	switch s {
	case SubmissionIdle:
		return "idle"
	case SubmissionInFlight:
		return "in-flight"
	case SubmissionRetryable:
		return "retryable-error"
	case SubmissionFatal:
		return "fatal-error"
	}
	return fmt.Sprintf("submission(%d)", int(s))
}

// Submission is the state of the booking request. Attempt counts requests
// sent under the current idempotency key; RetryAt is set only while
// State is SubmissionRetryable.
type Submission struct {
	State   SubmissionState
	Attempt int
	RetryAt time.Time
	Err     error
}

// Listing carries the rules the dates and guests steps are checked against.
type Listing struct {
	ID        string
	MinNights int
	MaxGuests int
}

type guestDetails struct {
	GuestName    string `validate:"required,min=2,max=150"`
	ContactEmail string `validate:"required,email"`
	ContactPhone string `validate:"required,e164"`
}

type WizardOption func(*Wizard)

func WithClock(now func() time.Time) WizardOption {
	return func(w *Wizard) { w.now = now }
}

func WithKeyGenerator(gen func() string) WizardOption {
	return func(w *Wizard) { w.newKey = gen }
}

// Wizard walks a guest through dates, guests, details, payment and
// confirmation. It is safe for concurrent use; a second Submit while one
// is in flight is rejected instead of queued.
type Wizard struct {
	mu     sync.Mutex
	api    BookingAPI
	now    func() time.Time
	newKey func() string

	listing  Listing
	step     Step
	checkIn  time.Time
	checkOut time.Time
	guests   int
	details  guestDetails
	blocked  []string

	submission Submission
	key        string
	payment    *BookingPayment
	status     *BookingStatus
}

func NewWizard(api BookingAPI, listing Listing, opts ...WizardOption) *Wizard {
	w := &Wizard{
		api:     api,
		now:     time.Now,
		newKey:  uuid.NewString,
		listing: listing,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) Submission() Submission {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submission
}

func (w *Wizard) BlockedDates() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.blocked...)
}

func (w *Wizard) Payment() *BookingPayment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.payment
}

func (w *Wizard) Status() *BookingStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Wizard) IdempotencyKey() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key
}

// SetDates takes YYYY-MM-DD dates. Changing the stay drops any blocked
// dates seen for the previous range.
func (w *Wizard) SetDates(checkIn, checkOut string) error {
	in, err := utils.ParseDate(checkIn)
	if err != nil {
		return fmt.Errorf("check-in: %w", err)
	}
	out, err := utils.ParseDate(checkOut)
	if err != nil {
		return fmt.Errorf("check-out: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.checkIn, w.checkOut = in, out
	w.blocked = nil
	w.resetSubmission()
	return nil
}

func (w *Wizard) SetGuests(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.guests = n
	w.resetSubmission()
}

func (w *Wizard) SetDetails(name, email, phone string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.details = guestDetails{GuestName: name, ContactEmail: email, ContactPhone: phone}
	w.resetSubmission()
}

// RefreshAvailability loads the blocked dates of the selected range.
func (w *Wizard) RefreshAvailability(ctx context.Context) (*Availability, error) {
	w.mu.Lock()
	if w.checkIn.IsZero() || w.checkOut.IsZero() {
		w.mu.Unlock()
		return nil, ErrStepIncomplete
	}
	start, end := utils.FormatDate(w.checkIn), utils.FormatDate(w.checkOut)
	w.mu.Unlock()

	avail, err := w.api.CheckAvailability(ctx, w.listing.ID, start, end)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if utils.FormatDate(w.checkIn) == start && utils.FormatDate(w.checkOut) == end {
		w.blocked = append([]string(nil), avail.BlockedDates...)
	}
	return avail, nil
}

// CanAdvance reports whether the current step's input is complete.
func (w *Wizard) CanAdvance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stepValid(w.step)
}

func (w *Wizard) stepValid(s Step) bool {
	switch s {
	case StepDates:
		if w.checkIn.IsZero() || !w.checkOut.After(w.checkIn) {
			return false
		}
		nights := utils.NightsBetween(w.checkIn, w.checkOut)
		return nights >= max(w.listing.MinNights, 1) && len(w.blocked) == 0
	case StepGuests:
		return w.guests >= 1 && (w.listing.MaxGuests == 0 || w.guests <= w.listing.MaxGuests)
	case StepDetails:
		return utils.ValidateStruct(w.details) == nil
	case StepPayment:
		return w.status != nil && w.status.Confirmed()
	}
	return false
}

// Next moves forward one step. Leaving details requires Submit, not Next.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step == StepDetails || w.step == StepConfirmation {
		return ErrStepIncomplete
	}
	if !w.stepValid(w.step) {
		return ErrStepIncomplete
	}
	w.step++
	return nil
}

// Back moves to the previous step. It is refused while a request is in
// flight and once the booking exists.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submission.State == SubmissionInFlight {
		return ErrSubmissionInFlight
	}
	if w.step == StepDates || w.step >= StepPayment {
		return ErrNoPreviousStep
	}
	w.step--
	return nil
}

// Submit sends the booking request once. On success the wizard moves to
// the payment step holding the hosted payment URL.
func (w *Wizard) Submit(ctx context.Context) (*BookingPayment, error) {
	w.mu.Lock()
	switch w.submission.State {
	case SubmissionInFlight:
		w.mu.Unlock()
		return nil, ErrSubmissionInFlight
	case SubmissionRetryable:
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: use Retry", ErrSubmissionInFlight)
	case SubmissionFatal:
		err := w.submission.Err
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrSubmissionFatal, err)
	}
	if w.step != StepDetails {
		w.mu.Unlock()
		return nil, ErrStepIncomplete
	}
	for s := StepDates; s <= StepDetails; s++ {
		if !w.stepValid(s) {
			w.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrStepIncomplete, s)
		}
	}
	if w.key == "" {
		w.key = w.newKey()
	}
	w.submission = Submission{State: SubmissionInFlight, Attempt: 1}
	return w.send(ctx)
}

// Retry resends the last submission under the same idempotency key once
// its backoff has elapsed.
func (w *Wizard) Retry(ctx context.Context) (*BookingPayment, error) {
	w.mu.Lock()
	if w.submission.State != SubmissionRetryable {
		w.mu.Unlock()
		return nil, ErrNotRetryable
	}
	if wait := w.submission.RetryAt.Sub(w.now()); wait > 0 {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: retry in %s", ErrNotRetryable, wait)
	}
	w.submission = Submission{State: SubmissionInFlight, Attempt: w.submission.Attempt + 1}
	return w.send(ctx)
}

// send is entered holding w.mu with the submission marked in flight.
func (w *Wizard) send(ctx context.Context) (*BookingPayment, error) {
	key := w.key
	req := BookingRequest{
		ListingID:    w.listing.ID,
		CheckInDate:  utils.FormatDate(w.checkIn),
		CheckOutDate: utils.FormatDate(w.checkOut),
		GuestCount:   w.guests,
		GuestName:    w.details.GuestName,
		ContactEmail: w.details.ContactEmail,
		ContactPhone: w.details.ContactPhone,
	}
	w.mu.Unlock()

	bp, err := w.api.CreateBooking(ctx, key, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	attempt := w.submission.Attempt

	if err == nil {
		w.payment = bp
		w.status = nil
		w.step = StepPayment
		w.submission = Submission{State: SubmissionIdle, Attempt: attempt}
		return bp, nil
	}

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.DatesUnavailable():
		w.step = StepDates
		w.blocked = append([]string(nil), apiErr.BlockedDates...)
		w.key = ""
		w.submission = Submission{State: SubmissionIdle}
	case IsRetryable(err) && attempt < MaxSubmitAttempts:
		w.submission = Submission{
			State:   SubmissionRetryable,
			Attempt: attempt,
			RetryAt: w.now().Add(BackoffDelay(attempt)),
			Err:     err,
		}
	default:
		w.submission = Submission{State: SubmissionFatal, Attempt: attempt, Err: err}
	}
	return nil, err
}

// PaymentDismissed is called when the hosted payment page closes without
// a callback. It polls the booking status exactly once.
func (w *Wizard) PaymentDismissed(ctx context.Context) (*BookingStatus, error) {
	w.mu.Lock()
	if w.payment == nil {
		w.mu.Unlock()
		return nil, ErrNoBooking
	}
	bookingID := w.payment.Booking.ID
	w.mu.Unlock()

	status, err := w.api.GetStatus(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	if w.step == StepPayment && status.Confirmed() {
		w.step = StepConfirmation
	}
	return status, nil
}

// RetryPayment replaces a declined or expired payment attempt with a new
// one. The booking and its held dates are kept; the wizard stays on the
// payment step with the new payment URL.
func (w *Wizard) RetryPayment(ctx context.Context) (*BookingPayment, error) {
	w.mu.Lock()
	if w.submission.State == SubmissionInFlight {
		w.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if w.payment == nil || w.step != StepPayment {
		w.mu.Unlock()
		return nil, ErrNoBooking
	}
	failed := w.status != nil && w.status.PaymentFailed()
	expired := !w.payment.Payment.ExpiresAt.IsZero() && !w.now().Before(w.payment.Payment.ExpiresAt)
	if !failed && !expired {
		w.mu.Unlock()
		return nil, ErrPaymentStillOpen
	}
	bookingID := w.payment.Booking.ID
	prev := w.submission
	w.submission = Submission{State: SubmissionInFlight, Attempt: prev.Attempt}
	w.mu.Unlock()

	bp, err := w.api.RetryPayment(ctx, bookingID)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submission = prev
	if err != nil {
		return nil, err
	}
	w.payment = bp
	w.status = nil
	return bp, nil
}

// BackoffDelay is the wait before retry number attempt+1.
func BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return BaseRetryDelay << (attempt - 1)
}

// resetSubmission starts a new submission after the guest edits input.
// A booking that already exists is kept.
func (w *Wizard) resetSubmission() {
	if w.submission.State == SubmissionInFlight || w.payment != nil {
		return
	}
	w.submission = Submission{}
	w.key = ""
}
