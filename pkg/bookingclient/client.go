// Package bookingclient is a typed client for the booking API plus the
// checkout wizard state machine that drives it.
package bookingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type BookingRequest struct {
	ListingID    string `json:"listing_id"`
	CheckInDate  string `json:"check_in_date"`
	CheckOutDate string `json:"check_out_date"`
	GuestCount   int    `json:"guest_count"`
	GuestName    string `json:"guest_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

type Price struct {
	Currency             string `json:"currency"`
	Nights               int    `json:"nights"`
	NightsCostCents      int64  `json:"nights_cost_cents"`
	CleaningFeeCents     int64  `json:"cleaning_fee_cents"`
	PlatformFeeCents     int64  `json:"platform_fee_cents"`
	TotalAmountCents     int64  `json:"total_amount_cents"`
	SecurityDepositCents int64  `json:"security_deposit_cents"`
}

type Booking struct {
	ID            string `json:"id"`
	ListingID     string `json:"listing_id"`
	CheckInDate   string `json:"check_in_date"`
	CheckOutDate  string `json:"check_out_date"`
	Price         Price  `json:"price"`
	BookingStatus string `json:"booking_status"`
	PaymentStatus string `json:"payment_status"`
}

type Payment struct {
	ID          string    `json:"id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	PaymentURL  string    `json:"payment_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type BookingPayment struct {
	Booking Booking `json:"booking"`
	Payment Payment `json:"payment"`
}

type BookingStatus struct {
	BookingID     string    `json:"booking_id"`
	BookingStatus string    `json:"booking_status"`
	PaymentStatus string    `json:"payment_status"`
	PaymentURL    string    `json:"payment_url"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Confirmed reports whether the booking is settled and paid.
func (s *BookingStatus) Confirmed() bool {
	return s.BookingStatus == "confirmed" && s.PaymentStatus == "paid"
}

// PaymentFailed reports whether the latest payment attempt was declined.
func (s *BookingStatus) PaymentFailed() bool {
	return s.BookingStatus == "pending" && s.PaymentStatus == "failed"
}

type Availability struct {
	ListingID    string   `json:"listing_id"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Available    bool     `json:"available"`
	BlockedDates []string `json:"blocked_dates"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client calls the booking API with a guest session token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateBooking submits the checkout. Resending with the same
// idempotencyKey never creates a second booking.
func (c *Client) CreateBooking(ctx context.Context, idempotencyKey string, req BookingRequest) (*BookingPayment, error) {
	var out BookingPayment
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	if err := c.do(ctx, http.MethodPost, "/api/bookings", headers, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetStatus(ctx context.Context, bookingID string) (*BookingStatus, error) {
	var out BookingStatus
	if err := c.do(ctx, http.MethodGet, "/api/bookings/"+url.PathEscape(bookingID)+"/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetryPayment opens a fresh payment intention for a pending booking whose
// previous attempt failed or expired.
func (c *Client) RetryPayment(ctx context.Context, bookingID string) (*BookingPayment, error) {
	var out BookingPayment
	path := "/api/bookings/" + url.PathEscape(bookingID) + "/retry-payment"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CheckAvailability(ctx context.Context, listingID, start, end string) (*Availability, error) {
	q := url.Values{"start": {start}, "end": {end}}
	path := "/api/listings/" + url.PathEscape(listingID) + "/availability?" + q.Encode()

	var out Availability
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if len(env.Errors) > 0 {
			var detail struct {
				BlockedDates []string `json:"blocked_dates"`
			}
			if json.Unmarshal(env.Errors, &detail) == nil {
				apiErr.BlockedDates = detail.BlockedDates
			}
		}
		return apiErr
	}

	if decodeErr != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "malformed response", Err: decodeErr}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
