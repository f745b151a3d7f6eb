package bookingclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func writeEnvelope(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func TestClient_CreateBooking(t *testing.T) {
	var gotKey, gotAuth, gotContentType string
	var gotBody BookingRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/bookings" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)

		writeEnvelope(w, http.StatusCreated, map[string]any{
			"status":  true,
			"message": "Booking created, complete payment to confirm",
			"data": map[string]any{
				"booking": map[string]any{
					"id":             "b-1",
					"booking_status": "pending",
					"payment_status": "pending",
					"price":          map[string]any{"total_amount_cents": 288800, "nights": 3},
				},
				"payment": map[string]any{
					"id":           "p-1",
					"amount_cents": 288800,
					"payment_url":  "https://pay.example/iframe?token=abc",
				},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "session-token")
	req := BookingRequest{ListingID: "l-1", CheckInDate: "2025-04-10", CheckOutDate: "2025-04-13", GuestCount: 2}

	bp, err := c.CreateBooking(context.Background(), "key-1", req)
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}

	if gotKey != "key-1" {
		t.Errorf("Idempotency-Key = %q", gotKey)
	}
	if gotAuth != "Bearer session-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotBody != req {
		t.Errorf("body = %+v, want %+v", gotBody, req)
	}
	if bp.Booking.ID != "b-1" || bp.Booking.Price.TotalAmountCents != 288800 {
		t.Errorf("booking = %+v", bp.Booking)
	}
	if bp.Payment.PaymentURL != "https://pay.example/iframe?token=abc" {
		t.Errorf("payment url = %q", bp.Payment.PaymentURL)
	}
}

func TestClient_DatesUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, map[string]any{
			"status":  false,
			"message": "Selected dates are no longer available",
			"code":    "DATES_UNAVAILABLE",
			"errors":  map[string]any{"blocked_dates": []string{"2025-04-11", "2025-04-12"}},
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "t").CreateBooking(context.Background(), "k", BookingRequest{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if !apiErr.DatesUnavailable() {
		t.Error("DatesUnavailable() = false")
	}
	if apiErr.Retryable() {
		t.Error("dates unavailable must not be retryable")
	}
	if len(apiErr.BlockedDates) != 2 || apiErr.BlockedDates[0] != "2025-04-11" {
		t.Errorf("blocked dates = %v", apiErr.BlockedDates)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
}

func TestAPIError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want bool
	}{
		{"Given 500 Then retryable", &APIError{StatusCode: 500}, true},
		{"Given 502 gateway unavailable Then retryable", &APIError{StatusCode: 502, Code: "GATEWAY_UNAVAILABLE"}, true},
		{"Given 503 Then retryable", &APIError{StatusCode: 503}, true},
		{"Given 408 Then retryable", &APIError{StatusCode: 408}, true},
		{"Given 429 Then retryable", &APIError{StatusCode: 429, Code: "RATE_LIMITED"}, true},
		{"Given request in progress Then retryable", &APIError{StatusCode: 409, Code: "REQUEST_IN_PROGRESS"}, true},
		{"Given validation failure Then not retryable", &APIError{StatusCode: 400, Code: "VALIDATION_FAILED"}, false},
		{"Given not found Then not retryable", &APIError{StatusCode: 404}, false},
		{"Given invalid state Then not retryable", &APIError{StatusCode: 409, Code: "INVALID_STATE"}, false},
		{"Given transport error Then retryable", &APIError{Err: errors.New("connection reset")}, true},
		{"Given cancelled request Then not retryable", &APIError{Err: context.Canceled}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}

	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestClient_ServerErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "t").GetStatus(context.Background(), "b-1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v", err)
	}
	if apiErr.Message != http.StatusText(http.StatusBadGateway) {
		t.Errorf("message = %q", apiErr.Message)
	}
	if !apiErr.Retryable() {
		t.Error("502 should be retryable")
	}
}

func TestClient_TimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "t", WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.GetStatus(context.Background(), "b-1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v", err)
	}
	if apiErr.StatusCode != 0 {
		t.Errorf("status = %d, want 0", apiErr.StatusCode)
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false", err)
	}
	if !apiErr.Retryable() {
		t.Error("timeout should be retryable")
	}
}

func TestClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(srv.URL, "t").GetStatus(ctx, "b-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if IsRetryable(err) {
		t.Error("cancelled request should not be retryable")
	}
}

func TestClient_GetStatusAndAvailability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/bookings/b-1/status":
			writeEnvelope(w, http.StatusOK, map[string]any{
				"status": true,
				"data": map[string]any{
					"booking_id":     "b-1",
					"booking_status": "confirmed",
					"payment_status": "paid",
				},
			})
		case "/api/listings/l-1/availability":
			q := r.URL.Query()
			if q.Get("start") != "2025-04-10" || q.Get("end") != "2025-04-13" {
				t.Errorf("query = %v", q)
			}
			writeEnvelope(w, http.StatusOK, map[string]any{
				"status": true,
				"data": map[string]any{
					"listing_id":    "l-1",
					"available":     false,
					"blocked_dates": []string{"2025-04-11"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "t")

	status, err := c.GetStatus(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.Confirmed() {
		t.Errorf("status = %+v, want confirmed", status)
	}

	avail, err := c.CheckAvailability(context.Background(), "l-1", "2025-04-10", "2025-04-13")
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if avail.Available || len(avail.BlockedDates) != 1 {
		t.Errorf("availability = %+v", avail)
	}
}

func TestClient_RetryPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/bookings/b-1/retry-payment" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") != "" {
			t.Error("retry-payment sent an idempotency key")
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"status": true,
			"data": map[string]any{
				"booking": map[string]any{"id": "b-1", "booking_status": "pending", "payment_status": "pending"},
				"payment": map[string]any{"id": "p-2", "payment_url": "https://pay.example/iframe?token=def"},
			},
		})
	}))
	defer srv.Close()

	bp, err := New(srv.URL, "t").RetryPayment(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("RetryPayment: %v", err)
	}
	if bp.Payment.ID != "p-2" || bp.Payment.PaymentURL != "https://pay.example/iframe?token=def" {
		t.Errorf("payment = %+v", bp.Payment)
	}
}

func TestClient_RetryPaymentInvalidState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, map[string]any{
			"status":  false,
			"message": "Booking is not awaiting payment",
			"code":    "INVALID_STATE",
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "t").RetryPayment(context.Background(), "b-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_STATE" {
		t.Fatalf("error = %v, want INVALID_STATE", err)
	}
	if apiErr.Retryable() {
		t.Error("invalid state must not be retryable")
	}
}
