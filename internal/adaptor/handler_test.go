package adaptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stay-booking/internal/dto/request"
	"stay-booking/internal/dto/response"
	"stay-booking/internal/usecase"
	"stay-booking/pkg/gateway"
	"stay-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MockBookingService struct {
	CreateBookingPaymentFunc func(ctx context.Context, guestID, key string, req *request.CreateBookingRequest) (*response.BookingPaymentResponse, error)
	RetryPaymentFunc         func(ctx context.Context, guestID, bookingID string) (*response.BookingPaymentResponse, error)
	CancelBookingFunc        func(ctx context.Context, guestID, bookingID string, req *request.CancelBookingRequest) (*response.BookingResponse, error)
	GetBookingStatusFunc     func(ctx context.Context, guestID, bookingID string) (*response.BookingStatusResponse, error)
	GetUserBookingsFunc      func(ctx context.Context, guestID string, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error)
	ApplyWebhookFunc         func(ctx context.Context, payload []byte, signature string) (bool, error)
	CancelAndRefundFunc      func(ctx context.Context, bookingID string, req *request.RefundRequest) (*response.BookingResponse, error)
}

func (m *MockBookingService) CreateBookingPayment(ctx context.Context, guestID, key string, req *request.CreateBookingRequest) (*response.BookingPaymentResponse, error) {
	return m.CreateBookingPaymentFunc(ctx, guestID, key, req)
}

func (m *MockBookingService) RetryPayment(ctx context.Context, guestID, bookingID string) (*response.BookingPaymentResponse, error) {
	return m.RetryPaymentFunc(ctx, guestID, bookingID)
}

func (m *MockBookingService) CancelBooking(ctx context.Context, guestID, bookingID string, req *request.CancelBookingRequest) (*response.BookingResponse, error) {
	return m.CancelBookingFunc(ctx, guestID, bookingID, req)
}

func (m *MockBookingService) GetBookingStatus(ctx context.Context, guestID, bookingID string) (*response.BookingStatusResponse, error) {
	return m.GetBookingStatusFunc(ctx, guestID, bookingID)
}

func (m *MockBookingService) GetUserBookings(ctx context.Context, guestID string, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	return m.GetUserBookingsFunc(ctx, guestID, req)
}

func (m *MockBookingService) ApplyWebhook(ctx context.Context, payload []byte, signature string) (bool, error) {
	return m.ApplyWebhookFunc(ctx, payload, signature)
}

func (m *MockBookingService) CancelAndRefund(ctx context.Context, bookingID string, req *request.RefundRequest) (*response.BookingResponse, error) {
	return m.CancelAndRefundFunc(ctx, bookingID, req)
}

const validBookingBody = `{
	"listing_id": "7b0c1d2e-3f40-4a5b-8c6d-7e8f9a0b1c2d",
	"check_in_date": "2025-03-10",
	"check_out_date": "2025-03-13",
	"guest_count": 2,
	"guest_name": "Sara Ali",
	"contact_email": "sara@example.com",
	"contact_phone": "+201001234567"
}`

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) utils.Response {
	t.Helper()
	var resp utils.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func withUser(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(utils.WithUserID(r.Context(), userID))
}

func TestCreateBooking_MapsServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"Given dates taken Then 409 DATES_UNAVAILABLE", &usecase.DatesUnavailableError{
			BlockedDates: []time.Time{time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)},
		}, http.StatusConflict, utils.CodeDatesUnavailable},
		{"Given validation error Then 400", fmt.Errorf("%w: check-out must be after check-in", usecase.ErrValidation), http.StatusBadRequest, utils.CodeValidationFailed},
		{"Given unknown listing Then 404", fmt.Errorf("listing x %w", usecase.ErrNotFound), http.StatusNotFound, utils.CodeNotFound},
		{"Given key in flight Then 409 REQUEST_IN_PROGRESS", usecase.ErrRequestInProgress, http.StatusConflict, utils.CodeRequestInProgress},
		{"Given gateway outage Then 502", &gateway.Error{Op: "create order", StatusCode: 503, Kind: gateway.ErrOrder}, http.StatusBadGateway, utils.CodeGatewayUnavailable},
		{"Given unexpected error Then 500", errors.New("db down"), http.StatusInternalServerError, utils.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockBookingService{
				CreateBookingPaymentFunc: func(context.Context, string, string, *request.CreateBookingRequest) (*response.BookingPaymentResponse, error) {
					return nil, tt.err
				},
			}
			h := NewBookingHandler(svc, nil, nil, zap.NewNop())

			req := withUser(httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(validBookingBody)), uuid.New())
			rec := httptest.NewRecorder()
			h.CreateBooking(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decodeEnvelope(t, rec).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestCreateBooking_BlockedDatesInBody(t *testing.T) {
	svc := &MockBookingService{
		CreateBookingPaymentFunc: func(context.Context, string, string, *request.CreateBookingRequest) (*response.BookingPaymentResponse, error) {
			return nil, &usecase.DatesUnavailableError{BlockedDates: []time.Time{time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)}}
		},
	}
	h := NewBookingHandler(svc, nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.CreateBooking(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(validBookingBody)), uuid.New()))

	var body struct {
		Errors struct {
			BlockedDates []string `json:"blocked_dates"`
		} `json:"errors"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Errors.BlockedDates) != 1 || body.Errors.BlockedDates[0] != "2025-03-11" {
		t.Errorf("blocked_dates = %v", body.Errors.BlockedDates)
	}
}

func TestCreateBooking_PassesIdempotencyKeyAndGuest(t *testing.T) {
	guest := uuid.New()
	var gotKey, gotGuest string
	svc := &MockBookingService{
		CreateBookingPaymentFunc: func(_ context.Context, guestID, key string, req *request.CreateBookingRequest) (*response.BookingPaymentResponse, error) {
			gotGuest, gotKey = guestID, key
			return &response.BookingPaymentResponse{Payment: response.PaymentResponse{PaymentURL: "https://pay.example.test"}}, nil
		},
	}
	h := NewBookingHandler(svc, nil, nil, zap.NewNop())

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(validBookingBody)), guest)
	req.Header.Set("Idempotency-Key", "abc-123")
	rec := httptest.NewRecorder()
	h.CreateBooking(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if gotKey != "abc-123" || gotGuest != guest.String() {
		t.Errorf("service got key=%q guest=%q", gotKey, gotGuest)
	}
}

func TestCreateBooking_RejectsBeforeService(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		user       bool
		wantStatus int
	}{
		{"Given no session Then 401", validBookingBody, false, http.StatusUnauthorized},
		{"Given broken JSON Then 400", "{", true, http.StatusBadRequest},
		{"Given missing fields Then 400", `{"guest_count": 2}`, true, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockBookingService{
				CreateBookingPaymentFunc: func(context.Context, string, string, *request.CreateBookingRequest) (*response.BookingPaymentResponse, error) {
					t.Fatal("service must not be called")
					return nil, nil
				},
			}
			h := NewBookingHandler(svc, nil, nil, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(tt.body))
			if tt.user {
				req = withUser(req, uuid.New())
			}
			rec := httptest.NewRecorder()
			h.CreateBooking(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestGetBookingStatus_RoutesBookingID(t *testing.T) {
	bookingID := uuid.NewString()
	svc := &MockBookingService{
		GetBookingStatusFunc: func(_ context.Context, _, id string) (*response.BookingStatusResponse, error) {
			if id != bookingID {
				return nil, fmt.Errorf("booking %s %w", id, usecase.ErrNotFound)
			}
			return &response.BookingStatusResponse{BookingID: id, BookingStatus: "confirmed", PaymentStatus: "paid"}, nil
		},
	}
	h := NewBookingHandler(svc, nil, nil, zap.NewNop())

	r := chi.NewRouter()
	r.Get("/api/bookings/{id}/status", h.GetBookingStatus)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/bookings/"+bookingID+"/status", nil), uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"booking_status":"confirmed"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRefundBooking_InvalidStateIs409(t *testing.T) {
	svc := &MockBookingService{
		CancelAndRefundFunc: func(context.Context, string, *request.RefundRequest) (*response.BookingResponse, error) {
			return nil, fmt.Errorf("%w: refund requires a paid booking", usecase.ErrInvalidState)
		},
	}
	h := NewBookingHandler(svc, nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.RefundBooking(rec, httptest.NewRequest(http.MethodPost, "/api/admin/bookings/x/refund", strings.NewReader(`{"amount_cents": 1000, "reason": "ops"}`)))

	if rec.Code != http.StatusConflict || decodeEnvelope(t, rec).Code != utils.CodeInvalidState {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestPaymentCallback(t *testing.T) {
	tests := []struct {
		name        string
		applied     bool
		err         error
		wantStatus  int
		wantApplied bool
	}{
		{"Given applied delivery Then 200 applied", true, nil, http.StatusOK, true},
		{"Given rejected delivery Then 200 not applied", false, nil, http.StatusOK, false},
		{"Given store failure Then 500 for redelivery", false, errors.New("db down"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSig, gotBody string
			svc := &MockBookingService{
				ApplyWebhookFunc: func(_ context.Context, payload []byte, signature string) (bool, error) {
					gotSig, gotBody = signature, string(payload)
					return tt.applied, tt.err
				},
			}
			h := NewWebhookHandler(svc, zap.NewNop())

			rec := httptest.NewRecorder()
			h.PaymentCallback(rec, httptest.NewRequest(http.MethodPost, "/api/webhooks/payment?hmac=abc", strings.NewReader(`{"obj":{"id":1}}`)))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotSig != "abc" || gotBody != `{"obj":{"id":1}}` {
				t.Errorf("service got sig=%q body=%q", gotSig, gotBody)
			}
			if tt.err != nil {
				return
			}
			var ack response.WebhookAckResponse
			json.Unmarshal(rec.Body.Bytes(), &ack)
			if !ack.Received || ack.Applied != tt.wantApplied {
				t.Errorf("ack = %+v", ack)
			}
		})
	}
}
