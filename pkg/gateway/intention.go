package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LineItem is one row of the order shown on the hosted payment page.
type LineItem struct {
	Name        string
	Description string
	AmountCents int64
	Quantity    int
}

// BillingData is the payer identity required by the payment-key step.
type BillingData struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

type IntentionRequest struct {
	AmountCents     int64
	Currency        string
	MerchantOrderID string
	Items           []LineItem
	Billing         BillingData
}

// Intention is the result of a successful order + payment-key exchange.
type Intention struct {
	OrderID    string
	PaymentKey string
	PaymentURL string
	ExpiresAt  time.Time
}

type orderItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type orderRequest struct {
	AuthToken       string      `json:"auth_token"`
	DeliveryNeeded  bool        `json:"delivery_needed"`
	AmountCents     int64       `json:"amount_cents"`
	Currency        string      `json:"currency"`
	MerchantOrderID string      `json:"merchant_order_id"`
	Items           []orderItem `json:"items"`
}

type billingPayload struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phone_number"`
	Apartment      string `json:"apartment"`
	Floor          string `json:"floor"`
	Street         string `json:"street"`
	Building       string `json:"building"`
	ShippingMethod string `json:"shipping_method"`
	PostalCode     string `json:"postal_code"`
	City           string `json:"city"`
	Country        string `json:"country"`
	State          string `json:"state"`
}

type paymentKeyRequest struct {
	AuthToken         string         `json:"auth_token"`
	AmountCents       int64          `json:"amount_cents"`
	Expiration        int64          `json:"expiration"`
	OrderID           int64          `json:"order_id"`
	BillingData       billingPayload `json:"billing_data"`
	Currency          string         `json:"currency"`
	IntegrationID     int64          `json:"integration_id"`
	LockOrderWhenPaid bool           `json:"lock_order_when_paid"`
}

// CreatePaymentIntention registers an order with the provider, then asks for
// a payment key bound to it. The two steps fail with ErrOrder and
// ErrPaymentKey respectively.
func (c *Client) CreatePaymentIntention(ctx context.Context, req IntentionRequest) (*Intention, error) {
	ctx, span := c.tracer.Start(ctx, "gateway.CreatePaymentIntention")
	defer span.End()
	span.SetAttributes(amountAttr(req.AmountCents), attribute.String("payment.merchant_order_id", req.MerchantOrderID))

	if err := validateIntention(req); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}

	var orderID int64
	err := c.withToken(ctx, func(token string) error {
		items := make([]orderItem, len(req.Items))
		for i, it := range req.Items {
			items[i] = orderItem{Name: it.Name, AmountCents: it.AmountCents, Description: it.Description, Quantity: it.Quantity}
		}

		var out struct {
			ID int64 `json:"id"`
		}
		if err := c.doJSON(ctx, http.MethodPost, pathOrders, orderRequest{
			AuthToken:       token,
			DeliveryNeeded:  false,
			AmountCents:     req.AmountCents,
			Currency:        currency,
			MerchantOrderID: req.MerchantOrderID,
			Items:           items,
		}, &out, "create order", ErrOrder); err != nil {
			return err
		}
		if out.ID == 0 {
			return &Error{Op: "create order", Kind: ErrOrder, Err: fmt.Errorf("missing order id in response")}
		}
		orderID = out.ID
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	expiry := c.cfg.PaymentKeyExpiry
	var paymentKey string
	err = c.withToken(ctx, func(token string) error {
		var out struct {
			Token string `json:"token"`
		}
		if err := c.doJSON(ctx, http.MethodPost, pathPaymentKeys, paymentKeyRequest{
			AuthToken:         token,
			AmountCents:       req.AmountCents,
			Expiration:        int64(expiry / time.Second),
			OrderID:           orderID,
			BillingData:       toBillingPayload(req.Billing),
			Currency:          currency,
			IntegrationID:     c.cfg.IntegrationID,
			LockOrderWhenPaid: true,
		}, &out, "create payment key", ErrPaymentKey); err != nil {
			return err
		}
		if out.Token == "" {
			return &Error{Op: "create payment key", Kind: ErrPaymentKey, Err: fmt.Errorf("missing token in response")}
		}
		paymentKey = out.Token
		return nil
	})
	if err != nil {
		c.log.Error("Payment key request failed after order was created",
			zap.Error(err),
			zap.Int64("order_id", orderID),
			zap.String("merchant_order_id", req.MerchantOrderID),
		)
		recordSpanError(span, err)
		return nil, err
	}

	intention := &Intention{
		OrderID:    strconv.FormatInt(orderID, 10),
		PaymentKey: paymentKey,
		PaymentURL: c.cfg.BaseURL + fmt.Sprintf(pathIframeFmt, c.cfg.IframeID, paymentKey),
		ExpiresAt:  c.now().Add(expiry),
	}
	span.SetAttributes(attribute.String("payment.gateway_order_id", intention.OrderID))

	c.log.Info("Payment intention created",
		zap.String("order_id", intention.OrderID),
		zap.String("merchant_order_id", req.MerchantOrderID),
		zap.Int64("amount_cents", req.AmountCents),
	)

	return intention, nil
}

func validateIntention(req IntentionRequest) error {
	if req.AmountCents <= 0 {
		return &Error{Op: "create order", Kind: ErrOrder, Err: fmt.Errorf("amount must be positive, got %d", req.AmountCents)}
	}
	if req.MerchantOrderID == "" {
		return &Error{Op: "create order", Kind: ErrOrder, Err: fmt.Errorf("merchant order id is required")}
	}
	if len(req.Items) > 0 {
		var sum int64
		for _, it := range req.Items {
			qty := it.Quantity
			if qty <= 0 {
				qty = 1
			}
			sum += it.AmountCents * int64(qty)
		}
		if sum != req.AmountCents {
			return &Error{Op: "create order", Kind: ErrOrder, Err: fmt.Errorf("line items sum to %d, amount is %d", sum, req.AmountCents)}
		}
	}
	return nil
}

func toBillingPayload(b BillingData) billingPayload {
	orNA := func(s string) string {
		if s == "" {
			return "NA"
		}
		return s
	}
	return billingPayload{
		FirstName:      orNA(b.FirstName),
		LastName:       orNA(b.LastName),
		Email:          orNA(b.Email),
		PhoneNumber:    orNA(b.Phone),
		Apartment:      "NA",
		Floor:          "NA",
		Street:         "NA",
		Building:       "NA",
		ShippingMethod: "NA",
		PostalCode:     "NA",
		City:           "NA",
		Country:        "NA",
		State:          "NA",
	}
}
