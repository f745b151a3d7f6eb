// Package gateway talks to the hosted payment provider: authentication,
// two-step payment intentions, refunds, the payment-method catalog and
// webhook signature checks. Amounts are int64 minor units throughout.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	pathAuth          = "/api/auth/tokens"
	pathOrders        = "/api/ecommerce/orders"
	pathPaymentKeys   = "/api/acceptance/payment_keys"
	pathRefund        = "/api/acceptance/void_refund/refund"
	pathMethods       = "/api/ecommerce/payment-methods"
	pathIframeFmt     = "/api/acceptance/iframes/%d?payment_token=%s"
	maxErrorBodyBytes = 2048
)

type Config struct {
	BaseURL          string
	APIKey           string
	HMACSecret       string
	IntegrationID    int64
	IframeID         int64
	Currency         string
	Timeout          time.Duration
	TokenTTL         time.Duration
	PaymentKeyExpiry time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock overrides time.Now, mainly for token expiry in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is safe for concurrent use. The auth token is cached per Client
// and refreshed under tokenMu, so concurrent callers share one refresh.
type Client struct {
	cfg    Config
	http   *http.Client
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	tokenMu        sync.Mutex
	token          string
	tokenExpiresAt time.Time
}

func NewClient(cfg Config, log *zap.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 55 * time.Minute
	}
	if cfg.PaymentKeyExpiry <= 0 {
		cfg.PaymentKeyExpiry = time.Hour
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		log:    log.With(zap.String("component", "gateway")),
		tracer: otel.Tracer("stay-booking/gateway"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Currency is the default currency configured for this merchant account.
func (c *Client) Currency() string {
	return c.cfg.Currency
}

// authenticate returns a cached token, fetching a new one when missing or
// expired.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiresAt) {
		return c.token, nil
	}

	ctx, span := c.tracer.Start(ctx, "gateway.Authenticate")
	defer span.End()

	var out struct {
		Token string `json:"token"`
	}
	req := map[string]string{"api_key": c.cfg.APIKey}
	if err := c.doJSON(ctx, http.MethodPost, pathAuth, req, &out, "authenticate", ErrAuth); err != nil {
		recordSpanError(span, err)
		return "", err
	}
	if out.Token == "" {
		err := &Error{Op: "authenticate", Kind: ErrAuth, Err: fmt.Errorf("empty token in response")}
		recordSpanError(span, err)
		return "", err
	}

	c.token = out.Token
	c.tokenExpiresAt = c.now().Add(c.cfg.TokenTTL)
	c.log.Debug("Gateway token refreshed", zap.Time("expires_at", c.tokenExpiresAt))

	return c.token, nil
}

// invalidateToken drops a token the provider rejected.
func (c *Client) invalidateToken(token string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token == token {
		c.token = ""
		c.tokenExpiresAt = time.Time{}
	}
}

// withToken runs call with a token, retrying once with a fresh token when
// the provider answers 401.
func (c *Client) withToken(ctx context.Context, call func(token string) error) error {
	token, err := c.authenticate(ctx)
	if err != nil {
		return err
	}

	err = call(token)
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusUnauthorized {
		c.log.Warn("Gateway rejected cached token, re-authenticating", zap.String("op", gwErr.Op))
		c.invalidateToken(token)
		token, err = c.authenticate(ctx)
		if err != nil {
			return err
		}
		return call(token)
	}
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, op string, kind error) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Kind: kind, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return &Error{Op: op, Kind: kind, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("Gateway request failed",
			zap.Error(err),
			zap.String("op", op),
			zap.String("path", path),
		)
		return &Error{Op: op, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug("Gateway request",
		zap.String("op", op),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", c.now().Sub(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.log.Warn("Gateway returned error status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw),
		)
		return &Error{Op: op, StatusCode: resp.StatusCode, Body: string(raw), Kind: kind}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Op: op, StatusCode: resp.StatusCode, Kind: kind, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func amountAttr(amountCents int64) attribute.KeyValue {
	return attribute.Int64("payment.amount_cents", amountCents)
}
