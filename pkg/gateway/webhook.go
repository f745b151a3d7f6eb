package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TransactionCallback is the body the provider posts when a transaction
// settles.
type TransactionCallback struct {
	Type string      `json:"type"`
	Obj  Transaction `json:"obj"`
}

type Transaction struct {
	ID                   int64            `json:"id"`
	Pending              bool             `json:"pending"`
	AmountCents          int64            `json:"amount_cents"`
	Success              bool             `json:"success"`
	IsAuth               bool             `json:"is_auth"`
	IsCapture            bool             `json:"is_capture"`
	IsStandalonePayment  bool             `json:"is_standalone_payment"`
	IsVoided             bool             `json:"is_voided"`
	IsRefunded           bool             `json:"is_refunded"`
	Is3DSecure           bool             `json:"is_3d_secure"`
	IntegrationID        int64            `json:"integration_id"`
	HasParentTransaction bool             `json:"has_parent_transaction"`
	CreatedAt            string           `json:"created_at"`
	Currency             string           `json:"currency"`
	ErrorOccured         bool             `json:"error_occured"`
	Owner                int64            `json:"owner"`
	Order                TransactionOrder `json:"order"`
	SourceData           SourceData       `json:"source_data"`
	Data                 TransactionData  `json:"data"`
}

type TransactionOrder struct {
	ID              int64  `json:"id"`
	MerchantOrderID string `json:"merchant_order_id"`
}

type SourceData struct {
	Pan     string `json:"pan"`
	SubType string `json:"sub_type"`
	Type    string `json:"type"`
}

type TransactionData struct {
	Message         string `json:"message"`
	TxnResponseCode string `json:"txn_response_code"`
}

// ParseCallback decodes a raw webhook body.
func ParseCallback(body []byte) (*TransactionCallback, error) {
	var cb TransactionCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("decode transaction callback: %w", err)
	}
	if cb.Obj.ID == 0 {
		return nil, fmt.Errorf("transaction callback has no transaction id")
	}
	return &cb, nil
}

// TransactionID is the provider's transaction id as a string.
func (t Transaction) TransactionID() string {
	return strconv.FormatInt(t.ID, 10)
}

// GatewayOrderID is the provider's order id as a string.
func (t Transaction) GatewayOrderID() string {
	if t.Order.ID == 0 {
		return ""
	}
	return strconv.FormatInt(t.Order.ID, 10)
}

// MethodLabel describes how the guest paid, e.g. "card/MasterCard".
func (t Transaction) MethodLabel() string {
	if t.SourceData.SubType == "" {
		return t.SourceData.Type
	}
	return t.SourceData.Type + "/" + t.SourceData.SubType
}

// signedFields is the exact ordered concatenation the provider signs.
func (t Transaction) signedFields() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(t.AmountCents, 10))
	b.WriteString(t.CreatedAt)
	b.WriteString(t.Currency)
	b.WriteString(strconv.FormatBool(t.ErrorOccured))
	b.WriteString(strconv.FormatBool(t.HasParentTransaction))
	b.WriteString(strconv.FormatInt(t.ID, 10))
	b.WriteString(strconv.FormatInt(t.IntegrationID, 10))
	b.WriteString(strconv.FormatBool(t.Is3DSecure))
	b.WriteString(strconv.FormatBool(t.IsAuth))
	b.WriteString(strconv.FormatBool(t.IsCapture))
	b.WriteString(strconv.FormatBool(t.IsRefunded))
	b.WriteString(strconv.FormatBool(t.IsStandalonePayment))
	b.WriteString(strconv.FormatBool(t.IsVoided))
	b.WriteString(strconv.FormatInt(t.Order.ID, 10))
	b.WriteString(strconv.FormatInt(t.Owner, 10))
	b.WriteString(strconv.FormatBool(t.Pending))
	b.WriteString(t.SourceData.Pan)
	b.WriteString(t.SourceData.SubType)
	b.WriteString(t.SourceData.Type)
	b.WriteString(strconv.FormatBool(t.Success))
	return b.String()
}

func (c *Client) sign(t Transaction) string {
	mac := hmac.New(sha512.New, []byte(c.cfg.HMACSecret))
	mac.Write([]byte(t.signedFields()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks the provider's HMAC over the callback's
// signed fields in constant time.
func (c *Client) VerifyWebhookSignature(cb *TransactionCallback, signature string) bool {
	if cb == nil || signature == "" {
		return false
	}
	expected := c.sign(cb.Obj)
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}
