package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type Refund struct {
	ID          string
	AmountCents int64
}

type refundRequest struct {
	AuthToken     string `json:"auth_token"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
}

// IssueRefund refunds amountCents of a captured transaction. Any provider
// rejection, including an amount above what was captured, is ErrRefund.
func (c *Client) IssueRefund(ctx context.Context, transactionID string, amountCents int64) (*Refund, error) {
	ctx, span := c.tracer.Start(ctx, "gateway.IssueRefund")
	defer span.End()
	span.SetAttributes(amountAttr(amountCents), attribute.String("payment.transaction_id", transactionID))

	if transactionID == "" || amountCents <= 0 {
		err := &Error{Op: "refund", Kind: ErrRefund, Err: fmt.Errorf("transaction id and positive amount are required")}
		recordSpanError(span, err)
		return nil, err
	}

	var out struct {
		ID      int64 `json:"id"`
		Success bool  `json:"success"`
		Pending bool  `json:"pending"`
		Data    struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	err := c.withToken(ctx, func(token string) error {
		return c.doJSON(ctx, http.MethodPost, pathRefund, refundRequest{
			AuthToken:     token,
			TransactionID: transactionID,
			AmountCents:   amountCents,
		}, &out, "refund", ErrRefund)
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if !out.Success {
		err := &Error{Op: "refund", Kind: ErrRefund, Err: fmt.Errorf("provider declined refund: %s", out.Data.Message)}
		recordSpanError(span, err)
		return nil, err
	}

	refund := &Refund{ID: strconv.FormatInt(out.ID, 10), AmountCents: amountCents}
	c.log.Info("Refund issued",
		zap.String("transaction_id", transactionID),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount_cents", amountCents),
	)
	return refund, nil
}
