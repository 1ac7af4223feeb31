package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
)

// Client is a Razorpay-compatible REST gateway client. Requests are
// authenticated with HTTP basic auth using the key ID and secret.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient builds a gateway client. The timeout bounds each gateway call;
// booking holds a database transaction open across the call, so it must not
// be generous.
func NewClient(baseURL, keyID, keySecret string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "payment").Logger(),
	}
}

type orderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

type orderResponse struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type refundResponse struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type gatewayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error) {
	if amount <= 0 {
		return nil, apperr.Invalid("order amount must be positive")
	}

	var resp orderResponse
	err := c.post(ctx, "/v1/orders", orderRequest{Amount: amount, Currency: currency, Receipt: receipt}, &resp)
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("order_id", resp.ID).
		Int64("amount", resp.Amount).
		Str("currency", resp.Currency).
		Msg("gateway order created")

	return &Order{
		ID:        resp.ID,
		Amount:    resp.Amount,
		Currency:  resp.Currency,
		Receipt:   resp.Receipt,
		Status:    resp.Status,
		CreatedAt: time.Unix(resp.CreatedAt, 0),
	}, nil
}

func (c *Client) Refund(ctx context.Context, paymentID string, amount int64) (*Refund, error) {
	if paymentID == "" {
		return nil, apperr.Invalid("payment id is required for refund")
	}

	var resp refundResponse
	path := fmt.Sprintf("/v1/payments/%s/refund", paymentID)
	if err := c.post(ctx, path, refundRequest{Amount: amount}, &resp); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("refund_id", resp.ID).
		Str("payment_id", resp.PaymentID).
		Int64("amount", resp.Amount).
		Msg("gateway refund issued")

	return &Refund{
		ID:        resp.ID,
		PaymentID: resp.PaymentID,
		Amount:    resp.Amount,
		Status:    resp.Status,
		CreatedAt: time.Unix(resp.CreatedAt, 0),
	}, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperr.Internal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperr.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Gateway(err, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperr.Gateway(err, "read gateway response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge gatewayError
		if json.Unmarshal(raw, &ge) == nil && ge.Error.Description != "" {
			return apperr.Gateway(nil, "gateway rejected request: %s", ge.Error.Description)
		}
		return apperr.Gateway(nil, "gateway returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Gateway(err, "decode gateway response")
	}
	return nil
}
