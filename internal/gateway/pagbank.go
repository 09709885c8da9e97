// Package gateway implements the PagBank sandbox payment gateway adapter.
// The gateway confirms instant methods synchronously and delayed methods
// (PIX, boleto) via a later webhook handled by the reconciler.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// ErrUnavailable reports a transport-level failure: the gateway was
// unreachable, timed out, or answered with a server error. A hung call never
// blocks past the configured timeout.
var ErrUnavailable = errors.New("payment gateway unavailable")

// ChargeRequest describes a charge to submit to the gateway.
type ChargeRequest struct {
	ReferenceID   string           `json:"reference_id"`
	AmountCents   int64            `json:"amount_cents"`
	Method        string           `json:"method"`
	Description   string           `json:"description"`
	CustomerEmail string           `json:"customer_email"`
	Card          *models.CardData `json:"card,omitempty"`
}

// ChargeResult is the gateway's immediate answer. Delayed methods come back
// pending or processing; the definitive outcome arrives on the webhook.
type ChargeResult struct {
	TransactionID string
	Status        models.PaymentStatus
	Message       string
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// Client calls the PagBank sandbox over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a gateway client. The timeout bounds the full round-trip.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: util.GetLogger(),
	}
}

// Charge submits a charge and returns the gateway's immediate result.
// Declined charges are a successful round-trip: the result carries DECLINED
// and err is nil. ErrUnavailable is returned only for transport failures.
func (c *Client) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	resp, err := c.post(ctx, "/charges", req)
	if err != nil {
		return nil, err
	}

	result := &ChargeResult{
		TransactionID: resp.TransactionID,
		Status:        MapGatewayStatus(resp.Status),
		Message:       resp.Message,
	}
	if result.TransactionID == "" {
		return nil, fmt.Errorf("%w: empty transaction id", ErrUnavailable)
	}

	c.logger.Info("Gateway charge processed",
		zap.String("transaction_id", result.TransactionID),
		zap.String("status", string(result.Status)))
	return result, nil
}

// Refund asks the gateway to reverse a confirmed charge. The definitive
// REFUNDED status arrives later on the webhook.
func (c *Client) Refund(ctx context.Context, transactionID string) error {
	_, err := c.post(ctx, fmt.Sprintf("/charges/%s/refund", transactionID), nil)
	return err
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*chargeResponse, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	util.GatewayCallLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Error("Gateway call failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: gateway answered %s", ErrUnavailable, resp.Status)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("gateway rejected request: %s", resp.Status)
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return &out, nil
}

// MapGatewayStatus translates the gateway's status vocabulary into the
// internal payment status. Anything unrecognized maps to UNKNOWN rather than
// failing, so an odd notification still lands somewhere auditable.
func MapGatewayStatus(status string) models.PaymentStatus {
	switch status {
	case "pending":
		return models.PaymentStatusPending
	case "processing":
		return models.PaymentStatusProcessing
	case "confirmed":
		return models.PaymentStatusConfirmed
	case "declined":
		return models.PaymentStatusDeclined
	case "failed":
		return models.PaymentStatusFailed
	case "cancelled":
		return models.PaymentStatusCancelled
	case "expired":
		return models.PaymentStatusExpired
	case "refunded":
		return models.PaymentStatusRefunded
	default:
		return models.PaymentStatusUnknown
	}
}
