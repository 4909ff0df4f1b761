// Package trustgate implements the Trustgate bank-transfer/crypto rail.
// Trustgate acknowledges charges as pending and settles asynchronously via
// webhook. It has no native idempotency support, so the adapter dedupes
// charge submissions on the reference token itself.
package trustgate

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-payments/internal/core/datamodel/transaction"
	"storefront-payments/internal/provider"
)

const ProviderName = "trustgate"

type Adapter struct {
	cfg    provider.Config
	client *http.Client
	logger *slog.Logger

	// charges already accepted by Trustgate, keyed on the reference token.
	// A retried Charge with a known token returns the cached result instead
	// of submitting a second charge.
	accepted sync.Map
}

func NewAdapter(cfg provider.Config, timeout time.Duration, logger *slog.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (a *Adapter) Name() string {
	return ProviderName
}

func (a *Adapter) Supports(method transaction.Method) bool {
	return method == transaction.MethodBank || method == transaction.MethodCrypto
}

type chargeResponse struct {
	TransactionID     string `json:"transaction_id"`
	OrderRef          string `json:"order_ref"`
	TransactionStatus string `json:"transaction_status"`
	StatusMessage     string `json:"status_message"`
}

func (a *Adapter) Charge(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	if cached, ok := a.accepted.Load(req.ReferenceNumber); ok {
		result := cached.(*provider.ChargeResult)
		a.logger.Info("trustgate charge deduped on reference token",
			"reference_number", req.ReferenceNumber,
			"transaction_id", result.ProviderTransactionID)
		return result, nil
	}

	payload := map[string]interface{}{
		"order_ref":      req.ReferenceNumber,
		"gross_amount":   req.Amount,
		"currency":       req.Currency,
		"payment_type":   string(req.Method),
		"bank_account":   req.BankAccount,
		"crypto_address": req.CryptoAddress,
		"customer_email": req.CustomerEmail,
		"description":    req.Description,
	}

	resp, err := a.post(ctx, "/api/v2/charge", payload)
	if err != nil {
		return nil, err
	}

	status, err := normalizeStatus(resp.TransactionStatus)
	if err != nil {
		return nil, provider.NewIndeterminate(ProviderName, "unrecognized transaction status", err)
	}

	result := &provider.ChargeResult{
		ProviderTransactionID: resp.TransactionID,
		Status:                status,
	}
	a.accepted.Store(req.ReferenceNumber, result)
	return result, nil
}

func (a *Adapter) Refund(ctx context.Context, req *provider.RefundRequest) (*provider.RefundResult, error) {
	payload := map[string]interface{}{
		"transaction_id": req.ProviderTransactionID,
		"refund_amount":  req.Amount,
		"currency":       req.Currency,
		"reason":         req.Reason,
		"refund_key":     req.ReferenceNumber + ":" + req.Amount.String(),
	}

	resp, err := a.post(ctx, "/api/v2/refund", payload)
	if err != nil {
		return nil, err
	}

	return &provider.RefundResult{
		ProviderRefundID: resp.TransactionID,
		Status:           transaction.StatusRefunded,
	}, nil
}

func (a *Adapter) post(ctx context.Context, path string, payload interface{}) (*chargeResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, provider.NewIndeterminate(ProviderName, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, provider.NewIndeterminate(ProviderName, "build request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", a.cfg.APIKey)
	httpReq.Header.Set("X-Nonce", uuid.NewString())
	httpReq.Header.Set("X-Signature", a.sign(body))

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, provider.NewIndeterminate(ProviderName, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewIndeterminate(ProviderName, "read response", err)
	}

	if resp.StatusCode >= 500 {
		return nil, provider.NewIndeterminate(ProviderName,
			fmt.Sprintf("server error (status %d)", resp.StatusCode), nil)
	}

	var decoded chargeResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, provider.NewIndeterminate(ProviderName, "decode response", err)
	}

	if resp.StatusCode >= 400 || decoded.TransactionStatus == "deny" || decoded.TransactionStatus == "expire" {
		msg := decoded.StatusMessage
		if msg == "" {
			msg = fmt.Sprintf("declined (status %d)", resp.StatusCode)
		}
		a.logger.Warn("trustgate declined request",
			"status_code", resp.StatusCode,
			"transaction_status", decoded.TransactionStatus)
		return nil, provider.NewRejected(ProviderName, decoded.TransactionStatus, msg)
	}

	return &decoded, nil
}

func normalizeStatus(native string) (transaction.Status, error) {
	switch native {
	case "settlement", "capture":
		return transaction.StatusCompleted, nil
	case "pending", "authorize":
		return transaction.StatusProcessing, nil
	case "deny", "expire", "failure":
		return transaction.StatusFailed, nil
	case "refund":
		return transaction.StatusRefunded, nil
	case "partial_refund":
		return transaction.StatusPartiallyRefunded, nil
	case "chargeback":
		return transaction.StatusDisputed, nil
	}
	return "", fmt.Errorf("trustgate status %q has no mapping", native)
}

func (a *Adapter) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(a.cfg.SigningSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body carried in the
// X-Webhook-Signature header.
func (a *Adapter) VerifySignature(rawBody []byte, signatureHeader string) bool {
	provided, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.SigningSecret))
	mac.Write(rawBody)

	return hmac.Equal(mac.Sum(nil), provided)
}

type webhookPayload struct {
	TransactionID     string          `json:"transaction_id"`
	OrderRef          string          `json:"order_ref"`
	TransactionStatus string          `json:"transaction_status"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	Currency          string          `json:"currency"`
	TransactionTime   string          `json:"transaction_time"`
}

// ParseWebhook normalizes the flat Trustgate notification payload.
func (a *Adapter) ParseWebhook(rawBody []byte) (*provider.WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("trustgate webhook decode: %w", err)
	}

	if payload.TransactionID == "" {
		return nil, fmt.Errorf("trustgate webhook missing transaction_id")
	}

	status, err := normalizeStatus(payload.TransactionStatus)
	if err != nil {
		return nil, err
	}

	eventAt, err := time.Parse(time.RFC3339, payload.TransactionTime)
	if err != nil {
		return nil, fmt.Errorf("trustgate webhook transaction_time: %w", err)
	}

	return &provider.WebhookEvent{
		ProviderTransactionID: payload.TransactionID,
		ReferenceNumber:       payload.OrderRef,
		Status:                status,
		Amount:                payload.GrossAmount,
		Currency:              payload.Currency,
		EventAt:               eventAt.UTC(),
	}, nil
}
