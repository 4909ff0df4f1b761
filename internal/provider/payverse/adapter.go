// Package payverse implements the Payverse card/wallet acquiring API.
// Payverse settles synchronously for most charges, signs webhooks with a
// timestamped HMAC header and dedupes charges natively on Idempotency-Key.
package payverse

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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-payments/internal/core/datamodel/transaction"
	"storefront-payments/internal/provider"
)

const ProviderName = "payverse"

type Adapter struct {
	cfg    provider.Config
	client *http.Client
	logger *slog.Logger
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
	return method == transaction.MethodCard || method == transaction.MethodWallet
}

type chargePayload struct {
	Reference   string          `json:"reference"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Source      chargeSource    `json:"source"`
	Email       string          `json:"email,omitempty"`
	Description string          `json:"description,omitempty"`
}

type chargeSource struct {
	Type        string `json:"type"`
	CardNumber  string `json:"card_number,omitempty"`
	ExpiryMonth string `json:"expiry_month,omitempty"`
	ExpiryYear  string `json:"expiry_year,omitempty"`
	CVV         string `json:"cvv,omitempty"`
	WalletID    string `json:"wallet_id,omitempty"`
}

type chargeEnvelope struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentMethod struct {
		MaskedNumber string `json:"masked_number"`
		Brand        string `json:"brand"`
	} `json:"payment_method"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) Charge(ctx context.Context, req *provider.ChargeRequest) (*provider.ChargeResult, error) {
	payload := chargePayload{
		Reference:   req.ReferenceNumber,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Email:       req.CustomerEmail,
		Description: req.Description,
		Source: chargeSource{
			Type:        string(req.Method),
			CardNumber:  req.CardNumber,
			ExpiryMonth: req.CardExpiryMonth,
			ExpiryYear:  req.CardExpiryYear,
			CVV:         req.CardCVV,
			WalletID:    req.WalletID,
		},
	}

	env, err := a.post(ctx, "/v1/charges", req.ReferenceNumber, payload)
	if err != nil {
		return nil, err
	}

	status, err := a.normalizeStatus(env.Status)
	if err != nil {
		return nil, provider.NewIndeterminate(ProviderName, "unrecognized charge status", err)
	}

	return &provider.ChargeResult{
		ProviderTransactionID: env.ID,
		Status:                status,
		MaskedNumber:          env.PaymentMethod.MaskedNumber,
		CardBrand:             env.PaymentMethod.Brand,
	}, nil
}

func (a *Adapter) Refund(ctx context.Context, req *provider.RefundRequest) (*provider.RefundResult, error) {
	payload := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"reason":   req.Reason,
	}

	path := fmt.Sprintf("/v1/charges/%s/refunds", req.ProviderTransactionID)
	env, err := a.post(ctx, path, req.ReferenceNumber+":refund", payload)
	if err != nil {
		return nil, err
	}

	return &provider.RefundResult{ProviderRefundID: env.ID, Status: transaction.StatusRefunded}, nil
}

// post sends a signed request and classifies the outcome. Payverse dedupes on
// the Idempotency-Key header, so retries with the same token are safe.
func (a *Adapter) post(ctx context.Context, path, idempotencyKey string, payload interface{}) (*chargeEnvelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, provider.NewIndeterminate(ProviderName, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, provider.NewIndeterminate(ProviderName, "build request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	httpReq.Header.Set("X-Request-Nonce", uuid.NewString())
	httpReq.Header.Set("X-Request-Signature", a.sign(body))

	resp, err := a.client.Do(httpReq)
	if err != nil {
		// Timeout or connection failure: the charge may have been processed.
		return nil, provider.NewIndeterminate(ProviderName, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewIndeterminate(ProviderName, "read response", err)
	}

	var env chargeEnvelope
	if resp.StatusCode >= 500 {
		return nil, provider.NewIndeterminate(ProviderName,
			fmt.Sprintf("server error (status %d)", resp.StatusCode), nil)
	}

	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, provider.NewIndeterminate(ProviderName, "decode response", err)
	}

	if resp.StatusCode >= 400 {
		msg := env.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("declined (status %d)", resp.StatusCode)
		}
		a.logger.Warn("payverse declined request",
			"status_code", resp.StatusCode,
			"error_code", env.Error.Code)
		return nil, provider.NewRejected(ProviderName, env.Error.Code, msg)
	}

	return &env, nil
}

func (a *Adapter) normalizeStatus(native string) (transaction.Status, error) {
	switch native {
	case "succeeded":
		return transaction.StatusCompleted, nil
	case "pending", "processing":
		return transaction.StatusProcessing, nil
	case "failed":
		return transaction.StatusFailed, nil
	case "refunded":
		return transaction.StatusRefunded, nil
	case "partially_refunded":
		return transaction.StatusPartiallyRefunded, nil
	case "disputed":
		return transaction.StatusDisputed, nil
	}
	return "", fmt.Errorf("payverse status %q has no mapping", native)
}

func (a *Adapter) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(a.cfg.SigningSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the Payverse webhook header, which has the form
// "t=<unix>,v1=<hex>" where the signature covers "<t>.<body>".
func (a *Adapter) VerifySignature(rawBody []byte, signatureHeader string) bool {
	var ts, sig string
	for _, part := range strings.Split(signatureHeader, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sig = value
		}
	}
	if ts == "" || sig == "" {
		return false
	}

	provided, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.SigningSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(rawBody)

	return hmac.Equal(mac.Sum(nil), provided)
}

type webhookPayload struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Charge struct {
			ID        string          `json:"id"`
			Reference string          `json:"reference"`
			Status    string          `json:"status"`
			Amount    decimal.Decimal `json:"amount"`
			Currency  string          `json:"currency"`
		} `json:"charge"`
	} `json:"data"`
}

// ParseWebhook normalizes the nested Payverse event payload.
func (a *Adapter) ParseWebhook(rawBody []byte) (*provider.WebhookEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("payverse webhook decode: %w", err)
	}

	if payload.Data.Charge.ID == "" {
		return nil, fmt.Errorf("payverse webhook missing charge id (event %s)", payload.ID)
	}

	status, err := a.normalizeStatus(payload.Data.Charge.Status)
	if err != nil {
		return nil, err
	}

	// A payload without created carries no event timestamp; mapping it to the
	// Unix epoch would make every such event look ancient.
	var eventAt time.Time
	if payload.Created != 0 {
		eventAt = time.Unix(payload.Created, 0).UTC()
	}

	return &provider.WebhookEvent{
		ProviderTransactionID: payload.Data.Charge.ID,
		ReferenceNumber:       payload.Data.Charge.Reference,
		Status:                status,
		Amount:                payload.Data.Charge.Amount,
		Currency:              payload.Data.Charge.Currency,
		EventAt:               eventAt,
	}, nil
}
