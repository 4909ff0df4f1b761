package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "storefront-payments/internal"
	"storefront-payments/internal/transport"
)

// maxWebhookBody caps inbound callback payloads at 1 MiB.
const maxWebhookBody = 1 << 20

// ReconcilerAPI is the slice of the orchestrator the webhook endpoint needs.
type ReconcilerAPI interface {
	ReconcileWebhook(ctx context.Context, providerName string, rawBody []byte, signatureHeader string) error
}

type WebhookHandler struct {
	transport.BaseHandler
	Reconciler ReconcilerAPI
	Logger     *slog.Logger
}

func NewWebhookHandler(reconciler ReconcilerAPI, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: transport.BaseHandler{Logger: logger},
		Reconciler:  reconciler,
		Logger:      logger,
	}
}

type webhookResponse struct {
	Status string `json:"status"`
}

// HandleProviderCallback handles POST /api/v1/webhooks/{provider}.
//
// Forged or unattributable callbacks get the same generic 200 as accepted
// ones so the endpoint is not an oracle for signature or transaction
// existence. Only a lost transition race returns 500, which makes the
// provider redeliver.
func (h *WebhookHandler) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("failed to read webhook body",
			"provider", providerName,
			"error", err)
		h.WriteError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")

	err = h.Reconciler.ReconcileWebhook(r.Context(), providerName, rawBody, signature)
	if err != nil {
		appErr, ok := errors.IsAppError(err)
		if ok {
			switch appErr.Code {
			case errors.ErrCodeInvalidSignature, errors.ErrCodeUnknownTransaction:
				// Already logged with full detail by the orchestrator.
				h.WriteJSON(w, http.StatusOK, webhookResponse{Status: "received"})
				return
			}
		}
		h.Logger.Error("failed to process provider callback",
			"provider", providerName,
			"error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to process callback")
		return
	}

	h.WriteJSON(w, http.StatusOK, webhookResponse{Status: "received"})
}
