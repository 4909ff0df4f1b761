package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "storefront-payments/internal"
	"storefront-payments/internal/transport"
)

// OrchestratorAPI is the slice of the orchestrator the HTTP facade needs.
type OrchestratorAPI interface {
	Submit(ctx context.Context, req *SubmitRequest) (*TransactionView, error)
	Refund(ctx context.Context, reference string, req *RefundRequest) (*TransactionView, error)
	GetOwned(ctx context.Context, reference string, userID int64) (*TransactionView, error)
}

type Handler struct {
	transport.BaseHandler
	Orchestrator OrchestratorAPI
	Logger       *slog.Logger
}

func NewHandler(orchestrator OrchestratorAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:  transport.BaseHandler{Logger: logger},
		Orchestrator: orchestrator,
		Logger:       logger,
	}
}

// userID reads the authenticated user from the X-User-ID header. The edge
// gateway terminates authentication and injects this header.
func (h *Handler) userID(r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// SubmitPayment handles POST /api/v1/payments
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(r)
	if !ok {
		h.Logger.Error("SubmitPayment: missing or invalid user identity")
		h.WriteError(w, http.StatusUnauthorized, "user identity required")
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("SubmitPayment: failed to parse request body", "error", err)
		h.HandleServiceError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}
	req.UserID = userID

	view, err := h.Orchestrator.Submit(r.Context(), &req)
	if err != nil {
		// An indeterminate outcome still carries a view: the caller needs
		// the reference number to retry without duplicating the charge.
		if appErr, ok := errors.IsAppError(err); ok && appErr.Retryable && view != nil {
			h.Logger.Warn("SubmitPayment: indeterminate outcome",
				"reference_number", view.ReferenceNumber,
				"user_id", userID)
			h.WriteJSON(w, appErr.StatusCode, map[string]interface{}{
				"error":       appErr,
				"transaction": view,
			})
			return
		}
		h.Logger.Error("SubmitPayment: service error", "error", err, "user_id", userID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("SubmitPayment: payment submitted",
		"reference_number", view.ReferenceNumber,
		"status", view.Status,
		"user_id", userID)

	h.WriteJSON(w, http.StatusCreated, view)
}

// GetPayment handles GET /api/v1/payments/{reference}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(r)
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "user identity required")
		return
	}

	reference := chi.URLParam(r, "reference")
	if reference == "" {
		h.HandleServiceError(w, errors.NewValidationError("reference is required", errors.ErrCodeValidationFailed))
		return
	}

	view, err := h.Orchestrator.GetOwned(r.Context(), reference, userID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// RefundPayment handles POST /api/v1/payments/{reference}/refund
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(r)
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "user identity required")
		return
	}

	reference := chi.URLParam(r, "reference")
	if reference == "" {
		h.HandleServiceError(w, errors.NewValidationError("reference is required", errors.ErrCodeValidationFailed))
		return
	}

	// Ownership is checked before any provider interaction.
	if _, err := h.Orchestrator.GetOwned(r.Context(), reference, userID); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("RefundPayment: failed to parse request body", "error", err)
		h.HandleServiceError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	view, err := h.Orchestrator.Refund(r.Context(), reference, &req)
	if err != nil {
		h.Logger.Error("RefundPayment: service error",
			"error", err,
			"reference_number", reference,
			"user_id", userID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("RefundPayment: refund applied",
		"reference_number", reference,
		"status", view.Status,
		"user_id", userID)

	h.WriteJSON(w, http.StatusOK, view)
}
