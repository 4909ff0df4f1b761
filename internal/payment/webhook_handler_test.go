package payment_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "storefront-payments/internal"
	paymentPkg "storefront-payments/internal/payment"
)

// Mock reconciler for testing the webhook endpoint in isolation
type mockReconciler struct {
	err          error
	gotProvider  string
	gotBody      []byte
	gotSignature string
}

func (m *mockReconciler) ReconcileWebhook(ctx context.Context, providerName string, rawBody []byte, signatureHeader string) error {
	m.gotProvider = providerName
	m.gotBody = rawBody
	m.gotSignature = signatureHeader
	return m.err
}

var _ = Describe("WebhookHandler", func() {
	var (
		reconciler *mockReconciler
		router     *chi.Mux
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		reconciler = &mockReconciler{}
		handler := paymentPkg.NewWebhookHandler(reconciler, logger)

		router = chi.NewRouter()
		router.Post("/api/v1/webhooks/{provider}", handler.HandleProviderCallback)
	})

	deliver := func(body string, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payverse", bytes.NewBufferString(body))
		if signature != "" {
			req.Header.Set("X-Webhook-Signature", signature)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	Context("when the callback is processed", func() {
		It("returns 200 and passes the raw body and signature through", func() {
			rec := deliver(`{"id":"evt_1"}`, "t=1,v1=abc")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(reconciler.gotProvider).To(Equal("payverse"))
			Expect(string(reconciler.gotBody)).To(Equal(`{"id":"evt_1"}`))
			Expect(reconciler.gotSignature).To(Equal("t=1,v1=abc"))
		})
	})

	Context("when the signature is invalid", func() {
		It("returns the same generic 200 as an accepted callback", func() {
			reconciler.err = apperrors.ErrInvalidSignature

			rec := deliver(`{"id":"evt_1"}`, "t=1,v1=forged")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("received"))
		})
	})

	Context("when the transaction is unknown", func() {
		It("returns the same generic 200 as an accepted callback", func() {
			reconciler.err = apperrors.ErrUnknownTransaction

			rec := deliver(`{"id":"evt_1"}`, "t=1,v1=abc")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("received"))
		})
	})

	Context("when a transition race is lost", func() {
		It("returns 500 so the provider redelivers", func() {
			reconciler.err = apperrors.ErrStaleTransition

			rec := deliver(`{"id":"evt_1"}`, "t=1,v1=abc")

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})
})
