package rest

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"storefront-payments/internal/payment"
	"storefront-payments/internal/transport/middleware"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Mount API under /api/v1
	router.Route("/api/v1", func(r chi.Router) {
		// Health check routes
		r.Get("/health", healthHandler.readinessHandler)
		r.Get("/ping", healthHandler.livenessHandler)

		// Provider callbacks are authenticated by signature, not by user
		// identity, so they sit outside the payment routes.
		if webhookHandler != nil {
			r.Post("/webhooks/{provider}", webhookHandler.HandleProviderCallback)
		}

		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/", paymentHandler.SubmitPayment)
				pr.Get("/{reference}", paymentHandler.GetPayment)
				pr.Post("/{reference}/refund", paymentHandler.RefundPayment)
			})
		}
	})
}
