// Package webhook verifies and normalizes inbound provider callbacks.
// Verification and parsing are pure: no storage access, no side effects, so
// forged-webhook defense stays independently testable.
package webhook

import (
	"fmt"
	"time"

	"storefront-payments/internal/provider"
)

const (
	// Default replay window: events older than 5 minutes or more than a
	// minute in the future are rejected even with a valid signature.
	DefaultTolerancePast   = 5 * time.Minute
	DefaultToleranceFuture = 1 * time.Minute
)

// Verifier checks webhook authenticity and normalizes payloads through the
// provider registry. The clock is injectable for tests.
type Verifier struct {
	registry        *provider.Registry
	tolerancePast   time.Duration
	toleranceFuture time.Duration
	now             func() time.Time
}

type Option func(*Verifier)

func WithReplayWindow(past, future time.Duration) Option {
	return func(v *Verifier) {
		v.tolerancePast = past
		v.toleranceFuture = future
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

func NewVerifier(registry *provider.Registry, opts ...Option) *Verifier {
	v := &Verifier{
		registry:        registry,
		tolerancePast:   DefaultTolerancePast,
		toleranceFuture: DefaultToleranceFuture,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the provider-specific signature over the raw body. An unknown
// provider fails verification; it never panics or leaks which check failed.
func (v *Verifier) Verify(providerName string, rawBody []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}
	_, adapter, err := v.registry.Resolve(providerName)
	if err != nil {
		return false
	}
	return adapter.VerifySignature(rawBody, signatureHeader)
}

// Parse normalizes the payload into a canonical event and enforces the
// replay window. Callers must Verify first; Parse never sees a body whose
// signature has not been checked.
func (v *Verifier) Parse(providerName string, rawBody []byte) (*provider.WebhookEvent, error) {
	_, adapter, err := v.registry.Resolve(providerName)
	if err != nil {
		return nil, err
	}

	event, err := adapter.ParseWebhook(rawBody)
	if err != nil {
		return nil, err
	}

	if err := v.checkReplayWindow(event.EventAt); err != nil {
		return nil, err
	}

	return event, nil
}

func (v *Verifier) checkReplayWindow(eventAt time.Time) error {
	if eventAt.IsZero() {
		return nil
	}
	now := v.now()
	if eventAt.Before(now.Add(-v.tolerancePast)) {
		return fmt.Errorf("event timestamp %s outside replay window (too old)", eventAt.Format(time.RFC3339))
	}
	if eventAt.After(now.Add(v.toleranceFuture)) {
		return fmt.Errorf("event timestamp %s outside replay window (in the future)", eventAt.Format(time.RFC3339))
	}
	return nil
}
