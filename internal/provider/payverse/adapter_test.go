package payverse_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"storefront-payments/internal/core/datamodel/transaction"
	"storefront-payments/internal/provider"
	"storefront-payments/internal/provider/payverse"
)

func TestPayverseAdapter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Payverse Adapter Suite")
}

const testSecret = "pv_whsec_test_0123456789"

func signPayverse(ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

var _ = Describe("Adapter", func() {
	var (
		logger *slog.Logger
		server *httptest.Server
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	newAdapter := func(baseURL string) *payverse.Adapter {
		return payverse.NewAdapter(provider.Config{
			APIKey:        "pv_test_key",
			SigningSecret: testSecret,
			BaseURL:       baseURL,
		}, 2*time.Second, logger)
	}

	chargeReq := func() *provider.ChargeRequest {
		return &provider.ChargeRequest{
			ReferenceNumber: "ref-001",
			Amount:          decimal.RequireFromString("49.99"),
			Currency:        "USD",
			Method:          transaction.MethodCard,
			CardNumber:      "4242424242424242",
			CardExpiryMonth: "12",
			CardExpiryYear:  "2030",
			CardCVV:         "123",
		}
	}

	Describe("Charge", func() {
		Context("when the charge succeeds", func() {
			It("returns the provider id and a completed status", func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					Expect(r.URL.Path).To(Equal("/v1/charges"))
					Expect(r.Header.Get("Authorization")).To(Equal("Bearer pv_test_key"))
					Expect(r.Header.Get("Idempotency-Key")).To(Equal("ref-001"))
					Expect(r.Header.Get("X-Request-Signature")).ToNot(BeEmpty())

					w.Header().Set("Content-Type", "application/json")
					fmt.Fprint(w, `{"id":"ch_abc123","status":"succeeded","payment_method":{"masked_number":"**** **** **** 4242","brand":"visa"}}`)
				}))

				result, err := newAdapter(server.URL).Charge(context.Background(), chargeReq())

				Expect(err).ToNot(HaveOccurred())
				Expect(result.ProviderTransactionID).To(Equal("ch_abc123"))
				Expect(result.Status).To(Equal(transaction.StatusCompleted))
				Expect(result.MaskedNumber).To(Equal("**** **** **** 4242"))
				Expect(result.CardBrand).To(Equal("visa"))
			})
		})

		Context("when the charge settles asynchronously", func() {
			It("maps a pending native status to processing", func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					fmt.Fprint(w, `{"id":"ch_async","status":"pending"}`)
				}))

				result, err := newAdapter(server.URL).Charge(context.Background(), chargeReq())

				Expect(err).ToNot(HaveOccurred())
				Expect(result.Status).To(Equal(transaction.StatusProcessing))
			})
		})

		Context("when the provider declines", func() {
			It("returns a rejected error with the provider code", func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusPaymentRequired)
					fmt.Fprint(w, `{"error":{"code":"card_declined","message":"insufficient funds"}}`)
				}))

				result, err := newAdapter(server.URL).Charge(context.Background(), chargeReq())

				Expect(result).To(BeNil())
				Expect(provider.IsRejected(err)).To(BeTrue())
				Expect(provider.IsIndeterminate(err)).To(BeFalse())
				Expect(err.Error()).To(ContainSubstring("insufficient funds"))
			})
		})

		Context("when the provider returns a server error", func() {
			It("classifies the outcome as indeterminate", func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusBadGateway)
				}))

				result, err := newAdapter(server.URL).Charge(context.Background(), chargeReq())

				Expect(result).To(BeNil())
				Expect(provider.IsIndeterminate(err)).To(BeTrue())
				Expect(provider.IsRejected(err)).To(BeFalse())
			})
		})

		Context("when the request times out", func() {
			It("classifies the outcome as indeterminate", func() {
				server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					time.Sleep(200 * time.Millisecond)
				}))

				adapter := payverse.NewAdapter(provider.Config{
					APIKey:        "pv_test_key",
					SigningSecret: testSecret,
					BaseURL:       server.URL,
				}, 50*time.Millisecond, logger)

				result, err := adapter.Charge(context.Background(), chargeReq())

				Expect(result).To(BeNil())
				Expect(provider.IsIndeterminate(err)).To(BeTrue())
			})
		})
	})

	Describe("VerifySignature", func() {
		body := []byte(`{"id":"evt_1","data":{"charge":{"id":"ch_abc"}}}`)

		It("accepts a correctly signed header", func() {
			ts := fmt.Sprintf("%d", time.Now().Unix())
			header := fmt.Sprintf("t=%s,v1=%s", ts, signPayverse(ts, body))

			Expect(newAdapter("").VerifySignature(body, header)).To(BeTrue())
		})

		It("rejects a tampered body", func() {
			ts := fmt.Sprintf("%d", time.Now().Unix())
			header := fmt.Sprintf("t=%s,v1=%s", ts, signPayverse(ts, body))
			tampered := []byte(`{"id":"evt_1","data":{"charge":{"id":"ch_EVIL"}}}`)

			Expect(newAdapter("").VerifySignature(tampered, header)).To(BeFalse())
		})

		It("rejects a signature made with a different secret", func() {
			ts := fmt.Sprintf("%d", time.Now().Unix())
			mac := hmac.New(sha256.New, []byte("wrong-secret"))
			mac.Write([]byte(ts + "."))
			mac.Write(body)
			header := fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

			Expect(newAdapter("").VerifySignature(body, header)).To(BeFalse())
		})

		It("rejects malformed headers", func() {
			Expect(newAdapter("").VerifySignature(body, "")).To(BeFalse())
			Expect(newAdapter("").VerifySignature(body, "v1=deadbeef")).To(BeFalse())
			Expect(newAdapter("").VerifySignature(body, "t=123")).To(BeFalse())
			Expect(newAdapter("").VerifySignature(body, "t=123,v1=not-hex")).To(BeFalse())
		})
	})

	Describe("ParseWebhook", func() {
		It("normalizes the nested charge payload", func() {
			created := time.Now().Unix()
			body := []byte(fmt.Sprintf(`{
				"id": "evt_42",
				"type": "charge.succeeded",
				"created": %d,
				"data": {"charge": {"id": "ch_abc", "reference": "ref-001", "status": "succeeded", "amount": "49.99", "currency": "USD"}}
			}`, created))

			event, err := newAdapter("").ParseWebhook(body)

			Expect(err).ToNot(HaveOccurred())
			Expect(event.ProviderTransactionID).To(Equal("ch_abc"))
			Expect(event.ReferenceNumber).To(Equal("ref-001"))
			Expect(event.Status).To(Equal(transaction.StatusCompleted))
			Expect(event.Amount.String()).To(Equal("49.99"))
			Expect(event.EventAt.Unix()).To(Equal(created))
		})

		It("treats a payload without created as carrying no event time", func() {
			body := []byte(`{"id":"evt_45","data":{"charge":{"id":"ch_y","reference":"ref-002","status":"succeeded"}}}`)

			event, err := newAdapter("").ParseWebhook(body)

			Expect(err).ToNot(HaveOccurred())
			Expect(event.EventAt.IsZero()).To(BeTrue())
		})

		It("fails on an unmapped native status", func() {
			body := []byte(`{"id":"evt_43","created":1,"data":{"charge":{"id":"ch_x","status":"teleported"}}}`)

			_, err := newAdapter("").ParseWebhook(body)
			Expect(err).To(HaveOccurred())
		})

		It("fails when the charge id is missing", func() {
			body := []byte(`{"id":"evt_44","created":1,"data":{"charge":{"status":"succeeded"}}}`)

			_, err := newAdapter("").ParseWebhook(body)
			Expect(err).To(HaveOccurred())
		})
	})
})
