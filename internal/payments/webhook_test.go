package payments

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signPayload(payload []byte, secret string, at time.Time) string {
	signature := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(signature))
}

func completedPayload(sessionID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":"checkout.session.completed","api_version":"2020-08-27","data":{"object":{"id":%q,"object":"checkout.session","payment_status":%q,"status":"complete"}}}`, sessionID, paymentStatus))
}

func TestWebhookVerifierAcceptsValidSignature(t *testing.T) {
	verifier := NewWebhookVerifier(testWebhookSecret, 0)
	payload := completedPayload("cs_test_1", "paid")

	event, err := verifier.Verify(payload, signPayload(payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if event.Type != EventCheckoutSessionCompleted || event.SessionID != "cs_test_1" || event.PaymentStatus != "paid" || event.Status != "complete" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestWebhookVerifierRejectsBadSignature(t *testing.T) {
	verifier := NewWebhookVerifier(testWebhookSecret, 0)
	payload := completedPayload("cs_test_1", "paid")

	cases := map[string]string{
		"wrong secret": signPayload(payload, "whsec_other", time.Now()),
		"garbage":      "not-a-signature",
		"empty":        "",
		"too old":      signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour)),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Verify(payload, header)
			if !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("expected invalid signature, got %v", err)
			}
		})
	}
}

func TestWebhookVerifierFailsClosedWithoutSecret(t *testing.T) {
	verifier := NewWebhookVerifier("  ", 0)
	if verifier.Configured() {
		t.Fatalf("expected verifier to be unconfigured")
	}
	payload := completedPayload("cs_test_1", "paid")
	_, err := verifier.Verify(payload, signPayload(payload, testWebhookSecret, time.Now()))
	if !errors.Is(err, ErrWebhookSecretMissing) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestWebhookVerifierRejectsMalformedSignedBody(t *testing.T) {
	verifier := NewWebhookVerifier(testWebhookSecret, 0)
	payload := []byte(`{"id":"evt_1",`)
	_, err := verifier.Verify(payload, signPayload(payload, testWebhookSecret, time.Now()))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}
