package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/psicolfis/checkout-api/internal/domain"
	"github.com/psicolfis/checkout-api/internal/payments"
	"github.com/psicolfis/checkout-api/internal/repositories"
)

const testSecret = "whsec_services_test"

func eventPayload(eventType, sessionID, paymentStatus, status string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_%s","object":"event","type":%q,"data":{"object":{"id":%q,"object":"checkout.session","payment_status":%q,"status":%q}}}`,
		sessionID, eventType, sessionID, paymentStatus, status))
}

func signHeader(payload []byte, secret string) string {
	now := time.Now()
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(webhook.ComputeSignature(now, payload, secret)))
}

func newWebhookFixture(t *testing.T, secret string) (WebhookService, *memoryTransactions, *recordingPublisher, *recordingLogger) {
	t.Helper()
	store := newMemoryTransactions()
	publisher := &recordingPublisher{}
	logger := &recordingLogger{}
	svc, err := NewWebhookService(WebhookServiceDeps{
		Verifier:     payments.NewWebhookVerifier(secret, 0),
		Transactions: store,
		Publisher:    publisher,
		Clock:        fixedClock,
		Logger:       logger.log,
	})
	require.NoError(t, err)
	return svc, store, publisher, logger
}

func TestHandleEventCompletedPaidAdvances(t *testing.T) {
	svc, store, publisher, logger := newWebhookFixture(t, testSecret)
	seedPending(store, "cs_1")
	payload := eventPayload("checkout.session.completed", "cs_1", "paid", "complete")

	outcome, err := svc.HandleEvent(context.Background(), payload, signHeader(payload, testSecret))
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, domain.PaymentStatusPaid, store.get("cs_1").PaymentStatus)
	assert.True(t, logger.has("webhook.transaction_advanced"))

	again, err := svc.HandleEvent(context.Background(), payload, signHeader(payload, testSecret))
	require.NoError(t, err)
	assert.False(t, again.Applied)
	writes, _ := store.stats()
	assert.Equal(t, 1, writes)
	assert.Len(t, publisher.published(), 1)
}

func TestHandleEventInvalidSignatureTouchesNothing(t *testing.T) {
	svc, store, _, logger := newWebhookFixture(t, testSecret)
	seedPending(store, "cs_1")
	payload := eventPayload("checkout.session.completed", "cs_1", "paid", "complete")

	for _, header := range []string{"", "t=1,v1=deadbeef", signHeader(payload, "whsec_attacker")} {
		_, err := svc.HandleEvent(context.Background(), payload, header)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWebhookInvalidSignature)
		kind, _ := KindOf(err)
		assert.Equal(t, KindClient, kind)
	}
	_, calls := store.stats()
	assert.Zero(t, calls, "no storage access before verification")
	assert.Equal(t, domain.PaymentStatusPending, store.get("cs_1").PaymentStatus)
	assert.Equal(t, 3, logger.count("webhook.signature_rejected"))
}

func TestHandleEventFailsClosedWithoutSecret(t *testing.T) {
	svc, store, _, logger := newWebhookFixture(t, "")
	seedPending(store, "cs_1")
	payload := eventPayload("checkout.session.completed", "cs_1", "paid", "complete")

	_, err := svc.HandleEvent(context.Background(), payload, signHeader(payload, testSecret))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWebhookNotConfigured)
	kind, _ := KindOf(err)
	assert.Equal(t, KindConfiguration, kind)
	_, calls := store.stats()
	assert.Zero(t, calls)
	assert.True(t, logger.has("webhook.misconfigured"))
}

func TestHandleEventTransitions(t *testing.T) {
	cases := []struct {
		eventType     string
		paymentStatus string
		want          domain.PaymentStatus
	}{
		{"checkout.session.async_payment_succeeded", "paid", domain.PaymentStatusPaid},
		{"checkout.session.async_payment_failed", "unpaid", domain.PaymentStatusFailed},
		{"checkout.session.expired", "unpaid", domain.PaymentStatusExpired},
		{"checkout.session.completed", "unpaid", domain.PaymentStatusPending},
		{"checkout.session.completed", "no_payment_required", domain.PaymentStatusPending},
		{"payment_intent.created", "", domain.PaymentStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.eventType+"/"+tc.paymentStatus, func(t *testing.T) {
			svc, store, _, _ := newWebhookFixture(t, testSecret)
			seedPending(store, "cs_1")
			payload := eventPayload(tc.eventType, "cs_1", tc.paymentStatus, "complete")
			_, err := svc.HandleEvent(context.Background(), payload, signHeader(payload, testSecret))
			require.NoError(t, err)
			assert.Equal(t, tc.want, store.get("cs_1").PaymentStatus)
		})
	}
}

func TestHandleEventPaidIsTerminal(t *testing.T) {
	svc, store, _, logger := newWebhookFixture(t, testSecret)
	seedPending(store, "cs_1")
	paid := eventPayload("checkout.session.completed", "cs_1", "paid", "complete")
	_, err := svc.HandleEvent(context.Background(), paid, signHeader(paid, testSecret))
	require.NoError(t, err)

	expired := eventPayload("checkout.session.expired", "cs_1", "unpaid", "expired")
	outcome, err := svc.HandleEvent(context.Background(), expired, signHeader(expired, testSecret))
	require.NoError(t, err)
	assert.False(t, outcome.Applied)
	assert.Equal(t, domain.PaymentStatusPaid, store.get("cs_1").PaymentStatus)
	assert.True(t, logger.has("webhook.transition_ignored"))
}

func TestHandleEventReconciliationGapIsAcknowledged(t *testing.T) {
	svc, _, _, logger := newWebhookFixture(t, testSecret)
	payload := eventPayload("checkout.session.completed", "cs_unknown", "paid", "complete")

	outcome, err := svc.HandleEvent(context.Background(), payload, signHeader(payload, testSecret))
	require.NoError(t, err)
	assert.False(t, outcome.Applied)
	assert.True(t, logger.has("webhook.reconciliation_gap"))
}

func TestHandleEventPersistFailureAsksForRedelivery(t *testing.T) {
	svc, store, _, _ := newWebhookFixture(t, testSecret)
	seedPending(store, "cs_1")
	store.advanceErr = repositories.NewUnavailable("transactions.advance", errors.New("down"))
	payload := eventPayload("checkout.session.completed", "cs_1", "paid", "complete")

	_, err := svc.HandleEvent(context.Background(), payload, signHeader(payload, testSecret))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWebhookPersist)
	assert.True(t, IsRetryable(err))
}

func TestHandleEventPublishFailureKeepsTransition(t *testing.T) {
	svc, store, publisher, logger := newWebhookFixture(t, testSecret)
	publisher.err = errors.New("broker down")
	seedPending(store, "cs_1")
	payload := eventPayload("checkout.session.completed", "cs_1", "paid", "complete")

	outcome, err := svc.HandleEvent(context.Background(), payload, signHeader(payload, testSecret))
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, domain.PaymentStatusPaid, store.get("cs_1").PaymentStatus)
	assert.True(t, logger.has("events.publish_failed"))
}

func TestHandleEventMissingSessionID(t *testing.T) {
	svc, _, _, _ := newWebhookFixture(t, testSecret)
	payload := eventPayload("checkout.session.completed", "", "paid", "complete")

	_, err := svc.HandleEvent(context.Background(), payload, signHeader(payload, testSecret))
	assert.ErrorIs(t, err, ErrWebhookInvalidPayload)
}
