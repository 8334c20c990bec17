package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/psicolfis/checkout-api/internal/platform/httpx"
	"github.com/psicolfis/checkout-api/internal/platform/requestctx"
	"github.com/psicolfis/checkout-api/internal/services"
)

const (
	maxWebhookBodySize    = 256 * 1024
	stripeSignatureHeader = "Stripe-Signature"
)

// StripeWebhookHandlers receives processor notifications. The raw body is passed
// untouched to signature verification.
type StripeWebhookHandlers struct {
	webhooks services.WebhookService
}

// NewStripeWebhookHandlers constructs the webhook receiver.
func NewStripeWebhookHandlers(webhooks services.WebhookService) *StripeWebhookHandlers {
	return &StripeWebhookHandlers{webhooks: webhooks}
}

// Routes registers webhook endpoints under the provided router.
func (h *StripeWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

func (h *StripeWebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.webhooks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_not_configured", "webhook endpoint is not configured", http.StatusInternalServerError))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	outcome, err := h.webhooks.HandleEvent(ctx, body, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	requestctx.Annotate(ctx, "stripe_event_id", outcome.EventID)
	requestctx.Annotate(ctx, "stripe_event_type", outcome.EventType)
	if outcome.SessionID != "" {
		requestctx.Annotate(ctx, "session_id", outcome.SessionID)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
