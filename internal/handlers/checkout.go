package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/psicolfis/checkout-api/internal/platform/httpx"
	"github.com/psicolfis/checkout-api/internal/platform/idempotency"
	"github.com/psicolfis/checkout-api/internal/platform/requestctx"
	"github.com/psicolfis/checkout-api/internal/services"
)

// MaxCheckoutRequestBody caps the session creation payload.
const MaxCheckoutRequestBody = 8 * 1024

// CheckoutHandlers exposes session creation and status polling.
type CheckoutHandlers struct {
	checkout      services.CheckoutService
	status        services.StatusService
	sessionGuards []func(http.Handler) http.Handler
}

// CheckoutOption customises checkout handlers.
type CheckoutOption func(*CheckoutHandlers)

// WithSessionMiddlewares guards session creation, typically with rate limiting and idempotency.
func WithSessionMiddlewares(mw ...func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		for _, m := range mw {
			if m != nil {
				h.sessionGuards = append(h.sessionGuards, m)
			}
		}
	}
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService, status services.StatusService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		checkout: checkout,
		status:   status,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(h.sessionGuards...).Post("/checkout/session", h.createSession)
	r.Get("/checkout/status/{session_id}", h.getStatus)
}

type checkoutSessionRequest struct {
	AgentID   string `json:"agent_id"`
	OriginURL string `json:"origin_url"`
}

type checkoutSessionResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

type checkoutStatusResponse struct {
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	Stale         bool              `json:"stale,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, MaxCheckoutRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req checkoutSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	agentID := strings.TrimSpace(req.AgentID)
	originURL := strings.TrimSpace(req.OriginURL)
	if agentID == "" || originURL == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "agent_id and origin_url are required", http.StatusBadRequest))
		return
	}

	session, err := h.checkout.CreateSession(ctx, services.CreateSessionCommand{
		ProductKey:     agentID,
		OriginURL:      originURL,
		IdempotencyKey: idempotency.KeyFromContext(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	requestctx.Annotate(ctx, "session_id", session.SessionID)
	requestctx.Annotate(ctx, "product", agentID)

	httpx.WriteJSON(w, http.StatusOK, checkoutSessionResponse{
		URL:       session.URL,
		SessionID: session.SessionID,
	})
}

func (h *CheckoutHandlers) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.status == nil {
		httpx.WriteError(ctx, w, httpx.NewError("status_unavailable", "status service unavailable", http.StatusServiceUnavailable))
		return
	}

	sessionID := strings.TrimSpace(chi.URLParam(r, "session_id"))
	requestctx.Annotate(ctx, "session_id", sessionID)
	view, err := h.status.GetStatus(ctx, sessionID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	metadata := view.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	httpx.WriteJSON(w, http.StatusOK, checkoutStatusResponse{
		Status:        view.Status,
		PaymentStatus: view.PaymentStatus,
		AmountTotal:   view.AmountTotal,
		Currency:      view.Currency,
		Metadata:      metadata,
		Stale:         view.Stale,
	})
	if view.Stale {
		requestctx.Annotate(ctx, "stale", true)
	}
}
