package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/psicolfis/checkout-api/internal/platform/httpx"
	"github.com/psicolfis/checkout-api/internal/services"
)

const upstreamRetryAfter = 2 * time.Second

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
	}
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutUnknownProduct):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_product", "unknown product", http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrCheckoutInvalidOrigin):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_origin_url", "origin_url must be an absolute http(s) URL", http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrStatusInvalidSession):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_session_id", "session id is required", http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrStatusSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "checkout session not found", http.StatusNotFound))
		return
	case errors.Is(err, services.ErrWebhookInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrWebhookInvalidPayload):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "webhook payload could not be parsed", http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrWebhookNotConfigured):
		httpx.WriteError(ctx, w, httpx.NewError("webhook_not_configured", "webhook endpoint is not configured", http.StatusInternalServerError))
		return
	}

	kind, _ := services.KindOf(err)
	switch kind {
	case services.KindClient:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case services.KindUpstream:
		if services.IsRetryable(err) {
			httpx.WriteError(ctx, w, httpx.NewError("upstream_unavailable", err.Error(), http.StatusServiceUnavailable).WithRetryAfter(upstreamRetryAfter))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("upstream_error", err.Error(), http.StatusBadGateway))
	case services.KindConfiguration:
		httpx.WriteError(ctx, w, httpx.NewError("misconfigured", "server is misconfigured", http.StatusInternalServerError))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
