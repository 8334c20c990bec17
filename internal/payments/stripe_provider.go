package payments

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// DefaultTimeout bounds every Stripe call when no explicit timeout is configured.
const DefaultTimeout = 10 * time.Second

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Timeout   time.Duration
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Sessions  stripeSessionAPI
}

// StripeProvider implements Provider using the Stripe Checkout API.
type StripeProvider struct {
	sessions stripeSessionAPI
	account  string
	timeout  time.Duration
	clock    func() time.Time
	logger   StripeLogger
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sc := client.New(apiKey, cfg.Backends)
		sessions = sc.CheckoutSessions
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &StripeProvider{
		sessions: sessions,
		account:  strings.TrimSpace(cfg.AccountID),
		timeout:  timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckoutSession creates a hosted Stripe Checkout session in payment mode.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems:  []*stripe.CheckoutSessionLineItemParams{lineItem(req)},
	}
	params.Context = callCtx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if locale := strings.TrimSpace(req.Locale); locale != "" {
		params.Locale = stripe.String(locale)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = copyMetadata(req.Metadata)
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: copyMetadata(req.Metadata),
		}
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, classifyStripeError(callCtx, "create checkout session", err)
	}
	if session == nil || session.ID == "" {
		return CheckoutSession{}, &ProviderError{Op: "create checkout session", Kind: ErrProviderRejected, Message: "empty session returned"}
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId":  session.ID,
		"currency":   string(session.Currency),
		"unitAmount": req.UnitAmount,
	})

	expiresAt := p.clock().Add(24 * time.Hour)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return CheckoutSession{
		ID:          session.ID,
		RedirectURL: session.URL,
		ExpiresAt:   expiresAt,
	}, nil
}

// RetrieveCheckoutSession reads the current state of a checkout session.
func (p *StripeProvider) RetrieveCheckoutSession(ctx context.Context, sessionID string) (SessionDetails, error) {
	if p == nil {
		return SessionDetails{}, errors.New("stripe: provider is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionDetails{}, &ProviderError{Op: "retrieve checkout session", Kind: ErrSessionNotFound, Message: "session id is required"}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = callCtx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}

	session, err := p.sessions.Get(sessionID, params)
	if err != nil {
		return SessionDetails{}, classifyStripeError(callCtx, "retrieve checkout session", err)
	}
	if session == nil {
		return SessionDetails{}, &ProviderError{Op: "retrieve checkout session", Kind: ErrSessionNotFound, Message: "empty session returned"}
	}

	return SessionDetails{
		ID:            session.ID,
		Status:        string(session.Status),
		PaymentStatus: string(session.PaymentStatus),
		AmountTotal:   session.AmountTotal,
		Currency:      strings.ToLower(string(session.Currency)),
		Metadata:      copyMetadata(session.Metadata),
	}, nil
}

func lineItem(req CheckoutSessionRequest) *stripe.CheckoutSessionLineItemParams {
	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(strings.ToLower(strings.TrimSpace(req.Currency))),
		UnitAmount: stripe.Int64(req.UnitAmount),
	}
	if ref := strings.TrimSpace(req.ProductRef); ref != "" {
		priceData.Product = stripe.String(ref)
	} else {
		priceData.ProductData = &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(req.ProductName),
		}
	}
	return &stripe.CheckoutSessionLineItemParams{
		Quantity:  stripe.Int64(quantity),
		PriceData: priceData,
	}
}

func classifyStripeError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	perr := &ProviderError{Op: op, Kind: ErrProviderRejected, Err: err}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		perr.Code = string(stripeErr.Code)
		perr.StatusCode = stripeErr.HTTPStatusCode
		perr.Message = stripeErr.Msg
		switch {
		case stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound:
			perr.Kind = ErrSessionNotFound
		case stripeErr.Code == stripe.ErrorCodeRateLimit,
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
			stripeErr.Type == stripe.ErrorTypeAPI:
			perr.Kind = ErrProviderTimeout
		}
		return perr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		perr.Kind = ErrProviderTimeout
		perr.Message = "request timed out"
		return perr
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		perr.Kind = ErrProviderTimeout
		perr.Message = "connection failed"
		return perr
	}
	return perr
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
