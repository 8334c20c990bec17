package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/psicolfis/checkout-api/internal/domain"
	"github.com/psicolfis/checkout-api/internal/payments"
	"github.com/psicolfis/checkout-api/internal/repositories"
)

const (
	defaultSuccessPath = "/gracias?session_id={CHECKOUT_SESSION_ID}"
	defaultCancelPath  = "/cancelado"
	defaultSourceTag   = "psicolfis-web"
)

// Transaction metadata keys.
const (
	MetadataProductName = "product_name"
	MetadataProductKey  = "product_key"
	MetadataSource      = "source"
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Catalog      productCatalog
	Payments     sessionCreator
	Transactions repositories.TransactionRepository
	SuccessPath  string
	CancelPath   string
	SourceTag    string
	Locale       string
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       EventLogger
}

type checkoutService struct {
	catalog      productCatalog
	payments     sessionCreator
	transactions repositories.TransactionRepository
	successPath  string
	cancelPath   string
	sourceTag    string
	locale       string
	now          func() time.Time
	newID        func() string
	logger       EventLogger
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: catalog is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	if deps.Transactions == nil {
		return nil, errors.New("checkout service: transaction repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}

	return &checkoutService{
		catalog:      deps.Catalog,
		payments:     deps.Payments,
		transactions: deps.Transactions,
		successPath:  normalisePath(deps.SuccessPath, defaultSuccessPath),
		cancelPath:   normalisePath(deps.CancelPath, defaultCancelPath),
		sourceTag:    firstNonEmpty(deps.SourceTag, defaultSourceTag),
		locale:       strings.TrimSpace(deps.Locale),
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  newID,
		logger: logger,
	}, nil
}

// CreateSession validates the request, opens a processor session and records a pending transaction.
func (s *checkoutService) CreateSession(ctx context.Context, cmd CreateSessionCommand) (CheckoutSession, error) {
	product, err := s.catalog.Lookup(cmd.ProductKey)
	if err != nil {
		return CheckoutSession{}, clientError(ErrCheckoutUnknownProduct, err)
	}
	origin, err := parseOrigin(cmd.OriginURL)
	if err != nil {
		return CheckoutSession{}, clientError(ErrCheckoutInvalidOrigin, err)
	}

	metadata := map[string]string{
		MetadataProductName: product.DisplayName,
		MetadataProductKey:  product.Key,
		MetadataSource:      s.sourceTag,
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		ProductName:    product.DisplayName,
		ProductRef:     product.ProcessorProductRef,
		UnitAmount:     product.MinorUnits(),
		Currency:       product.Currency,
		Quantity:       1,
		SuccessURL:     origin + s.successPath,
		CancelURL:      origin + s.cancelPath,
		Locale:         s.locale,
		Metadata:       metadata,
		IdempotencyKey: strings.TrimSpace(cmd.IdempotencyKey),
	})
	if err != nil {
		s.logger(ctx, "checkout.provider_failed", map[string]any{
			"productKey": product.Key,
			"retryable":  payments.IsRetryable(err),
			"error":      err.Error(),
		})
		return CheckoutSession{}, upstreamError(ErrCheckoutUpstream, err, payments.IsRetryable(err))
	}

	now := s.now()
	txn := domain.Transaction{
		ID:            s.newID(),
		SessionID:     session.ID,
		ProductKey:    product.Key,
		Amount:        product.UnitPrice,
		Currency:      product.Currency,
		PaymentStatus: domain.PaymentStatusPending,
		Metadata:      metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.transactions.Insert(ctx, txn); err != nil {
		if repositories.IsConflict(err) {
			s.logger(ctx, "checkout.session_reused", map[string]any{
				"sessionId":  session.ID,
				"productKey": product.Key,
			})
			return toCheckoutSession(session), nil
		}
		s.logger(ctx, "checkout.persist_failed", map[string]any{
			"sessionId":  session.ID,
			"productKey": product.Key,
			"error":      err.Error(),
		})
		return CheckoutSession{}, upstreamError(ErrCheckoutPersist, err, isRepositoryUnavailable(err))
	}

	s.logger(ctx, "checkout.session_created", map[string]any{
		"sessionId":     session.ID,
		"transactionId": txn.ID,
		"productKey":    product.Key,
		"amount":        product.UnitPrice.StringFixed(2),
		"currency":      product.Currency,
	})
	return toCheckoutSession(session), nil
}

func toCheckoutSession(session payments.CheckoutSession) CheckoutSession {
	return CheckoutSession{
		SessionID: session.ID,
		URL:       session.RedirectURL,
		ExpiresAt: session.ExpiresAt,
	}
}

// parseOrigin accepts an absolute http(s) URL without query or fragment and
// returns it without a trailing slash.
func parseOrigin(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("origin url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("origin url must use http or https")
	}
	if parsed.Host == "" || parsed.User != nil {
		return "", errors.New("origin url must name a host")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", errors.New("origin url must not carry a query or fragment")
	}
	return strings.TrimRight(parsed.Scheme+"://"+parsed.Host+parsed.EscapedPath(), "/"), nil
}

func normalisePath(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	if !strings.HasPrefix(value, "/") {
		value = "/" + value
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
