package services

import "errors"

// ErrorKind classifies service failures for transport mapping.
type ErrorKind string

const (
	// KindClient marks a request the caller must fix.
	KindClient ErrorKind = "client"
	// KindUpstream marks a processor or persistence failure.
	KindUpstream ErrorKind = "upstream"
	// KindConfiguration marks a missing or invalid server setting.
	KindConfiguration ErrorKind = "configuration"
)

var (
	// ErrCheckoutUnknownProduct indicates the product key is not in the catalog.
	ErrCheckoutUnknownProduct = errors.New("checkout: unknown product")
	// ErrCheckoutInvalidOrigin indicates the origin URL is not an absolute http(s) URL.
	ErrCheckoutInvalidOrigin = errors.New("checkout: invalid origin url")
	// ErrCheckoutUpstream indicates the processor refused or failed to create the session.
	ErrCheckoutUpstream = errors.New("checkout: payment provider unavailable")
	// ErrCheckoutPersist indicates the session was created but could not be recorded.
	ErrCheckoutPersist = errors.New("checkout: transaction could not be recorded")

	// ErrStatusInvalidSession indicates a blank session id.
	ErrStatusInvalidSession = errors.New("status: session id is required")
	// ErrStatusSessionNotFound indicates the processor does not know the session.
	ErrStatusSessionNotFound = errors.New("status: session not found")
	// ErrStatusUpstream indicates the processor could not be queried and no local record exists.
	ErrStatusUpstream = errors.New("status: payment provider unavailable")

	// ErrWebhookInvalidSignature indicates a delivery failed signature verification.
	ErrWebhookInvalidSignature = errors.New("webhook: invalid signature")
	// ErrWebhookInvalidPayload indicates a signed delivery that could not be interpreted.
	ErrWebhookInvalidPayload = errors.New("webhook: invalid payload")
	// ErrWebhookNotConfigured indicates the signing secret is missing.
	ErrWebhookNotConfigured = errors.New("webhook: signing secret not configured")
	// ErrWebhookPersist indicates the transition could not be stored; the processor should redeliver.
	ErrWebhookPersist = errors.New("webhook: transaction could not be updated")
)

// Error attaches a taxonomy kind to a sentinel. errors.Is matches both the sentinel and the cause.
type Error struct {
	Kind      ErrorKind
	Err       error
	Cause     error
	Retryable bool
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := []error{e.Err}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// KindOf returns the taxonomy kind of err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind, true
	}
	return "", false
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Retryable
}

func clientError(sentinel error, cause error) error {
	return &Error{Kind: KindClient, Err: sentinel, Cause: cause}
}

func upstreamError(sentinel error, cause error, retryable bool) error {
	return &Error{Kind: KindUpstream, Err: sentinel, Cause: cause, Retryable: retryable}
}

func configurationError(sentinel error) error {
	return &Error{Kind: KindConfiguration, Err: sentinel}
}
