package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is an entry of the static checkout catalog.
type Product struct {
	Key                 string
	DisplayName         string
	UnitPrice           decimal.Decimal
	Currency            string
	ProcessorProductRef string
}

// MinorUnits converts the unit price into the smallest currency unit used by the processor.
func (p Product) MinorUnits() int64 {
	return p.UnitPrice.Shift(2).Round(0).IntPart()
}

// PaymentStatus enumerates the lifecycle states of a persisted transaction.
type PaymentStatus string

const (
	// PaymentStatusPending is assigned when the checkout session is created.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the processor confirmed payment.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates an asynchronous payment failure.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusExpired indicates the hosted session expired without payment.
	PaymentStatusExpired PaymentStatus = "expired"
)

// Transaction mirrors a processor checkout session in local storage.
type Transaction struct {
	ID            string
	SessionID     string
	ProductKey    string
	Amount        decimal.Decimal
	Currency      string
	PaymentStatus PaymentStatus
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TransactionStatusChange is emitted after an effective status transition.
type TransactionStatusChange struct {
	TransactionID string
	SessionID     string
	ProductKey    string
	From          PaymentStatus
	To            PaymentStatus
	Amount        decimal.Decimal
	Currency      string
	Source        string
	OccurredAt    time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
