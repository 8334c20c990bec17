package services

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/psicolfis/checkout-api/internal/domain"
	"github.com/psicolfis/checkout-api/internal/payments"
	"github.com/psicolfis/checkout-api/internal/repositories"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type memoryTransactions struct {
	mu         sync.Mutex
	records    map[string]domain.Transaction
	writes     int
	insertErr  error
	advanceErr error
	findErr    error
	calls      int
}

var _ repositories.TransactionRepository = (*memoryTransactions)(nil)

func newMemoryTransactions() *memoryTransactions {
	return &memoryTransactions{records: map[string]domain.Transaction{}}
}

func (m *memoryTransactions) Insert(_ context.Context, txn domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, exists := m.records[txn.SessionID]; exists {
		return repositories.NewConflict("transactions.insert", nil)
	}
	m.records[txn.SessionID] = txn
	m.writes++
	return nil
}

func (m *memoryTransactions) FindBySessionID(_ context.Context, sessionID string) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.findErr != nil {
		return domain.Transaction{}, m.findErr
	}
	txn, ok := m.records[sessionID]
	if !ok {
		return domain.Transaction{}, repositories.NewNotFound("transactions.find", nil)
	}
	return txn, nil
}

func (m *memoryTransactions) AdvanceStatus(_ context.Context, sessionID string, target domain.PaymentStatus, at time.Time) (repositories.AdvanceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.advanceErr != nil {
		return repositories.AdvanceResult{}, m.advanceErr
	}
	current, ok := m.records[sessionID]
	if !ok {
		return repositories.AdvanceResult{}, repositories.NewNotFound("transactions.advance", nil)
	}
	result := repositories.ApplyAdvance(current, target, at)
	if result.Changed {
		m.records[sessionID] = result.Transaction
		m.writes++
	}
	return result, nil
}

func (m *memoryTransactions) Ping(context.Context) error { return nil }

func (m *memoryTransactions) Close() error { return nil }

func (m *memoryTransactions) get(sessionID string) domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[sessionID]
}

func (m *memoryTransactions) stats() (writes, calls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes, m.calls
}

type stubProvider struct {
	mu         sync.Mutex
	createFn   func(req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	retrieveFn func(sessionID string) (payments.SessionDetails, error)
	requests   []payments.CheckoutSessionRequest
}

func (s *stubProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.createFn == nil {
		return payments.CheckoutSession{ID: "cs_test_1", RedirectURL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
	}
	return s.createFn(req)
}

func (s *stubProvider) RetrieveCheckoutSession(_ context.Context, sessionID string) (payments.SessionDetails, error) {
	if s.retrieveFn == nil {
		return payments.SessionDetails{}, errors.New("retrieve not configured")
	}
	return s.retrieveFn(sessionID)
}

func (s *stubProvider) createCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []domain.TransactionStatusChange
	err     error
}

func (p *recordingPublisher) PublishStatusChange(_ context.Context, change domain.TransactionStatusChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return p.err
}

func (p *recordingPublisher) published() []domain.TransactionStatusChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.TransactionStatusChange(nil), p.changes...)
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
	fields []map[string]any
}

func (l *recordingLogger) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	l.fields = append(l.fields, fields)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

func (l *recordingLogger) count(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == event {
			n++
		}
	}
	return n
}
