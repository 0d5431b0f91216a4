package usecase

import (
	"context"
	"math/big"
	"sync"

	"ico-relayer/internal/domain"
)

// memStore is an in-memory SessionStore with the same conditional-update
// semantics as the Postgres implementation.
type memStore struct {
	mu        sync.Mutex
	nextIndex int64
	sessions  map[string]*domain.Session
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*domain.Session)}
}

func (s *memStore) NextDerivationIndex(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.nextIndex
	s.nextIndex++
	return index, nil
}

func (s *memStore) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.PaymentState = domain.PaymentPending
	session.SettlementState = domain.SettlementPending
	s.sessions[session.ID] = session
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *memStore) UpdatePaymentState(ctx context.Context, id string, from, to domain.PaymentState, patch *domain.PaymentPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.PaymentState != from {
		return false, nil
	}
	session.PaymentState = to
	if patch != nil {
		if patch.DepositTxRef != nil {
			session.DepositTxRef = patch.DepositTxRef
		}
		if patch.ConfirmedAt != nil {
			session.ConfirmedAt = patch.ConfirmedAt
		}
	}
	return true, nil
}

func (s *memStore) UpdateSettlementState(ctx context.Context, id string, from, to domain.SettlementState, patch *domain.SettlementPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || session.SettlementState != from {
		return false, nil
	}
	session.SettlementState = to
	if patch != nil {
		if patch.SettlementTxRef != nil {
			session.SettlementTxRef = patch.SettlementTxRef
		}
		if patch.ForwardTxRef != nil {
			session.ForwardTxRef = patch.ForwardTxRef
		}
		if patch.FailureReason != nil {
			session.FailureReason = patch.FailureReason
		}
		if patch.ExecutedAt != nil {
			session.ExecutedAt = patch.ExecutedAt
		}
	}
	return true, nil
}

func (s *memStore) RecordObservedAmount(ctx context.Context, id string, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.LastObservedAmount = new(big.Int).Set(amount)
	}
	return nil
}

func (s *memStore) ListByPaymentState(ctx context.Context, state domain.PaymentState, limit int) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Session
	for _, session := range s.sessions {
		if session.PaymentState == state && len(out) < limit {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memStore) ListSweepable(ctx context.Context, limit int) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Session
	for _, session := range s.sessions {
		if session.SettlementState == domain.SettlementExecuted && session.SweepTxRef == nil && len(out) < limit {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memStore) MarkSwept(ctx context.Context, id, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.SweepTxRef = &txRef
	return nil
}
