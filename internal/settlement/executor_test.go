package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

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

// fakeChain scripts the settlement network. Balance reads alternate between
// before and after around the buy, matching the balance-diff measurement.
type fakeChain struct {
	mu            sync.Mutex
	balanceBefore *big.Int
	balanceAfter  *big.Int
	bought        bool

	quoteErr error
	buyErr   error

	buyCalls     atomic.Int64
	forwardCalls atomic.Int64

	forwardedTo     string
	forwardedAmount *big.Int
}

func (f *fakeChain) SaleTokenBalance(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bought {
		return new(big.Int).Set(f.balanceAfter), nil
	}
	return new(big.Int).Set(f.balanceBefore), nil
}

func (f *fakeChain) QuoteNativeAmount(ctx context.Context, fiatCents int64) (*big.Int, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return big.NewInt(fiatCents * 1_000_000), nil
}

func (f *fakeChain) Buy(ctx context.Context, amountWei *big.Int) (string, error) {
	f.buyCalls.Add(1)
	if f.buyErr != nil {
		return "0xbuyfailed", f.buyErr
	}
	f.mu.Lock()
	f.bought = true
	f.mu.Unlock()
	return "0xbuy", nil
}

func (f *fakeChain) Forward(ctx context.Context, buyer string, amount *big.Int) (string, error) {
	f.forwardCalls.Add(1)
	f.mu.Lock()
	f.forwardedTo = buyer
	f.forwardedAmount = new(big.Int).Set(amount)
	f.mu.Unlock()
	return "0xforward", nil
}

func confirmedSession(t *testing.T, store *memStore) *domain.Session {
	t.Helper()
	session := &domain.Session{
		ID:                     "s-1",
		PayChain:               domain.ChainEthereum,
		PayType:                domain.AssetTypeNative,
		BuyerSettlementAddress: "0x000000000000000000000000000000000000dEaD",
		FiatAmount:             5000,
		RequiredChainAmount:    big.NewInt(1),
	}
	require.NoError(t, store.Create(context.Background(), session))
	applied, err := store.UpdatePaymentState(context.Background(), session.ID,
		domain.PaymentPending, domain.PaymentConfirmed, nil)
	require.NoError(t, err)
	require.True(t, applied)
	return session
}

func TestExecuteForwardsBalanceDiff(t *testing.T) {
	store := newMemStore()
	session := confirmedSession(t, store)

	chain := &fakeChain{
		balanceBefore: big.NewInt(1000),
		balanceAfter:  big.NewInt(1450),
	}
	executor := NewExecutor(store, chain, zap.NewNop())

	require.NoError(t, executor.Execute(context.Background(), session.ID))

	assert.Equal(t, "0x000000000000000000000000000000000000dEaD", chain.forwardedTo)
	assert.Equal(t, big.NewInt(450), chain.forwardedAmount)

	stored, err := store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementExecuted, stored.SettlementState)
	require.NotNil(t, stored.SettlementTxRef)
	assert.Equal(t, "0xbuy", *stored.SettlementTxRef)
	require.NotNil(t, stored.ForwardTxRef)
	assert.Equal(t, "0xforward", *stored.ForwardTxRef)
	assert.NotNil(t, stored.ExecutedAt)
}

func TestExecuteRequiresConfirmedPayment(t *testing.T) {
	store := newMemStore()
	session := &domain.Session{ID: "s-2", RequiredChainAmount: big.NewInt(1)}
	require.NoError(t, store.Create(context.Background(), session))

	executor := NewExecutor(store, &fakeChain{
		balanceBefore: big.NewInt(0),
		balanceAfter:  big.NewInt(0),
	}, zap.NewNop())

	err := executor.Execute(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotConfirmed)
}

func TestExecuteExactlyOnceUnderConcurrency(t *testing.T) {
	store := newMemStore()
	session := confirmedSession(t, store)

	chain := &fakeChain{
		balanceBefore: big.NewInt(0),
		balanceAfter:  big.NewInt(100),
	}
	executor := NewExecutor(store, chain, zap.NewNop())

	const triggers = 8
	errs := make(chan error, triggers)
	var wg sync.WaitGroup
	for i := 0; i < triggers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- executor.Execute(context.Background(), session.ID)
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, alreadyExecuted int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrAlreadyExecuted):
			alreadyExecuted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, triggers-1, alreadyExecuted)
	assert.Equal(t, int64(1), chain.buyCalls.Load())
	assert.Equal(t, int64(1), chain.forwardCalls.Load())
}

func TestExecuteRevertIsTerminal(t *testing.T) {
	store := newMemStore()
	session := confirmedSession(t, store)

	chain := &fakeChain{
		balanceBefore: big.NewInt(0),
		balanceAfter:  big.NewInt(0),
		buyErr:        fmt.Errorf("%w: buy tx reverted", domain.ErrSettlementReverted),
	}
	executor := NewExecutor(store, chain, zap.NewNop())

	err := executor.Execute(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrSettlementReverted)

	stored, err := store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFailed, stored.SettlementState)
	assert.NotNil(t, stored.FailureReason)

	// A terminal failure never retries the purchase.
	err = executor.Execute(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyExecuted)
	assert.Equal(t, int64(1), chain.buyCalls.Load())
}

func TestExecuteBuyFailureAfterBroadcastIsTerminal(t *testing.T) {
	store := newMemStore()
	session := confirmedSession(t, store)

	// The purchase went out but the receipt wait died with the RPC. The
	// transaction may still mine, so the session must land in failed with the
	// hash recorded, and no later trigger may buy again.
	chain := &fakeChain{
		balanceBefore: big.NewInt(0),
		balanceAfter:  big.NewInt(100),
		buyErr:        fmt.Errorf("%w: waiting for receipt: context deadline exceeded", domain.ErrAdapterUnavailable),
	}
	executor := NewExecutor(store, chain, zap.NewNop())

	err := executor.Execute(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrAdapterUnavailable)

	stored, err := store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFailed, stored.SettlementState)
	require.NotNil(t, stored.SettlementTxRef)
	assert.Equal(t, "0xbuyfailed", *stored.SettlementTxRef)
	require.NotNil(t, stored.FailureReason)

	err = executor.Execute(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyExecuted)
	assert.Equal(t, int64(1), chain.buyCalls.Load())
}

func TestExecuteReleasesClaimOnTransientFailure(t *testing.T) {
	store := newMemStore()
	session := confirmedSession(t, store)

	chain := &fakeChain{
		balanceBefore: big.NewInt(0),
		balanceAfter:  big.NewInt(100),
		quoteErr:      fmt.Errorf("%w: rpc down", domain.ErrPriceUnavailable),
	}
	executor := NewExecutor(store, chain, zap.NewNop())

	err := executor.Execute(context.Background(), session.ID)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	stored, err := store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementPending, stored.SettlementState)

	// The claim was released, so a later trigger succeeds.
	chain.quoteErr = nil
	require.NoError(t, executor.Execute(context.Background(), session.ID))

	stored, err = store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementExecuted, stored.SettlementState)
}

func TestExecuteZeroDeliveryFails(t *testing.T) {
	store := newMemStore()
	session := confirmedSession(t, store)

	chain := &fakeChain{
		balanceBefore: big.NewInt(500),
		balanceAfter:  big.NewInt(500),
	}
	executor := NewExecutor(store, chain, zap.NewNop())

	err := executor.Execute(context.Background(), session.ID)
	assert.Error(t, err)

	stored, err := store.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFailed, stored.SettlementState)
	assert.Equal(t, int64(0), chain.forwardCalls.Load())
}
