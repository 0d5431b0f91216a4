package usecase

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ico-relayer/internal/chains"
	"ico-relayer/internal/domain"
	"ico-relayer/internal/hdwallet"
	"ico-relayer/internal/pricing"
	"ico-relayer/internal/qruri"
	"ico-relayer/internal/settlement"
	"ico-relayer/internal/watcher"
)

// CreateSessionRequest is the validated input for a new purchase session.
type CreateSessionRequest struct {
	Chain        string
	TokenSymbol  string // empty means the chain's native asset
	FiatCents    int64
	BuyerAddress string // settlement-chain address receiving sale tokens
}

// CreateSessionResult pairs the stored session with its deposit instruction.
type CreateSessionResult struct {
	Session *domain.Session
	Payment *qruri.Payload
}

// SessionUsecase wires session creation, status, payment notes and the
// settlement trigger together. runCtx bounds the watch goroutines it spawns.
type SessionUsecase struct {
	store    domain.SessionStore
	deriver  *hdwallet.Deriver
	registry *chains.Registry
	oracle   *pricing.Oracle
	executor *settlement.Executor
	watcher  *watcher.Watcher
	tokens   map[domain.ChainID][]*domain.Asset
	runCtx   context.Context
	logger   *zap.Logger
}

func NewSessionUsecase(
	runCtx context.Context,
	store domain.SessionStore,
	deriver *hdwallet.Deriver,
	registry *chains.Registry,
	oracle *pricing.Oracle,
	executor *settlement.Executor,
	w *watcher.Watcher,
	tokens map[domain.ChainID][]*domain.Asset,
	logger *zap.Logger,
) *SessionUsecase {
	return &SessionUsecase{
		store:    store,
		deriver:  deriver,
		registry: registry,
		oracle:   oracle,
		executor: executor,
		watcher:  w,
		tokens:   tokens,
		runCtx:   runCtx,
		logger:   logger,
	}
}

// Create quotes the purchase, derives a fresh deposit address and starts
// watching it. The price is locked here; later market moves do not change the
// required amount.
func (u *SessionUsecase) Create(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResult, error) {
	chain, err := domain.ParseChainID(req.Chain)
	if err != nil {
		return nil, err
	}

	// The chain must have a live adapter, not just be a known identifier.
	if _, err := u.registry.Get(chain); err != nil {
		return nil, err
	}

	if req.FiatCents <= 0 {
		return nil, fmt.Errorf("purchase amount must be positive")
	}

	if !common.IsHexAddress(req.BuyerAddress) {
		return nil, fmt.Errorf("invalid buyer settlement address: %s", req.BuyerAddress)
	}

	asset, err := u.resolveAsset(chain, req.TokenSymbol)
	if err != nil {
		return nil, err
	}

	required, err := u.oracle.RequiredChainAmount(ctx, req.FiatCents, asset.Symbol, asset.Decimals)
	if err != nil {
		return nil, err
	}
	if required.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quoted amount is zero", domain.ErrPriceUnavailable)
	}

	index, err := u.store.NextDerivationIndex(ctx)
	if err != nil {
		return nil, err
	}

	wallet, err := u.deriver.Derive(chain, uint32(index))
	if err != nil {
		return nil, fmt.Errorf("derive deposit address: %w", err)
	}

	session := &domain.Session{
		DerivationIndex:        index,
		DepositAddress:         wallet.Address,
		DepositSecret:          wallet.PrivateKey,
		PayChain:               chain,
		PayType:                asset.Type,
		PayTokenContract:       asset.ContractAddr,
		BuyerSettlementAddress: req.BuyerAddress,
		FiatAmount:             req.FiatCents,
		RequiredChainAmount:    required,
	}

	if err := u.store.Create(ctx, session); err != nil {
		return nil, err
	}

	payment, err := qruri.Build(chain, asset, wallet.Address, required)
	if err != nil {
		return nil, err
	}

	u.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("chain", string(chain)),
		zap.String("asset", asset.Symbol),
		zap.Int64("fiat_cents", req.FiatCents),
		zap.String("required", required.String()),
		zap.String("deposit_address", wallet.Address))

	go u.watcher.Watch(u.runCtx, session)

	return &CreateSessionResult{Session: session, Payment: payment}, nil
}

func (u *SessionUsecase) Get(ctx context.Context, id string) (*domain.Session, error) {
	return u.store.Get(ctx, id)
}

// NotePaymentTx records a client-reported deposit transaction hash. It is a
// hint for support tooling; confirmation still comes from observed balances.
// The conditional update can miss when the watcher confirms the payment
// between the read and the write, so the write retries against fresh state
// rather than dropping the hash silently.
func (u *SessionUsecase) NotePaymentTx(ctx context.Context, id, txHash string) error {
	patch := &domain.PaymentPatch{DepositTxRef: &txHash}

	for attempt := 0; attempt < 3; attempt++ {
		session, err := u.store.Get(ctx, id)
		if err != nil {
			return err
		}

		applied, err := u.store.UpdatePaymentState(ctx, id,
			session.PaymentState, session.PaymentState, patch)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
	}

	return domain.ErrStateConflict
}

// Settle triggers the purchase leg for a confirmed session.
func (u *SessionUsecase) Settle(ctx context.Context, id string) error {
	return u.executor.Execute(ctx, id)
}

// ResumeWatches restarts watch goroutines for sessions that were pending when
// the process last stopped.
func (u *SessionUsecase) ResumeWatches(ctx context.Context, limit int) (int, error) {
	sessions, err := u.store.ListByPaymentState(ctx, domain.PaymentPending, limit)
	if err != nil {
		return 0, err
	}

	for _, session := range sessions {
		go u.watcher.Watch(u.runCtx, session)
	}

	return len(sessions), nil
}

func (u *SessionUsecase) resolveAsset(chain domain.ChainID, symbol string) (*domain.Asset, error) {
	if symbol == "" || symbol == chain.NativeSymbol() {
		return domain.NativeAsset(chain), nil
	}

	for _, asset := range u.tokens[chain] {
		if asset.Symbol == symbol {
			return asset, nil
		}
	}

	return nil, fmt.Errorf("token %s is not accepted on %s", symbol, chain)
}
