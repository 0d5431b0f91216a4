package usecase

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

const (
	nativeTransferGas = 21_000
	tokenTransferGas  = 80_000
)

// SweepClient is the slice of ethclient.Client the sweeper needs.
type SweepClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Sweeper drains settled EVM deposit addresses into the treasury. Native
// sweeps leave exactly the transfer gas behind; token sweeps top the deposit
// address up with gas from the treasury key first when it cannot pay its own
// way. Non-EVM chains are collected by separate tooling and are skipped here.
type Sweeper struct {
	store       domain.SessionStore
	clients     map[domain.ChainID]SweepClient
	treasury    common.Address
	treasuryKey *ecdsa.PrivateKey
	logger      *zap.Logger
}

func NewSweeper(store domain.SessionStore, clients map[domain.ChainID]SweepClient, treasuryKeyHex string, logger *zap.Logger) (*Sweeper, error) {
	treasuryKey, err := crypto.HexToECDSA(strings.TrimPrefix(treasuryKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid treasury private key: %w", err)
	}

	return &Sweeper{
		store:       store,
		clients:     clients,
		treasury:    crypto.PubkeyToAddress(treasuryKey.PublicKey),
		treasuryKey: treasuryKey,
		logger:      logger,
	}, nil
}

// SweepOnce processes one batch of sweepable sessions. Per-session failures
// are logged and retried on the next batch.
func (s *Sweeper) SweepOnce(ctx context.Context, limit int) error {
	sessions, err := s.store.ListSweepable(ctx, limit)
	if err != nil {
		return err
	}

	for _, session := range sessions {
		if session.PayChain.Family() != domain.FamilyEVM {
			continue
		}

		if err := s.sweepSession(ctx, session); err != nil {
			s.logger.Warn("sweep failed, will retry",
				zap.String("session_id", session.ID),
				zap.String("chain", string(session.PayChain)),
				zap.Error(err))
		}
	}

	return nil
}

func (s *Sweeper) sweepSession(ctx context.Context, session *domain.Session) error {
	client, ok := s.clients[session.PayChain]
	if !ok {
		return fmt.Errorf("%w: no sweep client for %s", domain.ErrUnsupportedChain, session.PayChain)
	}

	depositKey, err := crypto.HexToECDSA(strings.TrimPrefix(session.DepositSecret, "0x"))
	if err != nil {
		return fmt.Errorf("invalid deposit key: %w", err)
	}
	depositAddr := crypto.PubkeyToAddress(depositKey.PublicKey)

	var txHash string
	if session.PayType == domain.AssetTypeToken {
		txHash, err = s.sweepToken(ctx, client, session, depositKey, depositAddr)
	} else {
		txHash, err = s.sweepNative(ctx, client, session.PayChain, depositKey, depositAddr)
	}
	if err != nil {
		return err
	}
	if txHash == "" {
		// Nothing worth sweeping; mark done so the batch stops revisiting.
		txHash = "skipped-dust"
	}

	if err := s.store.MarkSwept(ctx, session.ID, txHash); err != nil {
		return err
	}

	s.logger.Info("deposit swept",
		zap.String("session_id", session.ID),
		zap.String("chain", string(session.PayChain)),
		zap.String("tx_hash", txHash))

	return nil
}

func (s *Sweeper) sweepNative(ctx context.Context, client SweepClient, chain domain.ChainID, key *ecdsa.PrivateKey, from common.Address) (string, error) {
	balance, err := client.BalanceAt(ctx, from, nil)
	if err != nil {
		return "", fmt.Errorf("%w: balance read: %v", domain.ErrAdapterUnavailable, err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: gas price: %v", domain.ErrAdapterUnavailable, err)
	}

	gasCost := new(big.Int).Mul(gasPrice, big.NewInt(nativeTransferGas))
	amount := new(big.Int).Sub(balance, gasCost)
	if amount.Sign() <= 0 {
		return "", nil
	}

	return s.send(ctx, client, chain, key, from, s.treasury, amount, nil, nativeTransferGas, gasPrice)
}

func (s *Sweeper) sweepToken(ctx context.Context, client SweepClient, session *domain.Session, key *ecdsa.PrivateKey, from common.Address) (string, error) {
	if session.PayTokenContract == nil {
		return "", fmt.Errorf("token session without contract address")
	}
	token := common.HexToAddress(*session.PayTokenContract)

	// Sweep what the address actually holds now. The amount observed at
	// confirmation goes stale the moment anything else arrives.
	tokenBalance, err := s.tokenBalance(ctx, client, token, from)
	if err != nil {
		return "", err
	}
	if tokenBalance.Sign() <= 0 {
		return "", nil
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: gas price: %v", domain.ErrAdapterUnavailable, err)
	}

	gasCost := new(big.Int).Mul(gasPrice, big.NewInt(tokenTransferGas))

	balance, err := client.BalanceAt(ctx, from, nil)
	if err != nil {
		return "", fmt.Errorf("%w: balance read: %v", domain.ErrAdapterUnavailable, err)
	}

	// Deposit addresses receive tokens, not gas. Fund the transfer from the
	// treasury when the address cannot cover it, and wait for the top-up to
	// mine so the transfer does not go out against an unfunded account.
	if balance.Cmp(gasCost) < 0 {
		topUp := new(big.Int).Sub(gasCost, balance)
		topUpTx, err := s.send(ctx, client, session.PayChain, s.treasuryKey, s.treasury, from, topUp, nil, nativeTransferGas, gasPrice)
		if err != nil {
			return "", fmt.Errorf("gas top-up: %w", err)
		}
		if err := s.waitMined(ctx, client, topUpTx); err != nil {
			return "", fmt.Errorf("gas top-up %s: %w", topUpTx, err)
		}
	}

	data := packTransfer(s.treasury, tokenBalance)
	return s.send(ctx, client, session.PayChain, key, from, token, big.NewInt(0), data, tokenTransferGas, gasPrice)
}

func (s *Sweeper) tokenBalance(ctx context.Context, client SweepClient, token, holder common.Address) (*big.Int, error) {
	data := packBalanceOf(holder)

	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: token balance read: %v", domain.ErrAdapterUnavailable, err)
	}
	if len(result) == 0 {
		return big.NewInt(0), nil
	}

	return new(big.Int).SetBytes(result), nil
}

func (s *Sweeper) waitMined(ctx context.Context, client SweepClient, txHash string) error {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	hash := common.HexToHash(txHash)
	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == 0 {
				return fmt.Errorf("transaction reverted")
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for receipt: %v", domain.ErrAdapterUnavailable, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) send(ctx context.Context, client SweepClient, chain domain.ChainID, key *ecdsa.PrivateKey, from, to common.Address, value *big.Int, data []byte, gasLimit uint64, gasPrice *big.Int) (string, error) {
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("%w: fetch nonce: %v", domain.ErrAdapterUnavailable, err)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signer := types.LatestSignerForChainID(big.NewInt(chain.EVMChainID()))
	signedTx, err := types.SignTx(tx, signer, key)
	if err != nil {
		return "", fmt.Errorf("sign sweep tx: %w", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("%w: broadcast sweep tx: %v", domain.ErrAdapterUnavailable, err)
	}

	return signedTx.Hash().Hex(), nil
}

// packTransfer ABI-encodes transfer(address,uint256) by hand: selector plus
// two left-padded words.
func packTransfer(to common.Address, amount *big.Int) []byte {
	selector := crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

	data := make([]byte, 0, 4+64)
	data = append(data, selector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)

	return data
}

func packBalanceOf(holder common.Address) []byte {
	selector := crypto.Keccak256([]byte("balanceOf(address)"))[:4]

	data := make([]byte, 0, 4+32)
	data = append(data, selector...)
	data = append(data, common.LeftPadBytes(holder.Bytes(), 32)...)

	return data
}
