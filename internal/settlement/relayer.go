package settlement

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

// EVMClient is the slice of ethclient.Client the relayer needs.
type EVMClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Relayer owns the settlement-chain operator key and serializes every send
// through one mutex, so transactions leave in strict nonce order. It is the
// only component that signs with this key.
type Relayer struct {
	client  EVMClient
	privKey *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	logger  *zap.Logger

	mu        sync.Mutex
	nonce     uint64
	nonceInit bool
}

func NewRelayer(client EVMClient, privateKeyHex string, chainID int64, logger *zap.Logger) (*Relayer, error) {
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid relayer private key: %w", err)
	}

	address := crypto.PubkeyToAddress(privKey.PublicKey)
	logger.Info("relayer initialized",
		zap.String("address", address.Hex()),
		zap.Int64("chain_id", chainID))

	return &Relayer{
		client:  client,
		privKey: privKey,
		address: address,
		chainID: big.NewInt(chainID),
		logger:  logger,
	}, nil
}

func (r *Relayer) Address() common.Address {
	return r.address
}

// Call performs a read-only contract call.
func (r *Relayer) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	result, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: settlement chain call: %v", domain.ErrAdapterUnavailable, err)
	}
	return result, nil
}

// Send signs and broadcasts one transaction. The mutex holds from nonce
// assignment through broadcast, which keeps concurrent callers nonce-ordered.
func (r *Relayer) Send(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.nonceInit {
		nonce, err := r.client.PendingNonceAt(ctx, r.address)
		if err != nil {
			return common.Hash{}, fmt.Errorf("%w: fetch nonce: %v", domain.ErrAdapterUnavailable, err)
		}
		r.nonce = nonce
		r.nonceInit = true
	}

	gasPrice, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: suggest gas price: %v", domain.ErrAdapterUnavailable, err)
	}

	tx := types.NewTransaction(r.nonce, to, value, gasLimit, gasPrice, data)

	signer := types.LatestSignerForChainID(r.chainID)
	signedTx, err := types.SignTx(tx, signer, r.privKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := r.client.SendTransaction(ctx, signedTx); err != nil {
		// Drop the cached nonce: the chain may or may not have seen this
		// transaction, so resync before the next send. The hash goes back to
		// the caller so the ambiguous broadcast stays traceable.
		r.nonceInit = false
		return signedTx.Hash(), fmt.Errorf("%w: broadcast transaction: %v", domain.ErrAdapterUnavailable, err)
	}

	r.nonce++

	r.logger.Debug("transaction sent",
		zap.String("tx_hash", signedTx.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", signedTx.Nonce()))

	return signedTx.Hash(), nil
}

// WaitMined polls for the receipt until the transaction lands or the context
// ends.
func (r *Relayer) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := r.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for receipt %s: %v", domain.ErrAdapterUnavailable, txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
