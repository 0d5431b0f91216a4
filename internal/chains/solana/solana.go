package solana

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

// Chain adapts Solana (mainnet-beta or devnet) via JSON-RPC.
type Chain struct {
	chain  domain.ChainID
	client *rpc.Client
	logger *zap.Logger
}

func New(chain domain.ChainID, rpcURL string, logger *zap.Logger) (*Chain, error) {
	logger.Info("Solana chain initialized",
		zap.String("chain", string(chain)),
		zap.String("rpc", rpcURL))

	return &Chain{
		chain:  chain,
		client: rpc.New(rpcURL),
		logger: logger,
	}, nil
}

func (c *Chain) ChainID() domain.ChainID {
	return c.chain
}

func (c *Chain) NativeDecimals() int {
	return 9
}

// ReceivedAmount returns lamports for native SOL, or the associated token
// account balance in mint minor units for SPL tokens. A wallet or token
// account that does not exist yet is a zero balance.
func (c *Chain) ReceivedAmount(ctx context.Context, address string, asset *domain.Asset) (*big.Int, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid solana address: %w", err)
	}

	if asset.Type == domain.AssetTypeToken {
		if asset.ContractAddr == nil {
			return nil, fmt.Errorf("mint address required for SPL token asset")
		}
		return c.splBalance(ctx, owner, *asset.ContractAddr)
	}

	out, err := c.client.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("%w: solana getBalance: %v", domain.ErrAdapterUnavailable, err)
	}

	return new(big.Int).SetUint64(out.Value), nil
}

func (c *Chain) splBalance(ctx context.Context, owner solana.PublicKey, mintAddr string) (*big.Int, error) {
	mint, err := solana.PublicKeyFromBase58(mintAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid mint address: %w", err)
	}

	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated token address: %w", err)
	}

	out, err := c.client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		// An absent token account means nothing has been received yet.
		if isAccountNotFound(err) {
			c.logger.Debug("token account not found, treating as zero",
				zap.String("owner", owner.String()),
				zap.String("mint", mintAddr))
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("%w: solana getTokenAccountBalance: %v", domain.ErrAdapterUnavailable, err)
	}

	amount, ok := new(big.Int).SetString(out.Value.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token amount %q", out.Value.Amount)
	}

	return amount, nil
}

// TokenDecimals reads the mint's configured decimals.
func (c *Chain) TokenDecimals(ctx context.Context, contractAddr string) (int, error) {
	mint, err := solana.PublicKeyFromBase58(contractAddr)
	if err != nil {
		return 0, fmt.Errorf("invalid mint address: %w", err)
	}

	out, err := c.client.GetTokenSupply(ctx, mint, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("%w: solana getTokenSupply: %v", domain.ErrAdapterUnavailable, err)
	}

	return int(out.Value.Decimals), nil
}

func (c *Chain) ValidateAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("invalid solana address: %w", err)
	}
	return nil
}

func isAccountNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "could not find account")
}
