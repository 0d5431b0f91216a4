package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

// Chain adapts one EVM network (Ethereum, Polygon, and their testnets) to
// the engine's capability surface.
type Chain struct {
	chain  domain.ChainID
	client *ethclient.Client
	logger *zap.Logger
}

func New(chain domain.ChainID, rpcURL string, logger *zap.Logger) (*Chain, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", chain, err)
	}

	logger.Info("EVM chain initialized",
		zap.String("chain", string(chain)),
		zap.String("rpc", rpcURL))

	return &Chain{
		chain:  chain,
		client: client,
		logger: logger,
	}, nil
}

func (c *Chain) ChainID() domain.ChainID {
	return c.chain
}

// Client exposes the underlying RPC connection for components that send
// transactions on this network.
func (c *Chain) Client() *ethclient.Client {
	return c.client
}

func (c *Chain) NativeDecimals() int {
	return c.chain.NativeDecimals()
}

// ReceivedAmount returns the address balance in wei, or the ERC-20 balance
// in token minor units. An address with no history is a zero balance.
func (c *Chain) ReceivedAmount(ctx context.Context, address string, asset *domain.Asset) (*big.Int, error) {
	if err := c.ValidateAddress(address); err != nil {
		return nil, err
	}

	if asset.Type == domain.AssetTypeToken {
		if asset.ContractAddr == nil {
			return nil, fmt.Errorf("contract address required for token asset")
		}
		return c.erc20BalanceOf(ctx, *asset.ContractAddr, address)
	}

	balance, err := c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s balance query: %v", domain.ErrAdapterUnavailable, c.chain, err)
	}

	return balance, nil
}

// TokenDecimals queries the ERC-20 decimals() function.
func (c *Chain) TokenDecimals(ctx context.Context, contractAddr string) (int, error) {
	return c.erc20Decimals(ctx, contractAddr)
}

// ValidateAddress checks hex format and, for mixed-case input, the EIP-55
// checksum. All-lowercase and all-uppercase addresses carry no checksum and
// pass on format alone.
func (c *Chain) ValidateAddress(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid EVM address format: %s", address)
	}

	hexPart := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if hexPart == strings.ToLower(hexPart) || hexPart == strings.ToUpper(hexPart) {
		return nil
	}

	if common.HexToAddress(address).Hex() != address {
		return fmt.Errorf("invalid address checksum: %s", address)
	}

	return nil
}
