package tron

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

// Chain adapts Tron (mainnet or Shasta) through TronGrid's REST API.
type Chain struct {
	chain  domain.ChainID
	client *GridClient
	logger *zap.Logger
}

func New(chain domain.ChainID, gridURL, apiKey string, logger *zap.Logger) (*Chain, error) {
	logger.Info("Tron chain initialized",
		zap.String("chain", string(chain)),
		zap.String("grid", gridURL))

	return &Chain{
		chain:  chain,
		client: NewGridClient(gridURL, apiKey, logger),
		logger: logger,
	}, nil
}

func (c *Chain) ChainID() domain.ChainID {
	return c.chain
}

func (c *Chain) NativeDecimals() int {
	return 6
}

// ReceivedAmount returns the TRX balance in SUN, or the TRC-20 balance in
// token minor units. An account TronGrid has never seen is a zero balance.
func (c *Chain) ReceivedAmount(ctx context.Context, addr string, asset *domain.Asset) (*big.Int, error) {
	if err := c.ValidateAddress(addr); err != nil {
		return nil, err
	}

	if asset.Type == domain.AssetTypeToken {
		if asset.ContractAddr == nil {
			return nil, fmt.Errorf("contract address required for TRC20 asset")
		}
		return c.trc20BalanceOf(ctx, *asset.ContractAddr, addr)
	}

	info, exists, err := c.client.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !exists {
		c.logger.Debug("account not found, treating as zero",
			zap.String("address", addr))
		return big.NewInt(0), nil
	}

	return big.NewInt(info.Balance), nil
}

func (c *Chain) trc20BalanceOf(ctx context.Context, contractAddr, holder string) (*big.Int, error) {
	param, err := addressParam(holder)
	if err != nil {
		return nil, err
	}

	result, err := c.client.TriggerConstantContract(ctx, holder, contractAddr, "balanceOf(address)", param)
	if err != nil {
		return nil, err
	}
	if !result.Result.Result {
		return nil, fmt.Errorf("%w: balanceOf call failed: %s", domain.ErrAdapterUnavailable, result.Result.Message)
	}
	if len(result.ConstantResult) == 0 {
		return big.NewInt(0), nil
	}

	raw, err := hex.DecodeString(result.ConstantResult[0])
	if err != nil {
		return nil, fmt.Errorf("decode balanceOf result: %w", err)
	}

	return new(big.Int).SetBytes(raw), nil
}

// TokenDecimals calls the TRC-20 decimals() function.
func (c *Chain) TokenDecimals(ctx context.Context, contractAddr string) (int, error) {
	result, err := c.client.TriggerConstantContract(ctx, contractAddr, contractAddr, "decimals()", "")
	if err != nil {
		return 0, err
	}
	if !result.Result.Result {
		return 0, fmt.Errorf("%w: decimals call failed: %s", domain.ErrAdapterUnavailable, result.Result.Message)
	}
	if len(result.ConstantResult) == 0 {
		return 0, fmt.Errorf("empty decimals result for %s", contractAddr)
	}

	raw, err := hex.DecodeString(result.ConstantResult[0])
	if err != nil {
		return 0, fmt.Errorf("decode decimals result: %w", err)
	}

	return int(new(big.Int).SetBytes(raw).Int64()), nil
}

func (c *Chain) ValidateAddress(addr string) error {
	if !strings.HasPrefix(addr, "T") || len(addr) != 34 {
		return fmt.Errorf("invalid tron address format: %s", addr)
	}
	if _, err := address.Base58ToAddress(addr); err != nil {
		return fmt.Errorf("invalid tron address: %w", err)
	}
	return nil
}

// addressParam ABI-encodes a base58 address for a constant call: strip the
// 0x41 prefix byte, left-pad to 32 bytes, hex-encode.
func addressParam(base58Addr string) (string, error) {
	decoded, err := address.Base58ToAddress(base58Addr)
	if err != nil {
		return "", fmt.Errorf("invalid tron address: %w", err)
	}
	return hex.EncodeToString(common.LeftPadBytes(decoded.Bytes()[1:], 32)), nil
}
