package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

// Minimal ERC-20 ABI: the engine only reads balances and decimals here.
const erc20ABI = `[
	{
		"constant": true,
		"inputs": [{"name": "_owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"type": "function"
	}
]`

var (
	erc20ABIOnce   sync.Once
	erc20ABIParsed abi.ABI
	erc20ABIErr    error
)

func parsedERC20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABIParsed, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABI))
	})
	return erc20ABIParsed, erc20ABIErr
}

func (c *Chain) erc20BalanceOf(ctx context.Context, contractAddr, holder string) (*big.Int, error) {
	parsedABI, err := parsedERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse ERC-20 ABI: %w", err)
	}

	data, err := parsedABI.Pack("balanceOf", common.HexToAddress(holder))
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	contract := common.HexToAddress(contractAddr)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: balanceOf call on %s: %v", domain.ErrAdapterUnavailable, c.chain, err)
	}

	// Empty result means the address never touched the token.
	if len(result) == 0 {
		c.logger.Debug("empty balanceOf result, treating as zero",
			zap.String("holder", holder),
			zap.String("contract", contractAddr))
		return big.NewInt(0), nil
	}

	var balance *big.Int
	if err := parsedABI.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if balance == nil {
		balance = big.NewInt(0)
	}

	return balance, nil
}

func (c *Chain) erc20Decimals(ctx context.Context, contractAddr string) (int, error) {
	parsedABI, err := parsedERC20ABI()
	if err != nil {
		return 0, fmt.Errorf("parse ERC-20 ABI: %w", err)
	}

	data, err := parsedABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("pack decimals: %w", err)
	}

	contract := common.HexToAddress(contractAddr)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: decimals call on %s: %v", domain.ErrAdapterUnavailable, c.chain, err)
	}

	var decimals uint8
	if err := parsedABI.UnpackIntoInterface(&decimals, "decimals", result); err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}

	return int(decimals), nil
}
