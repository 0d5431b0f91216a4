package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

// Gas ceilings for the two writes the relayer performs. The buy routes
// through sale bookkeeping, so it gets generous headroom.
const (
	buyGasLimit     = 500_000
	forwardGasLimit = 100_000
)

var (
	weiPerCoin  = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	centsToUSD  = new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)
	zeroAddress = common.Address{}
)

// ICOContract drives the sale contract on the settlement chain: it prices the
// native coin through the contract's own oracle view, executes purchases with
// the relayer's funds, and forwards sale tokens to buyers.
type ICOContract struct {
	relayer   *Relayer
	icoAddr   common.Address
	tokenAddr common.Address
	saleType  uint8
	referrer  common.Address
	logger    *zap.Logger
}

func NewICOContract(relayer *Relayer, icoAddr, tokenAddr string, saleType uint8, logger *zap.Logger) *ICOContract {
	return &ICOContract{
		relayer:   relayer,
		icoAddr:   common.HexToAddress(icoAddr),
		tokenAddr: common.HexToAddress(tokenAddr),
		saleType:  saleType,
		logger:    logger,
	}
}

// SaleTokenBalance reads the relayer's sale-token balance in token minor
// units.
func (c *ICOContract) SaleTokenBalance(ctx context.Context) (*big.Int, error) {
	_, tokenABI, err := parsedABIs()
	if err != nil {
		return nil, fmt.Errorf("parse token ABI: %w", err)
	}

	data, err := tokenABI.Pack("balanceOf", c.relayer.Address())
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	result, err := c.relayer.Call(ctx, c.tokenAddr, data)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return big.NewInt(0), nil
	}

	var balance *big.Int
	if err := tokenABI.UnpackIntoInterface(&balance, "balanceOf", result); err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if balance == nil {
		balance = big.NewInt(0)
	}

	return balance, nil
}

// QuoteNativeAmount converts a fiat amount in cents into settlement-chain
// wei, using the sale contract's USD valuation of one whole native coin.
func (c *ICOContract) QuoteNativeAmount(ctx context.Context, fiatCents int64) (*big.Int, error) {
	icoABI, _, err := parsedABIs()
	if err != nil {
		return nil, fmt.Errorf("parse ICO ABI: %w", err)
	}

	data, err := icoABI.Pack("calculateUSDAmount", zeroAddress, new(big.Int).Set(weiPerCoin))
	if err != nil {
		return nil, fmt.Errorf("pack calculateUSDAmount: %w", err)
	}

	result, err := c.relayer.Call(ctx, c.icoAddr, data)
	if err != nil {
		return nil, fmt.Errorf("%w: on-chain price read: %v", domain.ErrPriceUnavailable, err)
	}

	var usdPerCoin *big.Int
	if err := icoABI.UnpackIntoInterface(&usdPerCoin, "calculateUSDAmount", result); err != nil {
		return nil, fmt.Errorf("unpack calculateUSDAmount: %w", err)
	}
	if usdPerCoin == nil || usdPerCoin.Sign() <= 0 {
		return nil, fmt.Errorf("%w: contract reported non-positive native price", domain.ErrPriceUnavailable)
	}

	// cents -> 18-decimal USD, then USD -> wei at the contract's rate.
	usd := new(big.Int).Mul(big.NewInt(fiatCents), centsToUSD)
	wei := new(big.Int).Div(new(big.Int).Mul(usd, weiPerCoin), usdPerCoin)

	c.logger.Debug("native amount quoted",
		zap.Int64("fiat_cents", fiatCents),
		zap.String("usd_per_coin", usdPerCoin.String()),
		zap.String("wei", wei.String()))

	return wei, nil
}

// Buy executes the purchase with native coin attached. Whenever a signed
// transaction exists its hash is returned alongside the error, including a
// mined revert (ErrSettlementReverted) and an unresolved receipt wait.
func (c *ICOContract) Buy(ctx context.Context, amountWei *big.Int) (string, error) {
	icoABI, _, err := parsedABIs()
	if err != nil {
		return "", fmt.Errorf("parse ICO ABI: %w", err)
	}

	data, err := icoABI.Pack("buy", c.saleType, zeroAddress, amountWei, c.referrer)
	if err != nil {
		return "", fmt.Errorf("pack buy: %w", err)
	}

	txHash, err := c.relayer.Send(ctx, c.icoAddr, amountWei, data, buyGasLimit)
	if err != nil {
		if txHash == (common.Hash{}) {
			return "", err
		}
		return txHash.Hex(), err
	}

	receipt, err := c.relayer.WaitMined(ctx, txHash)
	if err != nil {
		return txHash.Hex(), err
	}

	if receipt.Status == 0 {
		return txHash.Hex(), fmt.Errorf("%w: buy tx %s reverted", domain.ErrSettlementReverted, txHash.Hex())
	}

	c.logger.Info("purchase executed",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("value_wei", amountWei.String()))

	return txHash.Hex(), nil
}

// Forward transfers purchased sale tokens to the buyer.
func (c *ICOContract) Forward(ctx context.Context, buyer string, amount *big.Int) (string, error) {
	_, tokenABI, err := parsedABIs()
	if err != nil {
		return "", fmt.Errorf("parse token ABI: %w", err)
	}

	data, err := tokenABI.Pack("transfer", common.HexToAddress(buyer), amount)
	if err != nil {
		return "", fmt.Errorf("pack transfer: %w", err)
	}

	txHash, err := c.relayer.Send(ctx, c.tokenAddr, big.NewInt(0), data, forwardGasLimit)
	if err != nil {
		return "", err
	}

	receipt, err := c.relayer.WaitMined(ctx, txHash)
	if err != nil {
		return txHash.Hex(), err
	}

	if receipt.Status == 0 {
		return txHash.Hex(), fmt.Errorf("%w: forward tx %s reverted", domain.ErrSettlementReverted, txHash.Hex())
	}

	c.logger.Info("tokens forwarded",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("buyer", buyer),
		zap.String("amount", amount.String()))

	return txHash.Hex(), nil
}
