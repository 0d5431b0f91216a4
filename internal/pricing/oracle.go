package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

const (
	defaultBinanceURL = "https://api.binance.com"
	spotCachePrefix   = "spot_usd:"
)

// Oracle converts fiat purchase amounts into chain minor units using spot
// prices. Prices come from the Binance ticker endpoint with a short Redis
// cache in front; stablecoins are pinned to 1 USD. Any failure to obtain a
// price fails the conversion, never a guessed price.
type Oracle struct {
	httpClient *http.Client
	baseURL    string
	redis      *redis.Client
	cacheTTL   time.Duration
	logger     *zap.Logger
}

type Option func(*Oracle)

// WithRedisCache enables spot price caching. A nil client disables it.
func WithRedisCache(client *redis.Client, ttl time.Duration) Option {
	return func(o *Oracle) {
		o.redis = client
		o.cacheTTL = ttl
	}
}

// WithBaseURL overrides the ticker endpoint, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(o *Oracle) {
		o.baseURL = baseURL
	}
}

func NewOracle(logger *zap.Logger, opts ...Option) *Oracle {
	o := &Oracle{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:  defaultBinanceURL,
		cacheTTL: 10 * time.Second,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SpotPriceUSD returns the USD price of one whole unit of the asset symbol.
func (o *Oracle) SpotPriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if isStablecoin(symbol) {
		return decimal.NewFromInt(1), nil
	}

	if cached, ok := o.cachedPrice(ctx, symbol); ok {
		return cached, nil
	}

	price, err := o.fetchTickerPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}

	o.storePrice(ctx, symbol, price)
	return price, nil
}

// RequiredChainAmount converts a fiat amount in cents into the asset's minor
// units, rounded down.
func (o *Oracle) RequiredChainAmount(ctx context.Context, fiatCents int64, symbol string, decimals int) (*big.Int, error) {
	price, err := o.SpotPriceUSD(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive price for %s", domain.ErrPriceUnavailable, symbol)
	}

	usd := decimal.NewFromInt(fiatCents).Div(decimal.NewFromInt(100))
	minor := usd.Div(price).Mul(decimal.New(1, int32(decimals))).Floor()

	o.logger.Debug("fiat amount converted",
		zap.Int64("fiat_cents", fiatCents),
		zap.String("symbol", symbol),
		zap.String("price_usd", price.String()),
		zap.String("minor_units", minor.String()))

	return minor.BigInt(), nil
}

func (o *Oracle) fetchTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%sUSDT", o.baseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: ticker request failed: %v", domain.ErrPriceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("%w: ticker status %d: %s", domain.ErrPriceUnavailable, resp.StatusCode, string(body))
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode ticker response: %v", domain.ErrPriceUnavailable, err)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid ticker price %q: %v", domain.ErrPriceUnavailable, ticker.Price, err)
	}

	return price, nil
}

func (o *Oracle) cachedPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	if o.redis == nil {
		return decimal.Zero, false
	}

	raw, err := o.redis.Get(ctx, spotCachePrefix+symbol).Result()
	if err != nil {
		if err != redis.Nil {
			o.logger.Warn("price cache read failed", zap.Error(err))
		}
		return decimal.Zero, false
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

func (o *Oracle) storePrice(ctx context.Context, symbol string, price decimal.Decimal) {
	if o.redis == nil {
		return
	}
	if err := o.redis.Set(ctx, spotCachePrefix+symbol, price.String(), o.cacheTTL).Err(); err != nil {
		o.logger.Warn("price cache write failed", zap.Error(err))
	}
}

func isStablecoin(symbol string) bool {
	switch symbol {
	case "USDT", "USDC", "BUSD", "DAI":
		return true
	}
	return false
}
