package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ico-relayer/internal/domain"
)

type Config struct {
	HTTP       HTTPConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Wallet     WalletConfig
	Chains     ChainsConfig
	Settlement SettlementConfig
	Workers    WorkersConfig
}

type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type WalletConfig struct {
	// MasterMnemonic is the BIP-39 seed every deposit address derives from.
	// Never logged.
	MasterMnemonic string
}

type ChainsConfig struct {
	Enabled []domain.ChainID

	EthereumRPC     string
	SepoliaRPC      string
	PolygonRPC      string
	AmoyRPC         string
	SolanaRPC       string
	SolanaDevnetRPC string
	BitcoinEsplora  string
	BitcoinTestnet  string
	TronGridURL     string
	TronShastaURL   string
	TronAPIKey      string

	// AcceptedTokens is the per-chain token allow list.
	AcceptedTokens map[domain.ChainID][]*domain.Asset
}

type SettlementConfig struct {
	RPCURL            string
	ChainID           int64
	RelayerPrivKey    string
	ICOContract       string
	SaleTokenContract string
	SaleType          uint8
}

type WorkersConfig struct {
	MonitorInterval time.Duration
	SweepEnabled    bool
	SweepInterval   time.Duration
	TreasuryPrivKey string
}

func Load(logger *zap.Logger) (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:           getEnv("HTTP_ADDR", ":8080"),
			AllowedOrigins: strings.Split(getEnv("CORS_ORIGINS", "*"), ","),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       int(getEnvAsInt64("REDIS_DB", 0)),
		},
		Wallet: WalletConfig{
			MasterMnemonic: getEnv("MASTER_MNEMONIC", ""),
		},
		Settlement: SettlementConfig{
			RPCURL:            getEnv("SETTLEMENT_RPC_URL", "https://bsc-dataseed.binance.org"),
			ChainID:           getEnvAsInt64("SETTLEMENT_CHAIN_ID", 56),
			RelayerPrivKey:    getEnv("RELAYER_PRIVATE_KEY", ""),
			ICOContract:       getEnv("ICO_CONTRACT", ""),
			SaleTokenContract: getEnv("SALE_TOKEN_CONTRACT", ""),
			SaleType:          uint8(getEnvAsInt64("ICO_SALE_TYPE", 0)),
		},
		Workers: WorkersConfig{
			MonitorInterval: getEnvAsDuration("MONITOR_INTERVAL", 30*time.Second),
			SweepEnabled:    getEnvAsBool("SWEEP_ENABLED", false),
			SweepInterval:   getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
			TreasuryPrivKey: getEnv("TREASURY_PRIVATE_KEY", ""),
		},
	}

	cfg.Chains = ChainsConfig{
		EthereumRPC:     getEnv("ETHEREUM_RPC_URL", "https://eth.llamarpc.com"),
		SepoliaRPC:      getEnv("SEPOLIA_RPC_URL", "https://rpc.sepolia.org"),
		PolygonRPC:      getEnv("POLYGON_RPC_URL", "https://polygon-rpc.com"),
		AmoyRPC:         getEnv("AMOY_RPC_URL", "https://rpc-amoy.polygon.technology"),
		SolanaRPC:       getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		SolanaDevnetRPC: getEnv("SOLANA_DEVNET_RPC_URL", "https://api.devnet.solana.com"),
		BitcoinEsplora:  getEnv("BITCOIN_ESPLORA_URL", "https://blockstream.info/api"),
		BitcoinTestnet:  getEnv("BITCOIN_TESTNET_ESPLORA_URL", "https://blockstream.info/testnet/api"),
		TronGridURL:     getEnv("TRONGRID_URL", "https://api.trongrid.io"),
		TronShastaURL:   getEnv("TRON_SHASTA_URL", "https://api.shasta.trongrid.io"),
		TronAPIKey:      getEnv("TRON_API_KEY", ""),
	}

	enabled, err := parseEnabledChains(getEnv("ENABLED_CHAINS", ""))
	if err != nil {
		return nil, err
	}
	cfg.Chains.Enabled = enabled

	tokens, err := parseAcceptedTokens(getEnv("ACCEPTED_TOKENS", "[]"))
	if err != nil {
		return nil, err
	}
	cfg.Chains.AcceptedTokens = tokens

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Wallet.MasterMnemonic == "" {
		return nil, fmt.Errorf("MASTER_MNEMONIC is required")
	}
	if cfg.Settlement.RelayerPrivKey == "" {
		return nil, fmt.Errorf("RELAYER_PRIVATE_KEY is required")
	}
	if cfg.Settlement.ICOContract == "" || cfg.Settlement.SaleTokenContract == "" {
		return nil, fmt.Errorf("ICO_CONTRACT and SALE_TOKEN_CONTRACT are required")
	}
	if cfg.Workers.SweepEnabled && cfg.Workers.TreasuryPrivKey == "" {
		return nil, fmt.Errorf("TREASURY_PRIVATE_KEY is required when sweeping is enabled")
	}

	logger.Info("configuration loaded",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.Int("enabled_chains", len(cfg.Chains.Enabled)),
		zap.Int64("settlement_chain_id", cfg.Settlement.ChainID),
		zap.Bool("sweep_enabled", cfg.Workers.SweepEnabled))

	return cfg, nil
}

// parseEnabledChains reads a comma-separated chain list; empty enables all.
func parseEnabledChains(raw string) ([]domain.ChainID, error) {
	if raw == "" {
		return domain.SupportedChains(), nil
	}

	var chains []domain.ChainID
	for _, part := range strings.Split(raw, ",") {
		id, err := domain.ParseChainID(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("ENABLED_CHAINS: %w", err)
		}
		chains = append(chains, id)
	}
	return chains, nil
}

type tokenEntry struct {
	Chain    string `json:"chain"`
	Symbol   string `json:"symbol"`
	Contract string `json:"contract"`
	Decimals int    `json:"decimals"`
}

// parseAcceptedTokens reads the JSON token allow list, for example:
// [{"chain":"ethereum","symbol":"USDT","contract":"0xdac1...","decimals":6}]
func parseAcceptedTokens(raw string) (map[domain.ChainID][]*domain.Asset, error) {
	var entries []tokenEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("ACCEPTED_TOKENS: %w", err)
	}

	tokens := make(map[domain.ChainID][]*domain.Asset)
	for _, e := range entries {
		chain, err := domain.ParseChainID(e.Chain)
		if err != nil {
			return nil, fmt.Errorf("ACCEPTED_TOKENS: %w", err)
		}
		tokens[chain] = append(tokens[chain], domain.TokenAsset(chain, e.Symbol, e.Contract, e.Decimals))
	}
	return tokens, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
