package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ico-relayer/internal/chains"
	"ico-relayer/internal/chains/bitcoin"
	"ico-relayer/internal/chains/evm"
	"ico-relayer/internal/chains/solana"
	"ico-relayer/internal/chains/tron"
	"ico-relayer/internal/config"
	"ico-relayer/internal/domain"
	"ico-relayer/internal/handler"
	"ico-relayer/internal/hdwallet"
	"ico-relayer/internal/pricing"
	"ico-relayer/internal/repository"
	"ico-relayer/internal/server"
	"ico-relayer/internal/settlement"
	"ico-relayer/internal/usecase"
	"ico-relayer/internal/watcher"
	"ico-relayer/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	store := repository.NewSessionRepository(pool)

	deriver, err := hdwallet.NewDeriver(cfg.Wallet.MasterMnemonic)
	if err != nil {
		return fmt.Errorf("initialize wallet deriver: %w", err)
	}

	registry, sweepClients, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	var oracleOpts []pricing.Option
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		oracleOpts = append(oracleOpts, pricing.WithRedisCache(redisClient, 10*time.Second))
	}
	oracle := pricing.NewOracle(logger.Named("pricing"), oracleOpts...)

	settlementClient, err := ethclient.Dial(cfg.Settlement.RPCURL)
	if err != nil {
		return fmt.Errorf("connect to settlement chain: %w", err)
	}
	defer settlementClient.Close()

	relayer, err := settlement.NewRelayer(settlementClient, cfg.Settlement.RelayerPrivKey, cfg.Settlement.ChainID, logger.Named("relayer"))
	if err != nil {
		return err
	}

	ico := settlement.NewICOContract(relayer,
		cfg.Settlement.ICOContract, cfg.Settlement.SaleTokenContract,
		cfg.Settlement.SaleType, logger.Named("ico"))

	executor := settlement.NewExecutor(store, ico, logger.Named("executor"))

	w := watcher.New(registry, store, logger.Named("watcher"))

	sessions := usecase.NewSessionUsecase(ctx, store, deriver, registry, oracle, executor, w,
		cfg.Chains.AcceptedTokens, logger.Named("sessions"))

	// Confirmed payments settle immediately; the monitor is the retry path.
	w.SetConfirmedHook(func(sessionID string) {
		go func() {
			if err := sessions.Settle(ctx, sessionID); err != nil &&
				!errors.Is(err, domain.ErrAlreadyExecuted) {
				logger.Warn("automatic settlement failed",
					zap.String("session_id", sessionID),
					zap.Error(err))
			}
		}()
	})

	monitor := worker.NewPaymentMonitor(sessions, store, cfg.Workers.MonitorInterval, logger.Named("monitor"))
	go monitor.Start(ctx)

	if cfg.Workers.SweepEnabled {
		sweeper, err := usecase.NewSweeper(store, sweepClients, cfg.Workers.TreasuryPrivKey, logger.Named("sweeper"))
		if err != nil {
			return err
		}
		sweepWorker := worker.NewSweepWorker(sweeper, cfg.Workers.SweepInterval, logger.Named("sweep_worker"))
		go sweepWorker.Start(ctx)
	}

	sessionHandler := handler.NewSessionHandler(sessions, logger.Named("http"))
	srv := server.New(cfg.HTTP.Addr, cfg.HTTP.AllowedOrigins, sessionHandler, logger.Named("server"))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildRegistry(cfg *config.Config, logger *zap.Logger) (*chains.Registry, map[domain.ChainID]usecase.SweepClient, error) {
	registry := chains.NewRegistry()
	sweepClients := make(map[domain.ChainID]usecase.SweepClient)

	for _, chainID := range cfg.Chains.Enabled {
		adapter, err := buildAdapter(chainID, cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize %s adapter: %w", chainID, err)
		}
		registry.Register(adapter)

		if evmChain, ok := adapter.(*evm.Chain); ok {
			sweepClients[chainID] = evmChain.Client()
		}
	}

	return registry, sweepClients, nil
}

func buildAdapter(chainID domain.ChainID, cfg *config.Config, logger *zap.Logger) (domain.ChainAdapter, error) {
	chainLogger := logger.Named(string(chainID))

	switch chainID {
	case domain.ChainEthereum:
		return evm.New(chainID, cfg.Chains.EthereumRPC, chainLogger)
	case domain.ChainSepolia:
		return evm.New(chainID, cfg.Chains.SepoliaRPC, chainLogger)
	case domain.ChainPolygon:
		return evm.New(chainID, cfg.Chains.PolygonRPC, chainLogger)
	case domain.ChainAmoy:
		return evm.New(chainID, cfg.Chains.AmoyRPC, chainLogger)
	case domain.ChainSolana:
		return solana.New(chainID, cfg.Chains.SolanaRPC, chainLogger)
	case domain.ChainSolanaDevnet:
		return solana.New(chainID, cfg.Chains.SolanaDevnetRPC, chainLogger)
	case domain.ChainBitcoin:
		return bitcoin.New(chainID, cfg.Chains.BitcoinEsplora, chainLogger)
	case domain.ChainBitcoinTestnet:
		return bitcoin.New(chainID, cfg.Chains.BitcoinTestnet, chainLogger)
	case domain.ChainTron:
		return tron.New(chainID, cfg.Chains.TronGridURL, cfg.Chains.TronAPIKey, chainLogger)
	case domain.ChainTronShasta:
		return tron.New(chainID, cfg.Chains.TronShastaURL, cfg.Chains.TronAPIKey, chainLogger)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, chainID)
	}
}
