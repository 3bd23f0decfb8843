package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"navLedger/internal/chain"
	"navLedger/internal/config"
	"navLedger/internal/fees"
	"navLedger/internal/nav"
	"navLedger/internal/redemption"
	"navLedger/internal/settlement"
	"navLedger/internal/storage"
	"navLedger/internal/storage/memory"
	"navLedger/internal/storage/postgres"
)

// app is the composition root shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	ledger   storage.Ledger
	pg       *postgres.Store
	client   *chain.Client
	executor chain.Executor

	nav   *nav.Service
	fees  *fees.Service
	queue *redemption.Queue
	orch  *settlement.Orchestrator
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		_ = logger.Sync()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.openLedger(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openExecutor(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.nav = nav.NewService(a.ledger, logger.Named("nav"))
	a.fees = fees.NewService(a.ledger, fees.Config{
		Interval:   cfg.FeeInterval,
		DefaultBps: cfg.ManagementFeeBps,
	}, logger.Named("fees"))
	a.queue = redemption.NewQueue(a.ledger, cfg.ExecTimeout, logger.Named("redemption"))
	a.orch = settlement.NewOrchestrator(a.queue, a.ledger, a.executor, settlement.Config{
		MaxBatchSize:   cfg.SettlementBatchSize,
		SwapStaleAfter: cfg.SwapStaleAfter,
		ReconcileAfter: cfg.ProcessingStaleAfter,
	}, logger.Named("settlement"))
	if cfg.ResultsOut != "" {
		a.orch.WithSink(settlement.NewJSONLSink(cfg.ResultsOut))
	}

	logger.Info("settler configured",
		zap.String("store", cfg.Store),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("execution_mode", a.executor.Mode()),
		zap.String("pool_contract", cfg.PoolContract),
		zap.Int("settlement_batch_size", cfg.SettlementBatchSize),
		zap.Duration("exec_timeout", cfg.ExecTimeout),
	)
	return a, nil
}

func (a *app) openLedger(ctx context.Context) error {
	switch a.cfg.Store {
	case config.StoreMemory:
		a.logger.Warn("using in-memory ledger; state is lost on exit")
		a.ledger = memory.NewLedger()
	default:
		store, err := postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.pg = store
		a.ledger = store
	}
	return nil
}

func (a *app) openExecutor(ctx context.Context) error {
	if a.cfg.ExecutionMode != config.ModeLive {
		a.executor = chain.NewMockExecutor()
		return nil
	}

	client, err := chain.NewClient(ctx, a.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.client = client
	live := chain.NewLiveExecutor(client, chain.LiveConfig{
		RelayerKey:    a.cfg.RelayerKey,
		PoolContract:  a.cfg.PoolContract,
		ChainID:       a.cfg.ChainID,
		Confirmations: a.cfg.ReceiptConfirmations,
		MaxRetries:    a.cfg.MaxRetries,
		RetryBackoff:  a.cfg.RetryBackoff,
	}, a.logger.Named("chain"))
	if err := live.Validate(); err != nil {
		// Not fatal: each settlement cycle reports it and processes nothing.
		a.logger.Warn("live executor not ready", zap.Error(err))
	} else {
		a.logger.Info("live executor ready", zap.String("relayer", live.Relayer().Hex()))
	}
	a.executor = live
	return nil
}

func (a *app) Close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
