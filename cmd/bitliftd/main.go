package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitlift/bitlift/internal/config"
	"github.com/bitlift/bitlift/internal/core/application"
	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/bitlift/bitlift/internal/infrastructure/db"
	"github.com/bitlift/bitlift/internal/infrastructure/esplora"
	"github.com/bitlift/bitlift/internal/infrastructure/evm"
	scheduler "github.com/bitlift/bitlift/internal/infrastructure/scheduler/gocron"
	"github.com/bitlift/bitlift/internal/infrastructure/solana"
	"github.com/bitlift/bitlift/internal/infrastructure/telemetry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	log.Infof("starting bitliftd %s (%s, %s)...", version, commit, date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	profilerShutdown, err := telemetry.InitPyroscope(cfg.PyroscopeURL)
	if err != nil {
		log.WithError(err).Fatal("failed to start profiler")
	}
	if profilerShutdown != nil {
		defer profilerShutdown()
	}

	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:  cfg.DbType,
		BaseDir: cfg.Datadir,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}
	defer dbSvc.Close()

	btcSvc := esplora.NewService(cfg.EsploraURL, cfg.ElectrumURL)

	chain, eventSource, err := buildChain(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to init chain adapter")
	}

	swapSvc := application.NewSwapService(
		dbSvc, chain, btcSvc, cfg.CounterpartyPubKey(),
		application.SwapServiceConfig{
			SafetyWindow:       cfg.SafetyWindowDuration(),
			GracePeriod:        cfg.GracePeriodDuration(),
			PollInterval:       cfg.PollIntervalDuration(),
			RetryTimeout:       cfg.RetryTimeoutDuration(),
			StartupConcurrency: cfg.StartupConcurrency,
		},
	)

	if err := swapSvc.ReconcilePending(ctx); err != nil {
		log.WithError(err).Fatal("failed to reconcile pending swaps")
	}

	reconciler := application.NewEventReconciler(
		eventSource, dbSvc.Checkpoints(), swapSvc, cfg.ChainType, cfg.ReconcileWindow,
	)
	if err := reconciler.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start event reconciler")
	}

	relaySync := application.NewRelaySynchronizer(chain, btcSvc, application.RelaySyncConfig{
		MaxHeadersMain: int(cfg.MaxHeadersMain),
		MaxHeadersFork: int(cfg.MaxHeadersFork),
	})

	schedulerSvc := scheduler.NewScheduler()
	if err := schedulerSvc.ScheduleRecurring("relay-sync", cfg.SyncIntervalDuration(), func() {
		if _, err := relaySync.Sync(ctx); err != nil {
			log.WithError(err).Warn("relay sync failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("failed to schedule relay sync")
	}
	if err := schedulerSvc.ScheduleRecurring("event-reconcile", cfg.PollIntervalDuration(), func() {
		if err := reconciler.Poll(ctx); err != nil {
			log.WithError(err).Warn("event reconciliation failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("failed to schedule event reconciliation")
	}
	schedulerSvc.Start()

	log.Info("service started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down service...")
	schedulerSvc.Stop()
	cancel()
}

func buildChain(ctx context.Context, cfg *config.Config) (ports.ChainContract, ports.SwapEventSource, error) {
	switch cfg.ChainType {
	case config.ChainEvm:
		client, err := ethclient.DialContext(ctx, cfg.EvmRpcURL)
		if err != nil {
			return nil, nil, err
		}
		sender, err := evm.NewKeyedSender(ctx, client, cfg.WalletKey)
		if err != nil {
			return nil, nil, err
		}
		contract, err := evm.NewContract(client, sender, common.HexToAddress(cfg.EvmContract))
		if err != nil {
			return nil, nil, err
		}
		return contract, contract, nil
	case config.ChainSolana:
		client := solana.NewRPCClient(cfg.SolanaRpcURL)
		sender, err := solana.NewKeyedSender(client, cfg.WalletKey)
		if err != nil {
			return nil, nil, err
		}
		program, err := solana.NewProgram(client, sender, cfg.SolanaProgram, cfg.SolanaWsURL)
		if err != nil {
			return nil, nil, err
		}
		return program, program, nil
	}
	return nil, nil, fmt.Errorf("unsupported chain type %q", cfg.ChainType)
}
