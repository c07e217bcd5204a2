package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harvestmart/config"
	"harvestmart/core/events"
	"harvestmart/native/escrow"
	"harvestmart/native/fees"
	"harvestmart/native/presale"
	"harvestmart/observability/logging"
	"harvestmart/rpc"
	"harvestmart/storage"
)

// rpcTokenEnv names the environment variable carrying the bearer token for
// mutating RPC methods. An empty value leaves the surface open, which is only
// acceptable on a loopback listener.
const rpcTokenEnv = "HARVESTMART_RPC_TOKEN"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.toml", "path to the TOML config file")
	flag.Parse()

	if err := run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "custodyd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup("custodyd", cfg.Environment)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open ledger database: %w", err)
	}
	defer db.Close()
	ledger := storage.NewLedger(db)

	admins, err := cfg.AdminAddresses()
	if err != nil {
		return err
	}
	for _, addr := range admins {
		if err := ledger.GrantRole(presale.RoleMarketAdmin, addr); err != nil {
			return fmt.Errorf("grant market admin: %w", err)
		}
	}
	arbiters, err := cfg.ArbiterAddresses()
	if err != nil {
		return err
	}
	for _, addr := range arbiters {
		if err := ledger.GrantRole(escrow.RoleArbiter, addr); err != nil {
			return fmt.Errorf("grant arbiter: %w", err)
		}
	}

	collector, err := cfg.FeeCollectorAddress()
	if err != nil {
		return err
	}
	calc, err := fees.NewCalculator(cfg.FeeRateBps, collector)
	if err != nil {
		return fmt.Errorf("fee calculator: %w", err)
	}
	vault, err := cfg.Vault()
	if err != nil {
		return err
	}

	bus := events.NewBus()
	tap, cancelTap := bus.Subscribe(256)
	defer cancelTap()
	go func() {
		for env := range tap {
			logger.Info("module event", "event", env.Type, "id", env.ID, "attributes", env.Event)
		}
	}()

	escrowEngine := escrow.NewEngine()
	escrowEngine.SetState(ledger)
	escrowEngine.SetFees(calc)
	escrowEngine.SetVault(vault)
	escrowEngine.SetGracePeriod(cfg.GracePeriodSeconds)
	escrowEngine.SetEmitter(bus)
	escrowEngine.SetPauses(ledger)

	presaleEngine := presale.NewEngine()
	presaleEngine.SetState(ledger)
	presaleEngine.SetEmitter(bus)
	presaleEngine.SetPauses(ledger)

	audit, err := rpc.NewAuditStore(cfg.AuditDBPath)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer audit.Close()

	authToken := os.Getenv(rpcTokenEnv)
	if authToken == "" {
		logger.Warn("no RPC auth token configured, mutating methods are unauthenticated", "env", rpcTokenEnv)
	}
	server := rpc.NewServer(escrowEngine, presaleEngine, calc, ledger, audit, logger, rpc.ServerConfig{
		AuthToken:       authToken,
		RateLimitPerSec: cfg.RateLimitPerSec,
		RateLimitBurst:  cfg.RateLimitBurst,
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", "address", cfg.ListenAddress)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("rpc server: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
