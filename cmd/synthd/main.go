package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"synthd/config"
	"synthd/core/events"
	"synthd/native/stable"
	"synthd/native/token"
	"synthd/observability/logging"
	"synthd/services/synthd/server"
	"synthd/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the synthd configuration file")
	env := flag.String("env", "", "environment label attached to log lines (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	environment := cfg.Environment
	if *env != "" {
		environment = *env
	}

	logger := logging.Setup("synthd", environment, logging.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("synthd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close database", "error", err)
		}
	}()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	tokens := make([]stable.CollateralToken, 0, len(cfg.Collateral))
	feeds := make([]*stable.FeedAdapter, 0, len(cfg.Collateral))
	for _, entry := range cfg.Collateral {
		ledger := token.NewLedger(db, entry.Symbol, common.HexToAddress(entry.Address))
		tokens = append(tokens, ledger)
		feeds = append(feeds, stable.NewFeedAdapter(stable.NewHTTPFeed(httpClient, entry.FeedURL)))
	}
	registry, err := stable.NewRegistry(tokens, feeds)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	debtLedger := token.NewLedger(db, cfg.DebtSymbol, common.HexToAddress(cfg.DebtAddress))
	minter, err := debtLedger.GrantMinter()
	if err != nil {
		return fmt.Errorf("grant minter: %w", err)
	}

	engine := stable.NewEngine(common.HexToAddress(cfg.CustodyAddress), registry, minter)
	engine.SetState(stable.NewPositionStore(db))
	engine.SetEmitter(&logEmitter{log: logger})

	srv := server.New(engine, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("synthd listening", "addr", cfg.ListenAddress, "assets", len(cfg.Collateral))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("synthd stopped")
	return nil
}

// logEmitter surfaces ledger events on the structured log so monitors can
// tail deposits and redemptions.
type logEmitter struct {
	log *slog.Logger
}

func (l *logEmitter) Emit(event events.Event) {
	switch e := event.(type) {
	case events.CollateralDeposited:
		l.log.Info("collateral deposited",
			"event", e.EventType(), "account", e.Account.Hex(), "asset", e.Asset.Hex(), "amount", e.Amount)
	case events.CollateralRedeemed:
		l.log.Info("collateral redeemed",
			"event", e.EventType(), "from", e.From.Hex(), "to", e.To.Hex(), "asset", e.Asset.Hex(), "amount", e.Amount)
	default:
		l.log.Info("ledger event", "event", event.EventType())
	}
}
