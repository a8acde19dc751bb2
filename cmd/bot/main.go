package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arbitrage-bot-go/internal/alert"
	"arbitrage-bot-go/internal/config"
	"arbitrage-bot-go/internal/database"
	"arbitrage-bot-go/internal/engine"
	"arbitrage-bot-go/internal/exchange"
	"arbitrage-bot-go/internal/logger"
	"arbitrage-bot-go/internal/optimizer"
	"arbitrage-bot-go/internal/params"
	"arbitrage-bot-go/internal/risk"
	"arbitrage-bot-go/internal/scanner"
	"arbitrage-bot-go/internal/shadow"
	"arbitrage-bot-go/internal/tracker"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// API credentials live in .env, not in the config file.
	_ = godotenv.Load()

	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize databases
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	shadowDB, err := database.NewShadowDatabase(cfg.Database.ShadowDSN)
	if err != nil {
		log.Fatal("Failed to connect to shadow database", zap.Error(err))
	}
	log.Info("Database connections successful and schemas migrated.")

	store := database.NewStore(db, shadowDB, log)
	if err := store.SeedParameters(); err != nil {
		log.Fatal("Failed to seed parameters", zap.Error(err))
	}

	// Parameter cache feeds live tunables into the risk guard.
	cache := params.NewCache(store, log, time.Duration(cfg.Risk.ParamReloadSeconds)*time.Second)
	cache.Reload()

	guard := risk.NewGuard(risk.Limits{
		MaxCapitalPerTradeUSD:      cfg.Risk.MaxCapitalPerTradeUSD,
		MaxDailyLossUSD:            cfg.Risk.MaxDailyLossUSD,
		MaxOpenTrades:              cfg.Risk.MaxOpenTrades,
		MaxBalanceUsagePerExchange: cfg.Risk.MaxBalanceUsagePerExchange,
		MaxTradesPerHour:           cfg.Risk.MaxTradesPerHour,
		MaxAPIErrors:               cfg.Risk.MaxAPIErrors,
		APIErrorWindow:             time.Duration(cfg.Risk.APIErrorWindowSeconds) * time.Second,
		VolatilityThreshold:        cfg.Risk.VolatilityThreshold,
		VolatilityWindowSize:       cfg.Risk.VolatilityWindowSize,
		MaxSymbolExposureUSD:       cfg.Risk.MaxSymbolExposureUSD,
		NoDataAlertAfter:           time.Duration(cfg.Risk.NoDataAlertSeconds) * time.Second,
	}, log)

	markets := exchange.NewManager(&cfg.Exchanges, cfg.Trading.DryRun, log)
	if len(markets.ExchangeIDs()) < 2 {
		log.Fatal("Need at least two exchanges for arbitrage",
			zap.Strings("initialized", markets.ExchangeIDs()),
		)
	}

	notifier := alert.NewNotifier(cfg.Alert.TelegramEnabled, log)
	sc := scanner.NewScanner(markets, guard, log)
	simulator := shadow.NewSimulator(store, markets, log)
	tr := tracker.NewTracker(markets, guard, store, log)
	opt := optimizer.New(store, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	e := engine.NewEngine(&cfg, log, store, cache, guard, markets, sc, simulator, tr, notifier, opt)
	if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Engine exited with error", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
