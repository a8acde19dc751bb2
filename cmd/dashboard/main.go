package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"arbitrage-bot-go/internal/config"
	"arbitrage-bot-go/internal/database"
	"arbitrage-bot-go/internal/logger"
	"arbitrage-bot-go/internal/optimizer"
	"arbitrage-bot-go/internal/params"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the databases the bot writes to
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	shadowDB, err := database.NewShadowDatabase(cfg.Database.ShadowDSN)
	if err != nil {
		log.Fatal("Failed to connect to shadow database", zap.Error(err))
	}

	store := database.NewStore(db, shadowDB, log)
	cache := params.NewCache(store, log, time.Duration(cfg.Risk.ParamReloadSeconds)*time.Second)
	cache.Reload()

	// Setup HTTP server
	mux := http.NewServeMux()

	apiHandler := NewAPIHandler(log, &cfg, store, cache, optimizer.New(store, log))

	// API endpoints
	mux.HandleFunc("/api/trades/recent", apiHandler.RecentTradesHandler)
	mux.HandleFunc("/api/stats/summary", apiHandler.StatsSummaryHandler)
	mux.HandleFunc("/api/stats/daily_pnl", apiHandler.DailyPnlHandler)
	mux.HandleFunc("/api/shadow/trades", apiHandler.ShadowTradesHandler)
	mux.HandleFunc("/api/shadow/stats", apiHandler.ShadowStatsHandler)
	mux.HandleFunc("/api/compare", apiHandler.CompareHandler)
	mux.HandleFunc("/api/params", apiHandler.ParamsHandler)
	mux.HandleFunc("/api/params/update", apiHandler.UpdateParamHandler)
	mux.HandleFunc("/api/diagnostics", apiHandler.DiagnosticsHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting dashboard server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("Dashboard server failed", zap.Error(err))
	}
}
