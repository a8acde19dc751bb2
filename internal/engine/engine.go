package engine

import (
	"context"
	"fmt"
	"time"

	"arbitrage-bot-go/internal/alert"
	"arbitrage-bot-go/internal/config"
	"arbitrage-bot-go/internal/database"
	"arbitrage-bot-go/internal/exchange"
	"arbitrage-bot-go/internal/optimizer"
	"arbitrage-bot-go/internal/params"
	"arbitrage-bot-go/internal/risk"
	"arbitrage-bot-go/internal/scanner"
	"arbitrage-bot-go/internal/shadow"
	"arbitrage-bot-go/internal/tracker"
	"go.uber.org/zap"
)

// Engine drives the scan cycle: refresh live parameters, check the circuit
// breakers, scan for opportunities, shadow-record them and execute the ones
// that clear every gate.
type Engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *database.Store
	cache     *params.Cache
	guard     *risk.Guard
	markets   *exchange.Manager
	scanner   *scanner.Scanner
	simulator *shadow.Simulator
	tracker   *tracker.Tracker
	notifier  *alert.Notifier
	opt       *optimizer.Optimizer

	cycle            int
	balances         map[string]map[string]float64
	lastHeartbeat    time.Time
	lastOptimizerRun time.Time
	stallAlerted     bool
}

// NewEngine wires the decision loop together.
func NewEngine(
	cfg *config.Config,
	logger *zap.Logger,
	store *database.Store,
	cache *params.Cache,
	guard *risk.Guard,
	markets *exchange.Manager,
	sc *scanner.Scanner,
	simulator *shadow.Simulator,
	tr *tracker.Tracker,
	notifier *alert.Notifier,
	opt *optimizer.Optimizer,
) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		cache:     cache,
		guard:     guard,
		markets:   markets,
		scanner:   sc,
		simulator: simulator,
		tracker:   tr,
		notifier:  notifier,
		opt:       opt,
		balances:  make(map[string]map[string]float64),
	}
}

// Run starts the decision loop and blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.Trading.RefreshIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Engine started",
		zap.Strings("pairs", e.cfg.Trading.Pairs),
		zap.Strings("exchanges", e.markets.ExchangeIDs()),
		zap.Bool("dry_run", e.markets.DryRun()),
		zap.Duration("interval", interval),
	)

	// First cycle runs immediately, then on the ticker.
	e.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle performs one full scan cycle.
func (e *Engine) runCycle(ctx context.Context) {
	e.cycle++
	e.heartbeat()

	e.cache.MaybeReload()
	e.guard.SetLimits(e.liveLimits())

	if !e.guard.CheckAPIErrorLimit() {
		if e.guard.TradingEnabled() {
			reason := fmt.Sprintf("too many API errors (%d in window)", e.guard.APIErrorCount())
			e.guard.SetTradingEnabled(false, reason)
			e.notifier.Send(reason, "Circuit breaker tripped")
		}
		return
	}

	if !e.guard.TradingEnabled() {
		e.logger.Debug("Trading is disabled, skipping cycle")
		return
	}

	if cadence := e.cfg.Trading.BalanceRefreshCycles; e.cycle == 1 || cadence <= 1 || e.cycle%cadence == 0 {
		e.refreshBalances(ctx)
	}

	if !e.guard.CheckDailyLossLimit() {
		reason := fmt.Sprintf("daily loss limit reached (%.2f USD)", e.guard.DailyPnl())
		e.guard.SetTradingEnabled(false, reason)
		e.notifier.Send(reason, "Daily loss limit")
		return
	}

	opportunities := e.scanner.FindOpportunities(ctx, e.cfg.Trading.Pairs, scanner.Thresholds{
		MaxSlippagePercent: e.cfg.Trading.MaxSlippagePercent,
		SafetyMarginSpread: e.cache.Get("SAFETY_MARGIN_SPREAD", e.cfg.Trading.SafetyMarginSpread),
	})

	e.checkStall(len(opportunities) > 0)
	e.maybeRunOptimizer()

	executed := 0
	for _, opp := range opportunities {
		if e.cfg.Shadow.Enabled {
			e.simulator.Record(opp, e.shadowParams())
		}
		if e.executeOpportunity(ctx, opp) {
			executed++
		}
	}

	e.logger.Debug("Scan cycle finished",
		zap.Int("cycle", e.cycle),
		zap.Int("opportunities", len(opportunities)),
		zap.Int("executed", executed),
		zap.Int("open_trades", e.tracker.OpenTradesCount()),
		zap.Float64("daily_pnl_usd", e.guard.DailyPnl()),
	)
}

// executeOpportunity runs the execution-time gates and the two-leg order
// sequence for one opportunity. Returns true when a trade completed.
func (e *Engine) executeOpportunity(ctx context.Context, opp scanner.Opportunity) bool {
	if !e.guard.CanOpenNewTrade(e.tracker.OpenTradesCount()) {
		return false
	}
	if !e.guard.CheckTradeRateLimit() {
		return false
	}

	exposure, err := e.store.SymbolExposureToday(opp.Symbol)
	if err != nil {
		e.logger.Error("Failed to compute symbol exposure",
			zap.String("symbol", opp.Symbol),
			zap.Error(err),
		)
		return false
	}
	if !e.guard.CheckSymbolExposure(opp.Symbol, exposure) {
		return false
	}

	// Routes with a losing track record are vetoed before any order goes out.
	// Routes without history score neutrally and pass.
	if stats, err := e.opt.RouteStats(opp.Symbol, 7); err == nil {
		size := e.guard.DynamicPositionSize(opp.Symbol, stats,
			e.cfg.Risk.MinPositionSizeUSD, e.cfg.Risk.MaxPositionSizeUSD, opp.BuyPrice)
		if size <= 0 {
			return false
		}
	}

	trade := e.tracker.Execute(ctx, opp, e.balances, tracker.ExecuteParams{
		MinSpreadPercent:   e.cache.Get("MIN_SPREAD_PERCENT", e.cfg.Trading.MinSpreadPercent),
		MaxSlippagePercent: e.cfg.Trading.MaxSlippagePercent,
		DefaultFeePercent:  e.cfg.Trading.DefaultFeePercent,
	})
	if trade == nil {
		return false
	}

	if trade.Status == tracker.StatusFailed {
		// A failed leg means venue trouble on this symbol; cool it down
		// instead of retrying into the same failure next cycle.
		e.guard.DisableSymbol(opp.Symbol, time.Duration(e.cfg.Risk.SymbolDisableHours)*time.Hour)
		e.notifier.Send(
			fmt.Sprintf("Trade %s failed: %s", trade.ID, trade.FailureReason),
			"Trade failed",
		)
		return false
	}
	e.guard.RecordTrade()
	if _, err := e.opt.ScoreRoute(opp.Symbol, opp.BuyExchange, opp.SellExchange, 7); err != nil {
		e.logger.Error("Failed to refresh route score", zap.Error(err))
	}
	return true
}

// maybeRunOptimizer recomputes per-symbol performance and the shadow-vs-real
// comparison once per day.
func (e *Engine) maybeRunOptimizer() {
	now := time.Now().UTC()
	if now.Sub(e.lastOptimizerRun) < 24*time.Hour {
		return
	}
	e.lastOptimizerRun = now

	e.opt.RunDaily(e.cfg.Trading.Pairs)
	if _, err := e.opt.TuneMinSpread(7, e.cfg.Risk.ParamChangeLimitPercent); err != nil {
		e.logger.Error("Failed to tune minimum spread", zap.Error(err))
	}
	comparison, err := e.opt.CompareShadowVsReal(7)
	if err != nil {
		e.logger.Error("Failed to compare shadow vs real performance", zap.Error(err))
		return
	}
	e.logger.Info("Weekly shadow vs real comparison",
		zap.Float64("real_avg_pnl", comparison.Real.AvgPnlPerTrade),
		zap.Float64("shadow_avg_pnl", comparison.Shadow.AvgPnlPerTrade),
		zap.Bool("shadow_better", comparison.ShadowBetter),
	)
}

// refreshBalances fetches free balances from every venue. A venue that fails
// keeps its previous snapshot and counts toward the API error breaker.
func (e *Engine) refreshBalances(ctx context.Context) {
	for _, exchangeID := range e.markets.ExchangeIDs() {
		balances, err := e.markets.GetBalances(ctx, exchangeID)
		if err != nil {
			e.logger.Error("Failed to refresh balances",
				zap.String("exchange", exchangeID),
				zap.Error(err),
			)
			e.guard.RecordAPIError()
			continue
		}
		e.balances[exchangeID] = balances
	}
}

// heartbeat upserts the liveness timestamp at the configured cadence.
func (e *Engine) heartbeat() {
	cadence := time.Duration(e.cfg.Trading.HeartbeatSeconds) * time.Second
	now := time.Now().UTC()
	if now.Sub(e.lastHeartbeat) < cadence {
		return
	}
	if err := e.store.SetHeartbeat(now); err != nil {
		e.logger.Error("Failed to write heartbeat", zap.Error(err))
		return
	}
	e.lastHeartbeat = now
}

// checkStall raises a one-shot alert when no opportunity has been seen for
// longer than the stall interval, re-arming once opportunities return.
func (e *Engine) checkStall(foundAny bool) {
	if foundAny {
		e.stallAlerted = false
		return
	}
	if e.guard.NoDataTimeout() && !e.stallAlerted {
		e.stallAlerted = true
		message := fmt.Sprintf("No opportunities found for over %d seconds", e.cfg.Risk.NoDataAlertSeconds)
		e.logger.Warn(message)
		e.notifier.Send(message, "Scanner stalled")
	}
}

// liveLimits merges the startup risk defaults with the current parameter
// cache snapshot.
func (e *Engine) liveLimits() risk.Limits {
	r := e.cfg.Risk
	return risk.Limits{
		MaxCapitalPerTradeUSD:      e.cache.Get("MAX_CAPITAL_PER_TRADE_USD", r.MaxCapitalPerTradeUSD),
		MaxDailyLossUSD:            e.cache.Get("MAX_DAILY_LOSS_USD", r.MaxDailyLossUSD),
		MaxOpenTrades:              r.MaxOpenTrades,
		MaxBalanceUsagePerExchange: e.cache.Get("MAX_BALANCE_USAGE_PER_EXCHANGE", r.MaxBalanceUsagePerExchange),
		MaxTradesPerHour:           int(e.cache.Get("MAX_TRADES_PER_HOUR", float64(r.MaxTradesPerHour))),
		MaxAPIErrors:               r.MaxAPIErrors,
		APIErrorWindow:             time.Duration(r.APIErrorWindowSeconds) * time.Second,
		VolatilityThreshold:        e.cache.Get("VOLATILITY_THRESHOLD_PERCENT", r.VolatilityThreshold),
		VolatilityWindowSize:       r.VolatilityWindowSize,
		MaxSymbolExposureUSD:       e.cache.Get("MAX_SYMBOL_EXPOSURE_USD", r.MaxSymbolExposureUSD),
		NoDataAlertAfter:           time.Duration(r.NoDataAlertSeconds) * time.Second,
	}
}

// shadowParams snapshots the strategy parameters the simulator records with.
func (e *Engine) shadowParams() shadow.Params {
	return shadow.Params{
		MaxCapitalPerTradeUSD: e.cache.Get("MAX_CAPITAL_PER_TRADE_USD", e.cfg.Risk.MaxCapitalPerTradeUSD),
		MaxSlippagePercent:    e.cfg.Trading.MaxSlippagePercent,
		MinSpreadPercent:      e.cache.Get("MIN_SPREAD_PERCENT", e.cfg.Trading.MinSpreadPercent),
	}
}
