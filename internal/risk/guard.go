package risk

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Limits holds the thresholds the guard enforces. The engine refreshes them
// each cycle from the parameter cache.
type Limits struct {
	MaxCapitalPerTradeUSD      float64
	MaxDailyLossUSD            float64
	MaxOpenTrades              int
	MaxBalanceUsagePerExchange float64
	MaxTradesPerHour           int
	MaxAPIErrors               int
	APIErrorWindow             time.Duration
	VolatilityThreshold        float64
	VolatilityWindowSize       int
	MaxSymbolExposureUSD       float64
	NoDataAlertAfter           time.Duration
}

// Guard owns all process-wide risk state: the kill-switch, the daily PnL
// accumulator, the trade-rate and API-error windows, per-symbol price history
// and cooldowns, and the stall detector. All state shares one mutex since it
// is mutated from whichever path executes trades.
type Guard struct {
	mu     sync.Mutex
	limits Limits
	logger *zap.Logger
	now    func() time.Time

	tradingEnabled  bool
	dailyPnlUSD     float64
	trades          *slidingWindow
	apiErrors       *slidingWindow
	priceHistory    map[string][]float64
	disabledUntil   map[string]time.Time
	lastOpportunity time.Time
	lastAlert       string
}

// NewGuard creates a guard with trading enabled and an empty state.
func NewGuard(limits Limits, logger *zap.Logger) *Guard {
	now := time.Now
	return &Guard{
		limits:          limits,
		logger:          logger,
		now:             now,
		tradingEnabled:  true,
		trades:          newSlidingWindow(time.Hour),
		apiErrors:       newSlidingWindow(limits.APIErrorWindow),
		priceHistory:    make(map[string][]float64),
		disabledUntil:   make(map[string]time.Time),
		lastOpportunity: now(),
	}
}

// SetLimits swaps in refreshed thresholds from the parameter cache.
func (g *Guard) SetLimits(limits Limits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits = limits
	g.apiErrors.span = limits.APIErrorWindow
}

// Limits returns the thresholds currently in effect.
func (g *Guard) Limits() Limits {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limits
}

// TradingEnabled reports the kill-switch state.
func (g *Guard) TradingEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tradingEnabled
}

// SetTradingEnabled flips the global kill-switch and records the reason as
// the last alert message.
func (g *Guard) SetTradingEnabled(enabled bool, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tradingEnabled = enabled

	status := "ENABLED"
	if !enabled {
		status = "DISABLED"
	}
	message := "Trading " + status
	if reason != "" {
		message += ": " + reason
	}
	g.lastAlert = message
	g.logger.Info(message)
}

// RecordAPIError adds an error event to the circuit-breaker window.
func (g *Guard) RecordAPIError() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.apiErrors.add(g.now())
}

// APIErrorCount returns the error count inside the trailing window.
func (g *Guard) APIErrorCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.apiErrors.count(g.now())
}

// CheckAPIErrorLimit returns false when the error window has filled up and
// the circuit breaker should trip.
func (g *Guard) CheckAPIErrorLimit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := g.apiErrors.count(g.now())
	if count >= g.limits.MaxAPIErrors {
		g.logger.Error("API error limit exceeded",
			zap.Int("errors", count),
			zap.Duration("window", g.limits.APIErrorWindow),
		)
		return false
	}
	return true
}

// RecordTrade adds an executed trade to the hourly rate window.
func (g *Guard) RecordTrade() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trades.add(g.now())
}

// TradesThisHour returns the trade count inside the trailing hour.
func (g *Guard) TradesThisHour() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trades.count(g.now())
}

// CheckTradeRateLimit returns false when the trailing-hour trade count has
// reached the configured maximum.
func (g *Guard) CheckTradeRateLimit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := g.trades.count(g.now())
	if count >= g.limits.MaxTradesPerHour {
		g.logger.Warn("Trades per hour limit reached",
			zap.Int("trades", count),
			zap.Int("max", g.limits.MaxTradesPerHour),
		)
		return false
	}
	return true
}

// UpdateDailyPnl adds a realized result to the daily accumulator. There is no
// automatic day-boundary reset; the accumulator survives until restart.
func (g *Guard) UpdateDailyPnl(change float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnlUSD += change
	g.logger.Info("Daily PnL updated",
		zap.Float64("daily_pnl_usd", g.dailyPnlUSD),
		zap.Float64("change", change),
	)
}

// DailyPnl returns the current daily PnL accumulator.
func (g *Guard) DailyPnl() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyPnlUSD
}

// CheckDailyLossLimit returns false once cumulative realized PnL has reached
// the configured daily loss.
func (g *Guard) CheckDailyLossLimit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkDailyLossLocked()
}

func (g *Guard) checkDailyLossLocked() bool {
	if g.dailyPnlUSD <= -g.limits.MaxDailyLossUSD {
		g.logger.Error("Daily loss limit exceeded",
			zap.Float64("daily_pnl_usd", g.dailyPnlUSD),
			zap.Float64("limit_usd", g.limits.MaxDailyLossUSD),
		)
		return false
	}
	return true
}

// UpdatePriceHistory feeds a mid-price into the bounded per-symbol window
// used by the volatility check. Oldest entries are evicted at capacity.
func (g *Guard) UpdatePriceHistory(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	history := append(g.priceHistory[symbol], price)
	if max := g.limits.VolatilityWindowSize; max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	g.priceHistory[symbol] = history
}

// PriceHistory returns a copy of the recorded prices for a symbol.
func (g *Guard) PriceHistory(symbol string) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	history := g.priceHistory[symbol]
	out := make([]float64, len(history))
	copy(out, history)
	return out
}

// CheckVolatility returns false when the (max-min)/min range over the
// recorded price window exceeds the threshold. Fewer than two prices, or a
// non-positive minimum, count as safe.
func (g *Guard) CheckVolatility(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkVolatilityLocked(symbol)
}

func (g *Guard) checkVolatilityLocked(symbol string) bool {
	history := g.priceHistory[symbol]
	if len(history) < 2 {
		return true
	}

	minPrice, maxPrice := history[0], history[0]
	for _, p := range history[1:] {
		if p < minPrice {
			minPrice = p
		}
		if p > maxPrice {
			maxPrice = p
		}
	}
	if minPrice <= 0 {
		return true
	}

	volatility := (maxPrice - minPrice) / minPrice * 100
	if volatility > g.limits.VolatilityThreshold {
		g.logger.Warn("High volatility detected",
			zap.String("symbol", symbol),
			zap.Float64("volatility_percent", volatility),
			zap.Float64("threshold_percent", g.limits.VolatilityThreshold),
		)
		return false
	}
	return true
}

// DisableSymbol puts a symbol on a temporary cooldown.
func (g *Guard) DisableSymbol(symbol string, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disabledUntil[symbol] = g.now().Add(d)
	g.logger.Info("Symbol temporarily disabled",
		zap.String("symbol", symbol),
		zap.Duration("for", d),
	)
}

// symbolEnabledLocked reports whether a symbol is outside its cooldown,
// lazily removing expired entries.
func (g *Guard) symbolEnabledLocked(symbol string) bool {
	until, ok := g.disabledUntil[symbol]
	if !ok {
		return true
	}
	if g.now().Before(until) {
		return false
	}
	delete(g.disabledUntil, symbol)
	return true
}

// ShouldTradeNow composes the kill-switch, per-symbol cooldown, daily-loss,
// hourly-rate, error-rate and volatility checks. The open-trade cap and
// exposure cap are checked later, at execution time.
func (g *Guard) ShouldTradeNow(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.tradingEnabled {
		return false
	}
	if !g.symbolEnabledLocked(symbol) {
		g.logger.Debug("Symbol is temporarily disabled", zap.String("symbol", symbol))
		return false
	}
	if !g.checkDailyLossLocked() {
		return false
	}
	now := g.now()
	if g.trades.count(now) >= g.limits.MaxTradesPerHour {
		return false
	}
	if g.apiErrors.count(now) >= g.limits.MaxAPIErrors {
		return false
	}
	return g.checkVolatilityLocked(symbol)
}

// CanOpenNewTrade returns false when the pending-trade count has reached the
// open-trade cap.
func (g *Guard) CanOpenNewTrade(openTrades int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if openTrades >= g.limits.MaxOpenTrades {
		g.logger.Warn("Cannot open new trade",
			zap.Int("open_trades", openTrades),
			zap.Int("max", g.limits.MaxOpenTrades),
		)
		return false
	}
	return true
}

// CheckSymbolExposure returns false when today's cumulative exposure for a
// symbol has reached the per-symbol cap.
func (g *Guard) CheckSymbolExposure(symbol string, currentExposureUSD float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if currentExposureUSD >= g.limits.MaxSymbolExposureUSD {
		g.logger.Warn("Symbol exposure limit reached",
			zap.String("symbol", symbol),
			zap.Float64("exposure_usd", currentExposureUSD),
			zap.Float64("limit_usd", g.limits.MaxSymbolExposureUSD),
		)
		return false
	}
	return true
}

// RecordOpportunityFound marks the stall detector's timestamp.
func (g *Guard) RecordOpportunityFound() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastOpportunity = g.now()
}

// NoDataTimeout reports whether no opportunity has been found for longer than
// the configured stall interval.
func (g *Guard) NoDataTimeout() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.now().Sub(g.lastOpportunity) > g.limits.NoDataAlertAfter
}

// LastAlertMessage returns the last human-readable state-change message.
func (g *Guard) LastAlertMessage() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastAlert
}
