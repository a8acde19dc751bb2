package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testLimits() Limits {
	return Limits{
		MaxCapitalPerTradeUSD:      500,
		MaxDailyLossUSD:            1000,
		MaxOpenTrades:              5,
		MaxBalanceUsagePerExchange: 0.5,
		MaxTradesPerHour:           50,
		MaxAPIErrors:               20,
		APIErrorWindow:             5 * time.Minute,
		VolatilityThreshold:        2.0,
		VolatilityWindowSize:       10,
		MaxSymbolExposureUSD:       2000,
		NoDataAlertAfter:           2 * time.Minute,
	}
}

// newTestGuard returns a guard with a controllable clock.
func newTestGuard(t *testing.T) (*Guard, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	g := NewGuard(testLimits(), zap.NewNop())
	g.now = func() time.Time { return now }
	return g, &now
}

func TestGuard_DailyLossLimit(t *testing.T) {
	g, _ := newTestGuard(t)

	g.UpdateDailyPnl(-999)
	assert.True(t, g.CheckDailyLossLimit())
	assert.True(t, g.ShouldTradeNow("BTC/USDT"))

	// One more small loss pushes the accumulator to exactly the limit.
	g.UpdateDailyPnl(-2)
	assert.False(t, g.CheckDailyLossLimit())
	assert.False(t, g.ShouldTradeNow("BTC/USDT"))

	// A win pulls it back above the limit.
	g.UpdateDailyPnl(50)
	assert.True(t, g.CheckDailyLossLimit())
}

func TestGuard_TradeRateLimit(t *testing.T) {
	g, now := newTestGuard(t)

	for i := 0; i < 50; i++ {
		assert.True(t, g.CheckTradeRateLimit())
		g.RecordTrade()
	}
	assert.Equal(t, 50, g.TradesThisHour())
	assert.False(t, g.CheckTradeRateLimit())
	assert.False(t, g.ShouldTradeNow("BTC/USDT"))

	// After the window slides past the old events the budget frees up.
	*now = now.Add(61 * time.Minute)
	assert.Equal(t, 0, g.TradesThisHour())
	assert.True(t, g.CheckTradeRateLimit())
}

func TestGuard_APIErrorWindow(t *testing.T) {
	g, now := newTestGuard(t)

	for i := 0; i < 19; i++ {
		g.RecordAPIError()
	}
	assert.True(t, g.CheckAPIErrorLimit())

	g.RecordAPIError()
	assert.False(t, g.CheckAPIErrorLimit())
	assert.False(t, g.ShouldTradeNow("BTC/USDT"))

	// Errors age out of the five-minute window.
	*now = now.Add(6 * time.Minute)
	assert.Equal(t, 0, g.APIErrorCount())
	assert.True(t, g.CheckAPIErrorLimit())
}

func TestGuard_Volatility(t *testing.T) {
	testCases := []struct {
		name   string
		prices []float64
		safe   bool
	}{
		{name: "No history is safe", prices: nil, safe: true},
		{name: "Single price is safe", prices: []float64{50000}, safe: true},
		{name: "Calm market", prices: []float64{50000, 50100, 50050}, safe: true},
		{name: "Exactly at threshold is safe", prices: []float64{50000, 51000}, safe: true},
		{name: "Above threshold blocks", prices: []float64{50000, 51500}, safe: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g, _ := newTestGuard(t)
			for _, p := range tc.prices {
				g.UpdatePriceHistory("BTC/USDT", p)
			}
			assert.Equal(t, tc.safe, g.CheckVolatility("BTC/USDT"))
		})
	}
}

func TestGuard_PriceHistoryBounded(t *testing.T) {
	g, _ := newTestGuard(t)

	for i := 0; i < 25; i++ {
		g.UpdatePriceHistory("BTC/USDT", 50000+float64(i))
	}

	history := g.PriceHistory("BTC/USDT")
	assert.Len(t, history, 10)
	// Oldest entries were evicted, the newest survive.
	assert.Equal(t, 50015.0, history[0])
	assert.Equal(t, 50024.0, history[9])
}

func TestGuard_SymbolCooldown(t *testing.T) {
	g, now := newTestGuard(t)

	g.DisableSymbol("ETH/USDT", 6*time.Hour)
	assert.False(t, g.ShouldTradeNow("ETH/USDT"))
	// Other symbols are unaffected.
	assert.True(t, g.ShouldTradeNow("BTC/USDT"))

	*now = now.Add(6*time.Hour + time.Minute)
	assert.True(t, g.ShouldTradeNow("ETH/USDT"))
}

func TestGuard_KillSwitch(t *testing.T) {
	g, _ := newTestGuard(t)

	g.SetTradingEnabled(false, "manual stop")
	assert.False(t, g.TradingEnabled())
	assert.False(t, g.ShouldTradeNow("BTC/USDT"))
	assert.Equal(t, "Trading DISABLED: manual stop", g.LastAlertMessage())

	g.SetTradingEnabled(true, "")
	assert.True(t, g.ShouldTradeNow("BTC/USDT"))
}

func TestGuard_OpenTradesAndExposure(t *testing.T) {
	g, _ := newTestGuard(t)

	assert.True(t, g.CanOpenNewTrade(4))
	assert.False(t, g.CanOpenNewTrade(5))

	assert.True(t, g.CheckSymbolExposure("BTC/USDT", 1999))
	assert.False(t, g.CheckSymbolExposure("BTC/USDT", 2000))
}

func TestGuard_NoDataTimeout(t *testing.T) {
	g, now := newTestGuard(t)

	assert.False(t, g.NoDataTimeout())

	*now = now.Add(3 * time.Minute)
	assert.True(t, g.NoDataTimeout())

	g.RecordOpportunityFound()
	assert.False(t, g.NoDataTimeout())
}

func TestSlidingWindow_Prune(t *testing.T) {
	w := newSlidingWindow(time.Hour)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	w.add(base)
	w.add(base.Add(30 * time.Minute))
	w.add(base.Add(59 * time.Minute))

	assert.Equal(t, 3, w.count(base.Add(59*time.Minute)))
	assert.Equal(t, 2, w.count(base.Add(61*time.Minute)))
	// Pruning is idempotent.
	assert.Equal(t, 2, w.count(base.Add(61*time.Minute)))
	assert.Equal(t, 0, w.count(base.Add(3*time.Hour)))
}
