package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionSize_Caps(t *testing.T) {
	g, _ := newTestGuard(t)

	testCases := []struct {
		name         string
		balance      float64
		netSpread    float64
		buyPrice     float64
		expectedSize float64
	}{
		{
			// Capital cap: 500/50000 = 0.01. Balance cap: 100000*0.5/50000 = 1.
			name:         "Capital cap binds",
			balance:      100000,
			netSpread:    0.7,
			buyPrice:     50000,
			expectedSize: 0.01,
		},
		{
			// Balance cap: 400*0.5/50000 = 0.004, below the capital cap.
			name:         "Balance cap binds",
			balance:      400,
			netSpread:    0.7,
			buyPrice:     50000,
			expectedSize: 0.004,
		},
		{
			// Weak spread shrinks the base size by 0.8.
			name:         "Weak spread scales down",
			balance:      100000,
			netSpread:    0.3,
			buyPrice:     50000,
			expectedSize: 0.008,
		},
		{
			// Strong spread scales by 1.2 but the clamp runs after scaling,
			// so the size never exceeds the capital cap.
			name:         "Strong spread still clamped",
			balance:      100000,
			netSpread:    1.5,
			buyPrice:     50000,
			expectedSize: 0.01,
		},
		{
			name:         "Zero buy price refuses",
			balance:      100000,
			netSpread:    0.7,
			buyPrice:     0,
			expectedSize: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			size := g.PositionSize(tc.balance, tc.netSpread, tc.buyPrice)
			assert.InDelta(t, tc.expectedSize, size, 1e-9)
		})
	}
}

func TestPositionSize_NeverExceedsCaps(t *testing.T) {
	g, _ := newTestGuard(t)

	// Whatever the spread regime, the result must respect both hard caps.
	for _, spread := range []float64{0.1, 0.4, 0.5, 0.9, 1.0, 1.1, 5.0} {
		size := g.PositionSize(800, spread, 50000)
		assert.LessOrEqual(t, size, 500.0/50000)
		assert.LessOrEqual(t, size, 800*0.5/50000)
	}
}

func TestDynamicPositionSize_ScoreBands(t *testing.T) {
	g, _ := newTestGuard(t)

	testCases := []struct {
		name         string
		stats        PerformanceStats
		expectedSize float64
	}{
		{
			name:         "Negative score refuses the trade",
			stats:        PerformanceStats{AvgPnlPerTrade: -1.0, WinRate: 0.5},
			expectedSize: 0,
		},
		{
			// score = 0.1*0.5 = 0.05 < 0.1, minimum size.
			name:         "Low score gets minimum size",
			stats:        PerformanceStats{AvgPnlPerTrade: 0.1, WinRate: 0.5},
			expectedSize: 10.0 / 100,
		},
		{
			// score = 1.0*0.8 = 0.8 > 0.5, maximum size capped by capital:
			// 1000/100 = 10 vs capital cap 500/100 = 5.
			name:         "High score capped by capital limit",
			stats:        PerformanceStats{AvgPnlPerTrade: 1.0, WinRate: 0.8},
			expectedSize: 5,
		},
		{
			// score = 0.6*0.5 = 0.3, ratio = (0.3-0.1)/0.4 = 0.5,
			// sizeUSD = 10 + 0.5*(1000-10) = 505, capped at 500 USD of capital.
			name:         "Mid band interpolates then caps",
			stats:        PerformanceStats{AvgPnlPerTrade: 0.6, WinRate: 0.5},
			expectedSize: 5,
		},
		{
			// score = 0.3*0.5 - 0.1 = 0.05 after slippage drag, minimum size.
			name:         "Slippage drags score into minimum band",
			stats:        PerformanceStats{AvgPnlPerTrade: 0.3, WinRate: 0.5, AvgSlippage: 0.1},
			expectedSize: 10.0 / 100,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			size := g.DynamicPositionSize("BTC/USDT", tc.stats, 10, 1000, 100)
			assert.InDelta(t, tc.expectedSize, size, 1e-9)
		})
	}
}
