package risk

import "go.uber.org/zap"

// PerformanceStats is the historical route performance consumed by the
// dynamic sizer.
type PerformanceStats struct {
	AvgPnlPerTrade float64
	WinRate        float64
	AvgSlippage    float64
}

// PositionSize computes a trade size in base units from the capital cap and
// the usable balance cap, then applies a spread-regime multiplier. The clamp
// runs after scaling, so the multiplier can shrink a trade but never push it
// above either hard cap. Returns 0 for a non-positive buy price.
func (g *Guard) PositionSize(availableQuoteBalance, netSpreadPercent, buyPrice float64) float64 {
	if buyPrice <= 0 {
		return 0
	}

	g.mu.Lock()
	maxFromCapital := g.limits.MaxCapitalPerTradeUSD / buyPrice
	maxFromBalance := (availableQuoteBalance * g.limits.MaxBalanceUsagePerExchange) / buyPrice
	g.mu.Unlock()

	baseSize := maxFromCapital
	if maxFromBalance < baseSize {
		baseSize = maxFromBalance
	}

	scaled := baseSize
	switch {
	case netSpreadPercent > 1.0:
		scaled = baseSize * 1.2
	case netSpreadPercent < 0.5:
		scaled = baseSize * 0.8
	}

	size := scaled
	if maxFromCapital < size {
		size = maxFromCapital
	}
	if maxFromBalance < size {
		size = maxFromBalance
	}

	g.logger.Debug("Position size computed",
		zap.Float64("size", size),
		zap.Float64("max_from_capital", maxFromCapital),
		zap.Float64("max_from_balance", maxFromBalance),
	)
	return size
}

// DynamicPositionSize sizes a trade from historical route performance:
// score = avg_pnl_per_trade * win_rate - avg_slippage. A negative score
// refuses the trade, scores below 0.1 get the minimum USD size, above 0.5 the
// maximum, and the band in between interpolates linearly. The result is
// converted to base units and capped by the capital-per-trade limit.
func (g *Guard) DynamicPositionSize(symbol string, stats PerformanceStats, minSizeUSD, maxSizeUSD, buyPrice float64) float64 {
	if buyPrice <= 0 {
		return 0
	}

	score := stats.AvgPnlPerTrade*stats.WinRate - stats.AvgSlippage

	var sizeUSD float64
	switch {
	case score < 0:
		g.logger.Info("Route has negative performance score, not trading",
			zap.String("symbol", symbol),
			zap.Float64("score", score),
		)
		return 0
	case score < 0.1:
		sizeUSD = minSizeUSD
	case score > 0.5:
		sizeUSD = maxSizeUSD
	default:
		ratio := (score - 0.1) / 0.4
		sizeUSD = minSizeUSD + ratio*(maxSizeUSD-minSizeUSD)
	}

	g.mu.Lock()
	capitalCap := g.limits.MaxCapitalPerTradeUSD / buyPrice
	g.mu.Unlock()

	size := sizeUSD / buyPrice
	if capitalCap < size {
		size = capitalCap
	}
	return size
}
