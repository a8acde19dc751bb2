package optimizer

import (
	"fmt"
	"time"

	"arbitrage-bot-go/internal/database"
	"arbitrage-bot-go/internal/models"
	"arbitrage-bot-go/internal/risk"
	"go.uber.org/zap"
)

// Comparison puts realized trading and the ungated shadow baseline side by
// side over the same trailing period.
type Comparison struct {
	Real         database.Stats `json:"real"`
	Shadow       database.Stats `json:"shadow"`
	ShadowBetter bool           `json:"shadow_better"`
}

// Optimizer analyzes historical performance, persists route scores and feeds
// the dynamic position sizer.
type Optimizer struct {
	store  *database.Store
	logger *zap.Logger
}

// New creates an Optimizer over the store.
func New(store *database.Store, logger *zap.Logger) *Optimizer {
	return &Optimizer{store: store, logger: logger}
}

// RouteStats returns the sizer inputs for a symbol over a trailing number of
// days. Slippage is not measured per-trade yet, so it contributes zero.
func (o *Optimizer) RouteStats(symbol string, days int) (risk.PerformanceStats, error) {
	stats, err := o.store.PairPerformance(symbol, days)
	if err != nil {
		return risk.PerformanceStats{}, err
	}
	return risk.PerformanceStats{
		AvgPnlPerTrade: stats.AvgPnlPerTrade,
		WinRate:        stats.WinRate,
		AvgSlippage:    stats.AvgSlippage,
	}, nil
}

// ScoreRoute computes and persists a performance score for a symbol routed
// through a specific buy/sell venue pair.
func (o *Optimizer) ScoreRoute(symbol, buyExchange, sellExchange string, days int) (*models.PerformanceScore, error) {
	stats, err := o.store.VenuePairPerformance(buyExchange, sellExchange, days)
	if err != nil {
		return nil, fmt.Errorf("failed to score route %s %s->%s: %w", symbol, buyExchange, sellExchange, err)
	}

	score := &models.PerformanceScore{
		Symbol:       symbol,
		BuyExchange:  buyExchange,
		SellExchange: sellExchange,
		AvgPnl:       stats.AvgPnlPerTrade,
		WinRate:      stats.WinRate,
		TradeCount:   stats.TradeCount,
		AvgSlippage:  stats.AvgSlippage,
		Score:        stats.AvgPnlPerTrade*stats.WinRate - stats.AvgSlippage,
		ComputedAt:   time.Now().UTC(),
	}
	if err := o.store.SavePerformanceScore(score); err != nil {
		return nil, err
	}
	return score, nil
}

// CompareShadowVsReal aggregates realized and shadow trades over a trailing
// number of days.
func (o *Optimizer) CompareShadowVsReal(days int) (Comparison, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	realStats, err := o.store.StatsSince(cutoff)
	if err != nil {
		return Comparison{}, err
	}
	shadowStats, err := o.store.ShadowStatsSince(cutoff)
	if err != nil {
		return Comparison{}, err
	}

	return Comparison{
		Real:         realStats,
		Shadow:       shadowStats,
		ShadowBetter: shadowStats.AvgPnlPerTrade > realStats.AvgPnlPerTrade,
	}, nil
}

// TuneMinSpread nudges the MIN_SPREAD_PERCENT parameter from recent realized
// performance: a high win rate relaxes the threshold, a poor one tightens it.
// The delta is clamped by the change limit so automated tuning can only move
// the tunable gradually, and the stored value stays inside its bounds. Returns
// the value in effect afterwards.
func (o *Optimizer) TuneMinSpread(days int, changeLimitPercent float64) (float64, error) {
	param, err := o.store.GetParameter("MIN_SPREAD_PERCENT")
	if err != nil {
		return 0, err
	}
	if param == nil {
		return 0, fmt.Errorf("MIN_SPREAD_PERCENT parameter missing")
	}

	stats, err := o.store.StatsSince(time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		return 0, err
	}
	// Too little history to draw conclusions from.
	if stats.TotalTrades < 20 {
		return param.Value, nil
	}

	target := param.Value
	switch {
	case stats.WinRate > 70:
		target = param.Value * 0.95
	case stats.WinRate < 40:
		target = param.Value * 1.10
	default:
		return param.Value, nil
	}

	stored, err := o.store.UpdateParameterLimited("MIN_SPREAD_PERCENT", target, changeLimitPercent)
	if err != nil {
		return 0, err
	}
	o.logger.Info("Tuned minimum spread",
		zap.Float64("win_rate", stats.WinRate),
		zap.Float64("previous", param.Value),
		zap.Float64("stored", stored),
	)
	return stored, nil
}

// RunDaily recomputes per-symbol performance over the trailing week and flags
// symbols whose win rate has degraded enough to consider disabling.
func (o *Optimizer) RunDaily(pairs []string) map[string]database.PairStats {
	results := make(map[string]database.PairStats, len(pairs))
	for _, symbol := range pairs {
		stats, err := o.store.PairPerformance(symbol, 7)
		if err != nil {
			o.logger.Error("Failed to compute pair performance",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}
		results[symbol] = stats

		if stats.TradeCount >= 10 && stats.WinRate < 0.4 {
			o.logger.Warn("Symbol has low win rate, consider disabling",
				zap.String("symbol", symbol),
				zap.Float64("win_rate", stats.WinRate),
				zap.Int64("trade_count", stats.TradeCount),
			)
		}
	}
	return results
}
