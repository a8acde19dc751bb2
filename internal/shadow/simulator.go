package shadow

import (
	"encoding/json"
	"time"

	"arbitrage-bot-go/internal/database"
	"arbitrage-bot-go/internal/models"
	"arbitrage-bot-go/internal/scanner"
	"go.uber.org/zap"
)

// FeeTable resolves a venue's taker fee rate, defaulting for unknown venues.
type FeeTable interface {
	TakerFee(exchangeID string) float64
}

// Params snapshots the strategy parameters in effect at simulation time.
type Params struct {
	MaxCapitalPerTradeUSD float64 `json:"-"`
	MaxSlippagePercent    float64 `json:"max_slippage"`
	MinSpreadPercent      float64 `json:"min_spread"`
}

// Simulator computes a hypothetical outcome for every scanned opportunity,
// independent of the risk guard's execution-time limits. Records go to the
// shadow store unconditionally, giving an ungated baseline to compare real
// execution against.
type Simulator struct {
	store  *database.Store
	fees   FeeTable
	logger *zap.Logger
}

// NewSimulator creates a shadow simulator.
func NewSimulator(store *database.Store, fees FeeTable, logger *zap.Logger) *Simulator {
	return &Simulator{store: store, fees: fees, logger: logger}
}

// Simulate computes the hypothetical trade for an opportunity. sizeOverride
// of 0 means the default sizing: capital-per-trade limit divided by the buy
// price. Returns nil for degenerate prices.
func (s *Simulator) Simulate(opp scanner.Opportunity, p Params, sizeOverride float64) *models.ShadowTrade {
	if opp.BuyPrice <= 0 || opp.SellPrice <= 0 {
		return nil
	}

	size := sizeOverride
	if size == 0 {
		size = p.MaxCapitalPerTradeUSD / opp.BuyPrice
	}

	buyFeeRate := s.fees.TakerFee(opp.BuyExchange)
	sellFeeRate := s.fees.TakerFee(opp.SellExchange)

	cost := size * opp.BuyPrice
	revenue := size * opp.SellPrice
	totalFees := cost*buyFeeRate + revenue*sellFeeRate
	slippage := (cost + revenue) * (p.MaxSlippagePercent / 100) / 2
	netProfit := (revenue - cost) - totalFees - slippage

	strategyParams, _ := json.Marshal(struct {
		BuyFeeRate  float64 `json:"buy_fee_rate"`
		SellFeeRate float64 `json:"sell_fee_rate"`
		MaxSlippage float64 `json:"max_slippage"`
		MinSpread   float64 `json:"min_spread"`
	}{buyFeeRate, sellFeeRate, p.MaxSlippagePercent, p.MinSpreadPercent})

	extraInfo, _ := json.Marshal(map[string]float64{
		"position_size_usd": cost,
	})

	return &models.ShadowTrade{
		Timestamp:          time.Now().UTC(),
		Symbol:             opp.Symbol,
		BuyExchange:        opp.BuyExchange,
		SellExchange:       opp.SellExchange,
		BuyPrice:           opp.BuyPrice,
		SellPrice:          opp.SellPrice,
		Amount:             size,
		GrossSpreadPercent: opp.RawSpreadPercent,
		NetSpreadPercent:   opp.NetSpreadPercent,
		FeesEstimated:      totalFees,
		PnlUSD:             netProfit,
		SlippageEstimated:  slippage,
		StrategyParams:     string(strategyParams),
		ExtraInfo:          string(extraInfo),
	}
}

// Record simulates an opportunity and persists the result. Persistence is
// unconditional; shadow trades are never gated by open-trade or rate limits.
func (s *Simulator) Record(opp scanner.Opportunity, p Params) {
	trade := s.Simulate(opp, p, 0)
	if trade == nil {
		return
	}
	if err := s.store.InsertShadowTrade(trade); err != nil {
		s.logger.Error("Failed to save shadow trade",
			zap.String("symbol", trade.Symbol),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("Shadow trade saved",
		zap.String("symbol", trade.Symbol),
		zap.Float64("pnl_usd", trade.PnlUSD),
	)
}
