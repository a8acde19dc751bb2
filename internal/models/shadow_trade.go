package models

import (
	"time"

	"gorm.io/gorm"
)

// ShadowTrade is a hypothetical trade computed for every scanned opportunity,
// whether or not the risk guard would have allowed real execution. It is
// terminal on creation: there is no pending state and no real order refs.
type ShadowTrade struct {
	gorm.Model
	Timestamp          time.Time `json:"timestamp" gorm:"index:idx_shadow_timestamp,sort:desc"`
	Symbol             string    `json:"symbol" gorm:"index"`
	BuyExchange        string    `json:"buy_exchange"`
	SellExchange       string    `json:"sell_exchange"`
	BuyPrice           float64   `json:"buy_price"`
	SellPrice          float64   `json:"sell_price"`
	Amount             float64   `json:"amount"`
	GrossSpreadPercent float64   `json:"gross_spread_percent"`
	NetSpreadPercent   float64   `json:"net_spread_percent"`
	FeesEstimated      float64   `json:"fees_estimated"`
	PnlUSD             float64   `json:"pnl_usd"`
	SlippageEstimated  float64   `json:"slippage_estimated"`
	// StrategyParams snapshots the fee/threshold parameters in effect at
	// simulation time, as JSON.
	StrategyParams string `json:"strategy_params,omitempty"`
	ExtraInfo      string `json:"extra_info,omitempty"`
}
