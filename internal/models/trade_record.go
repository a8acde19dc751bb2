package models

import (
	"time"

	"gorm.io/gorm"
)

// TradeRecord is the durable row written for every completed arbitrage trade.
// Failed trades are kept in the in-memory history only and never reach this
// table, so PnL aggregates are computed over executed trades alone.
type TradeRecord struct {
	gorm.Model
	Timestamp          time.Time `json:"timestamp" gorm:"index:idx_trades_timestamp,sort:desc"`
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
	DryRun             bool      `json:"dry_run"`
	ExtraInfo          string    `json:"extra_info,omitempty"`
}
