package models

import (
	"time"

	"gorm.io/gorm"
)

// PerformanceScore is a computed ranking of a symbol/venue-pair route,
// score = avg_pnl_per_trade * win_rate - avg_slippage. The dynamic position
// sizer reads the latest score to scale trade size between its USD bounds.
type PerformanceScore struct {
	gorm.Model
	Symbol       string    `json:"symbol" gorm:"index"`
	BuyExchange  string    `json:"buy_exchange"`
	SellExchange string    `json:"sell_exchange"`
	AvgPnl       float64   `json:"avg_pnl"`
	WinRate      float64   `json:"win_rate"`
	TradeCount   int64     `json:"trade_count"`
	AvgSlippage  float64   `json:"avg_slippage"`
	Score        float64   `json:"score"`
	ComputedAt   time.Time `json:"computed_at"`
}
