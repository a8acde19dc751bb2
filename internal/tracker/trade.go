package tracker

import (
	"time"

	"arbitrage-bot-go/internal/exchange"
)

// Trade statuses. A trade is created pending and makes exactly one terminal
// transition to completed or failed.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Failure reason tags. The *_failed variants mean the venue answered with a
// structured rejection; the *_exception variants cover transport-level
// failures.
const (
	ReasonBuyException  = "buy_exception"
	ReasonBuyFailed     = "buy_failed"
	ReasonSellException = "sell_exception"
	ReasonSellFailed    = "sell_failed"
)

// Trade is the in-memory lifecycle record of one two-leg arbitrage execution.
type Trade struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	BuyExchange   string          `json:"buy_exchange"`
	SellExchange  string          `json:"sell_exchange"`
	PositionSize  float64         `json:"position_size"`
	BuyPrice      float64         `json:"buy_price"`
	SellPrice     float64         `json:"sell_price"`
	Status        string          `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	BuyOrder      *exchange.Order `json:"buy_order,omitempty"`
	SellOrder     *exchange.Order `json:"sell_order,omitempty"`
	// PartialOrder holds the leg that succeeded before the other leg failed.
	// It represents a real, unhedged position; nothing unwinds it automatically.
	PartialOrder       *exchange.Order `json:"partial_order,omitempty"`
	EstimatedProfitUSD float64         `json:"estimated_profit_usd"`
	CreatedAt          time.Time       `json:"created_at"`
	CompletedAt        time.Time       `json:"completed_at,omitempty"`
}
