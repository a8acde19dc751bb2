package exchange

import (
	"context"
	"fmt"
)

const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
	OrderSideBuy    = "buy"
	OrderSideSell   = "sell"
)

// Ticker is an atomic best bid/ask snapshot for a symbol on one venue.
type Ticker struct {
	Symbol   string
	Exchange string
	Bid      float64
	Ask      float64
	Last     float64
}

// Order is the record returned by a venue after order submission.
type Order struct {
	ID       string  `json:"id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Type     string  `json:"type"`
	Amount   float64 `json:"amount"`
	Price    float64 `json:"price,omitempty"`
	Status   string  `json:"status"`
	Exchange string  `json:"exchange"`
}

// RejectedError is returned when a venue accepted the request but answered
// with a structured error payload, as opposed to a transport-level failure.
type RejectedError struct {
	Exchange string
	Code     string
	Message  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected order (%s): %s", e.Exchange, e.Code, e.Message)
}

// Client is the capability interface implemented once per venue. Calls are
// synchronous; each client carries its own timeout and rate limiting, and any
// returned error is treated by the caller as a hard failure.
type Client interface {
	Name() string
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetBalances(ctx context.Context) (map[string]float64, error)
	CreateOrder(ctx context.Context, symbol, side, orderType string, amount, price float64) (*Order, error)
}
