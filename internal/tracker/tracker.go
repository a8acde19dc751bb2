package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"arbitrage-bot-go/internal/database"
	"arbitrage-bot-go/internal/exchange"
	"arbitrage-bot-go/internal/models"
	"arbitrage-bot-go/internal/risk"
	"arbitrage-bot-go/internal/scanner"
	"go.uber.org/zap"
)

// maxHistory bounds the in-memory trade history ring. Oldest entries are
// evicted first once the bound is exceeded.
const maxHistory = 100

// OrderPlacer is the slice of the exchange manager the tracker consumes.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, exchangeID, symbol, side, orderType string, amount, price float64) (*exchange.Order, error)
	DryRun() bool
}

// ExecuteParams are the spread/fee parameters in effect for one execution,
// read from the parameter cache by the engine.
type ExecuteParams struct {
	MinSpreadPercent   float64
	MaxSlippagePercent float64
	DefaultFeePercent  float64
}

// Tracker owns the pending-trade set and the bounded trade-history ring. It
// runs the two-leg order sequence and records exactly one terminal outcome
// per trade. Completed trades are additionally persisted to durable storage;
// failed trades stay in the in-memory history only.
type Tracker struct {
	orders OrderPlacer
	guard  *risk.Guard
	store  *database.Store
	logger *zap.Logger

	// Pending set and history share the guard's single mutual-exclusion
	// domain requirement via the guard-independent lock below; both are
	// mutated only from the path that executes trades.
	pending map[string]*Trade
	history []*Trade
}

// NewTracker creates a trade lifecycle tracker.
func NewTracker(orders OrderPlacer, guard *risk.Guard, store *database.Store, logger *zap.Logger) *Tracker {
	return &Tracker{
		orders:  orders,
		guard:   guard,
		store:   store,
		logger:  logger,
		pending: make(map[string]*Trade),
	}
}

// OpenTradesCount returns the number of currently pending trades.
func (t *Tracker) OpenTradesCount() int {
	return len(t.pending)
}

// OpenTrades returns the currently pending trades.
func (t *Tracker) OpenTrades() []*Trade {
	out := make([]*Trade, 0, len(t.pending))
	for _, trade := range t.pending {
		out = append(out, trade)
	}
	return out
}

// History returns the terminal trades, oldest first.
func (t *Tracker) History() []*Trade {
	out := make([]*Trade, len(t.history))
	copy(out, t.history)
	return out
}

// splitSymbol extracts base and quote assets from a "BASE/QUOTE" symbol.
func splitSymbol(symbol string) (string, string) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ""
	}
	return parts[0], parts[1]
}

// Execute sizes and runs the two-leg order sequence for an opportunity.
// It returns the terminal trade when one was created (completed or failed),
// and nil when the opportunity was dropped before a trade existed.
func (t *Tracker) Execute(ctx context.Context, opp scanner.Opportunity, balances map[string]map[string]float64, p ExecuteParams) *Trade {
	base, quote := splitSymbol(opp.Symbol)
	if base == "" || quote == "" {
		t.logger.Error("Invalid symbol format", zap.String("symbol", opp.Symbol))
		return nil
	}

	l := t.logger.With(
		zap.String("symbol", opp.Symbol),
		zap.String("buy_exchange", opp.BuyExchange),
		zap.String("sell_exchange", opp.SellExchange),
	)

	quoteAvailable := balances[opp.BuyExchange][quote]
	if quoteAvailable <= 0 {
		l.Warn("Insufficient quote balance on buy exchange", zap.String("asset", quote))
		return nil
	}

	size := t.guard.PositionSize(quoteAvailable, opp.NetSpreadPercent, opp.BuyPrice)
	if size <= 0 {
		l.Warn("Calculated position size is zero or negative")
		return nil
	}

	// The sell leg needs base-asset inventory on the sell venue. Reduce the
	// size to what is actually there rather than walking away entirely.
	if baseAvailable := balances[opp.SellExchange][base]; baseAvailable < size {
		size = baseAvailable
		if size <= 0 {
			l.Warn("Insufficient base balance on sell exchange", zap.String("asset", base))
			return nil
		}
	}

	// Re-validate assuming worst-case slippage eats into the spread.
	if degraded := opp.NetSpreadPercent - p.MaxSlippagePercent; degraded < p.MinSpreadPercent {
		l.Warn("Spread after slippage below minimum",
			zap.Float64("degraded_spread_percent", degraded),
			zap.Float64("min_spread_percent", p.MinSpreadPercent),
		)
		return nil
	}

	now := time.Now().UTC()
	trade := &Trade{
		ID:           fmt.Sprintf("%s_%s_%s_%d", opp.Symbol, opp.BuyExchange, opp.SellExchange, now.UnixMilli()),
		Symbol:       opp.Symbol,
		BuyExchange:  opp.BuyExchange,
		SellExchange: opp.SellExchange,
		PositionSize: size,
		BuyPrice:     opp.BuyPrice,
		SellPrice:    opp.SellPrice,
		Status:       StatusPending,
		CreatedAt:    now,
	}
	t.pending[trade.ID] = trade

	l.Info("Executing arbitrage",
		zap.Float64("position_size", size),
		zap.Float64("buy_price", opp.BuyPrice),
		zap.Float64("sell_price", opp.SellPrice),
	)

	buyOrder, err := t.orders.CreateOrder(ctx, opp.BuyExchange, opp.Symbol, exchange.OrderSideBuy, exchange.OrderTypeMarket, size, 0)
	if err != nil {
		l.Error("Buy leg failed", zap.Error(err))
		t.markFailed(trade, failureReason(err, true), nil)
		return trade
	}

	sellOrder, err := t.orders.CreateOrder(ctx, opp.SellExchange, opp.Symbol, exchange.OrderSideSell, exchange.OrderTypeMarket, size, 0)
	if err != nil {
		l.Error("Sell leg failed, buy leg already filled", zap.Error(err))
		t.markFailed(trade, failureReason(err, false), buyOrder)
		return trade
	}

	t.complete(trade, buyOrder, sellOrder, p)
	l.Info("Trade executed",
		zap.Float64("position_size", size),
		zap.Float64("estimated_profit_usd", trade.EstimatedProfitUSD),
	)
	return trade
}

// failureReason maps a leg error to its reason tag: structured venue
// rejections get *_failed, transport-level failures get *_exception.
func failureReason(err error, buyLeg bool) string {
	var rejected *exchange.RejectedError
	if errors.As(err, &rejected) {
		if buyLeg {
			return ReasonBuyFailed
		}
		return ReasonSellFailed
	}
	if buyLeg {
		return ReasonBuyException
	}
	return ReasonSellException
}

// markFailed makes the single terminal transition to failed, retaining the
// already-filled leg (if any) as the partial order, and archives the trade.
func (t *Tracker) markFailed(trade *Trade, reason string, partial *exchange.Order) {
	if trade.Status != StatusPending {
		return
	}
	trade.Status = StatusFailed
	trade.FailureReason = reason
	trade.PartialOrder = partial
	trade.CompletedAt = time.Now().UTC()
	t.archive(trade)
	t.logger.Warn("Trade marked as failed",
		zap.String("trade_id", trade.ID),
		zap.String("reason", reason),
		zap.Bool("partial_order", partial != nil),
	)
}

// complete makes the single terminal transition to completed, updates the
// daily PnL accumulator, archives the trade and persists it durably.
func (t *Tracker) complete(trade *Trade, buyOrder, sellOrder *exchange.Order, p ExecuteParams) {
	if trade.Status != StatusPending {
		return
	}

	cost := trade.PositionSize * trade.BuyPrice
	revenue := trade.PositionSize * trade.SellPrice
	feeCost := (cost + revenue) * (p.DefaultFeePercent / 100)
	netProfit := (revenue - cost) - feeCost

	trade.Status = StatusCompleted
	trade.BuyOrder = buyOrder
	trade.SellOrder = sellOrder
	trade.EstimatedProfitUSD = netProfit
	trade.CompletedAt = time.Now().UTC()
	t.archive(trade)

	t.guard.UpdateDailyPnl(netProfit)
	t.persist(trade, feeCost, p)
}

// archive moves a terminal trade from the pending set into the history ring,
// evicting the oldest entry past capacity.
func (t *Tracker) archive(trade *Trade) {
	delete(t.pending, trade.ID)
	t.history = append(t.history, trade)
	if len(t.history) > maxHistory {
		t.history = t.history[1:]
	}
}

// persist writes the completed trade to durable storage. Failed trades are
// deliberately not persisted so PnL aggregates only cover executed trades.
func (t *Tracker) persist(trade *Trade, feeCost float64, p ExecuteParams) {
	rawSpread := 0.0
	if trade.BuyPrice > 0 {
		rawSpread = (trade.SellPrice - trade.BuyPrice) / trade.BuyPrice * 100
	}
	netSpread := rawSpread - p.DefaultFeePercent*2

	extraInfo, _ := json.Marshal(struct {
		BuyOrder  *exchange.Order `json:"buy_order"`
		SellOrder *exchange.Order `json:"sell_order"`
		TradeID   string          `json:"trade_id"`
	}{trade.BuyOrder, trade.SellOrder, trade.ID})

	rec := &models.TradeRecord{
		Timestamp:          trade.CompletedAt,
		Symbol:             trade.Symbol,
		BuyExchange:        trade.BuyExchange,
		SellExchange:       trade.SellExchange,
		BuyPrice:           trade.BuyPrice,
		SellPrice:          trade.SellPrice,
		Amount:             trade.PositionSize,
		GrossSpreadPercent: rawSpread,
		NetSpreadPercent:   netSpread,
		FeesEstimated:      feeCost,
		PnlUSD:             trade.EstimatedProfitUSD,
		DryRun:             t.orders.DryRun(),
		ExtraInfo:          string(extraInfo),
	}
	if err := t.store.InsertTrade(rec); err != nil {
		t.logger.Error("Failed to save trade to database",
			zap.String("trade_id", trade.ID),
			zap.Error(err),
		)
		return
	}
	t.logger.Debug("Trade saved to database", zap.String("trade_id", trade.ID))
}
