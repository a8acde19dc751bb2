package scanner

import (
	"context"
	"time"

	"arbitrage-bot-go/internal/exchange"
	"arbitrage-bot-go/internal/risk"
	"go.uber.org/zap"
)

// Opportunity is a candidate cross-venue trade, produced and consumed within
// one scan cycle. It is emitted only when the net spread clears the effective
// minimum, which adds fees on top of the already fee-reduced net spread as a
// deliberate double-conservative gate.
type Opportunity struct {
	Symbol             string
	BuyExchange        string
	SellExchange       string
	BuyPrice           float64
	SellPrice          float64
	RawSpreadPercent   float64
	NetSpreadPercent   float64
	BuyFeePercent      float64
	SellFeePercent     float64
	EffectiveMinSpread float64
	Timestamp          time.Time
}

// MarketData is the slice of the exchange manager the scanner consumes.
type MarketData interface {
	ExchangeIDs() []string
	TakerFee(exchangeID string) float64
	GetTicker(ctx context.Context, exchangeID, symbol string) (*exchange.Ticker, error)
}

// Thresholds are the spread parameters in effect for one scan cycle, read
// from the parameter cache by the engine.
type Thresholds struct {
	MaxSlippagePercent float64
	SafetyMarginSpread float64
}

// Scanner finds fee-aware arbitrage opportunities across venues.
type Scanner struct {
	markets MarketData
	guard   *risk.Guard
	logger  *zap.Logger
}

// NewScanner creates a scanner over the given market data source.
func NewScanner(markets MarketData, guard *risk.Guard, logger *zap.Logger) *Scanner {
	return &Scanner{markets: markets, guard: guard, logger: logger}
}

type quote struct {
	exchange string
	bid      float64
	ask      float64
}

// FindOpportunities scans every tracked symbol across all venues. Symbols
// blocked by the risk guard are skipped entirely; venues that fail to quote
// count toward the API error breaker and the cycle continues degraded.
func (s *Scanner) FindOpportunities(ctx context.Context, pairs []string, th Thresholds) []Opportunity {
	var opportunities []Opportunity

	for _, symbol := range pairs {
		if !s.guard.ShouldTradeNow(symbol) {
			s.logger.Debug("Skipping symbol, risk guard blocked it", zap.String("symbol", symbol))
			continue
		}

		quotes := s.collectQuotes(ctx, symbol)
		if len(quotes) < 2 {
			continue
		}

		for i, buy := range quotes {
			for j, sell := range quotes {
				if i == j {
					continue
				}

				opp, ok := s.evaluate(symbol, buy, sell, th)
				if !ok {
					continue
				}
				opportunities = append(opportunities, opp)
				s.guard.RecordOpportunityFound()
				s.logger.Info("Opportunity found",
					zap.String("symbol", opp.Symbol),
					zap.String("buy_exchange", opp.BuyExchange),
					zap.String("sell_exchange", opp.SellExchange),
					zap.Float64("buy_price", opp.BuyPrice),
					zap.Float64("sell_price", opp.SellPrice),
					zap.Float64("raw_spread_percent", opp.RawSpreadPercent),
					zap.Float64("net_spread_percent", opp.NetSpreadPercent),
				)
			}
		}
	}

	return opportunities
}

// collectQuotes fetches a valid bid/ask from each venue and feeds every
// mid-price into the guard's volatility window, opportunity or not.
func (s *Scanner) collectQuotes(ctx context.Context, symbol string) []quote {
	var quotes []quote
	for _, exchangeID := range s.markets.ExchangeIDs() {
		ticker, err := s.markets.GetTicker(ctx, exchangeID, symbol)
		if err != nil {
			s.logger.Error("Ticker fetch failed",
				zap.String("exchange", exchangeID),
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			s.guard.RecordAPIError()
			continue
		}
		if ticker == nil || ticker.Bid <= 0 || ticker.Ask <= 0 {
			continue
		}
		quotes = append(quotes, quote{exchange: exchangeID, bid: ticker.Bid, ask: ticker.Ask})
		s.guard.UpdatePriceHistory(symbol, (ticker.Bid+ticker.Ask)/2)
	}
	return quotes
}

// evaluate computes the spread math for one ordered venue pair: buy at the
// buy venue's ask, sell at the sell venue's bid.
func (s *Scanner) evaluate(symbol string, buy, sell quote, th Thresholds) (Opportunity, bool) {
	buyPrice := buy.ask
	sellPrice := sell.bid

	if buyPrice <= 0 {
		return Opportunity{}, false
	}

	rawSpread := (sellPrice - buyPrice) / buyPrice * 100

	buyFee := s.markets.TakerFee(buy.exchange) * 100
	sellFee := s.markets.TakerFee(sell.exchange) * 100
	netSpread := rawSpread - (buyFee + sellFee)

	effectiveMin := buyFee + sellFee + th.MaxSlippagePercent + th.SafetyMarginSpread
	if netSpread < effectiveMin {
		return Opportunity{}, false
	}

	return Opportunity{
		Symbol:             symbol,
		BuyExchange:        buy.exchange,
		SellExchange:       sell.exchange,
		BuyPrice:           buyPrice,
		SellPrice:          sellPrice,
		RawSpreadPercent:   rawSpread,
		NetSpreadPercent:   netSpread,
		BuyFeePercent:      buyFee,
		SellFeePercent:     sellFee,
		EffectiveMinSpread: effectiveMin,
		Timestamp:          time.Now().UTC(),
	}, true
}
