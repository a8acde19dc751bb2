package scanner

import (
	"context"
	"errors"
	"testing"

	"arbitrage-bot-go/internal/exchange"
	"arbitrage-bot-go/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockMarketData is a mock implementation of the MarketData interface.
type MockMarketData struct {
	mock.Mock
}

func (m *MockMarketData) ExchangeIDs() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockMarketData) TakerFee(exchangeID string) float64 {
	args := m.Called(exchangeID)
	return args.Get(0).(float64)
}

func (m *MockMarketData) GetTicker(ctx context.Context, exchangeID, symbol string) (*exchange.Ticker, error) {
	args := m.Called(ctx, exchangeID, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchange.Ticker), args.Error(1)
}

func setupScanner(t *testing.T) (*Scanner, *MockMarketData, *risk.Guard) {
	t.Helper()
	markets := new(MockMarketData)
	guard := risk.NewGuard(risk.Limits{
		MaxDailyLossUSD:      1000,
		MaxTradesPerHour:     50,
		MaxAPIErrors:         20,
		VolatilityThreshold:  2.0,
		VolatilityWindowSize: 10,
	}, zap.NewNop())
	return NewScanner(markets, guard, zap.NewNop()), markets, guard
}

// Fee setup used throughout: buying on kraken costs 0.26%, selling on okx
// costs 0.10%, so the effective minimum spread with 0.15% slippage and a
// 0.15% safety margin is 0.36 + 0.30 = 0.66%.
var thresholds = Thresholds{MaxSlippagePercent: 0.15, SafetyMarginSpread: 0.15}

func mockFees(markets *MockMarketData) {
	markets.On("TakerFee", "kraken").Return(0.0026)
	markets.On("TakerFee", "okx").Return(0.0010)
}

func TestFindOpportunities_EmitsWhenSpreadClearsEffectiveMin(t *testing.T) {
	// Arrange
	s, markets, _ := setupScanner(t)
	markets.On("ExchangeIDs").Return([]string{"kraken", "okx"})
	mockFees(markets)
	// Raw spread kraken ask -> okx bid: (50600-50000)/50000 = 1.2%.
	// Net = 1.2 - 0.36 = 0.84, above the 0.66 effective minimum.
	markets.On("GetTicker", mock.Anything, "kraken", "BTC/USDT").
		Return(&exchange.Ticker{Symbol: "BTC/USDT", Exchange: "kraken", Bid: 49990, Ask: 50000}, nil)
	markets.On("GetTicker", mock.Anything, "okx", "BTC/USDT").
		Return(&exchange.Ticker{Symbol: "BTC/USDT", Exchange: "okx", Bid: 50600, Ask: 50610}, nil)

	// Act
	opps := s.FindOpportunities(context.Background(), []string{"BTC/USDT"}, thresholds)

	// Assert
	assert.Len(t, opps, 1)
	opp := opps[0]
	assert.Equal(t, "kraken", opp.BuyExchange)
	assert.Equal(t, "okx", opp.SellExchange)
	assert.Equal(t, 50000.0, opp.BuyPrice)
	assert.Equal(t, 50600.0, opp.SellPrice)
	assert.InDelta(t, 1.2, opp.RawSpreadPercent, 0.001)
	assert.InDelta(t, 0.84, opp.NetSpreadPercent, 0.001)
	assert.InDelta(t, 0.66, opp.EffectiveMinSpread, 0.001)
}

func TestFindOpportunities_RejectsPositiveButThinSpread(t *testing.T) {
	// Arrange
	s, markets, _ := setupScanner(t)
	markets.On("ExchangeIDs").Return([]string{"kraken", "okx"})
	mockFees(markets)
	// Raw spread 1.0% leaves net 0.64% after fees. That is still profitable
	// on paper, but below the 0.66% effective minimum, so nothing is emitted.
	markets.On("GetTicker", mock.Anything, "kraken", "BTC/USDT").
		Return(&exchange.Ticker{Symbol: "BTC/USDT", Exchange: "kraken", Bid: 49990, Ask: 50000}, nil)
	markets.On("GetTicker", mock.Anything, "okx", "BTC/USDT").
		Return(&exchange.Ticker{Symbol: "BTC/USDT", Exchange: "okx", Bid: 50500, Ask: 50510}, nil)

	// Act
	opps := s.FindOpportunities(context.Background(), []string{"BTC/USDT"}, thresholds)

	// Assert
	assert.Empty(t, opps)
}

func TestFindOpportunities_SingleQuotingVenueSkipsSymbol(t *testing.T) {
	// Arrange
	s, markets, guard := setupScanner(t)
	markets.On("ExchangeIDs").Return([]string{"kraken", "okx"})
	markets.On("GetTicker", mock.Anything, "kraken", "BTC/USDT").
		Return(&exchange.Ticker{Symbol: "BTC/USDT", Exchange: "kraken", Bid: 49990, Ask: 50000}, nil)
	markets.On("GetTicker", mock.Anything, "okx", "BTC/USDT").
		Return(nil, errors.New("connection reset"))

	// Act
	opps := s.FindOpportunities(context.Background(), []string{"BTC/USDT"}, thresholds)

	// Assert
	assert.Empty(t, opps)
	// The failed venue counts toward the error breaker.
	assert.Equal(t, 1, guard.APIErrorCount())
}

func TestFindOpportunities_FeedsMidPricesIntoVolatilityWindow(t *testing.T) {
	// Arrange
	s, markets, guard := setupScanner(t)
	markets.On("ExchangeIDs").Return([]string{"kraken", "okx"})
	mockFees(markets)
	markets.On("GetTicker", mock.Anything, "kraken", "BTC/USDT").
		Return(&exchange.Ticker{Symbol: "BTC/USDT", Exchange: "kraken", Bid: 49990, Ask: 50010}, nil)
	markets.On("GetTicker", mock.Anything, "okx", "BTC/USDT").
		Return(&exchange.Ticker{Symbol: "BTC/USDT", Exchange: "okx", Bid: 50090, Ask: 50110}, nil)

	// Act
	s.FindOpportunities(context.Background(), []string{"BTC/USDT"}, thresholds)

	// Assert: mid-prices recorded even though no opportunity was emitted.
	assert.Equal(t, []float64{50000, 50100}, guard.PriceHistory("BTC/USDT"))
}

func TestFindOpportunities_SkipsSymbolBlockedByGuard(t *testing.T) {
	// Arrange
	s, markets, guard := setupScanner(t)
	guard.SetTradingEnabled(false, "test")

	// Act
	opps := s.FindOpportunities(context.Background(), []string{"BTC/USDT"}, thresholds)

	// Assert: no ticker fetch was attempted at all.
	assert.Empty(t, opps)
	markets.AssertNotCalled(t, "GetTicker", mock.Anything, mock.Anything, mock.Anything)
}

func TestFindOpportunities_IgnoresDegenerateQuotes(t *testing.T) {
	// Arrange
	s, markets, _ := setupScanner(t)
	markets.On("ExchangeIDs").Return([]string{"kraken", "okx"})
	markets.On("GetTicker", mock.Anything, "kraken", "BTC/USDT").
		Return(&exchange.Ticker{Symbol: "BTC/USDT", Exchange: "kraken", Bid: 0, Ask: 50000}, nil)
	markets.On("GetTicker", mock.Anything, "okx", "BTC/USDT").
		Return(&exchange.Ticker{Symbol: "BTC/USDT", Exchange: "okx", Bid: 50600, Ask: 50610}, nil)

	// Act
	opps := s.FindOpportunities(context.Background(), []string{"BTC/USDT"}, thresholds)

	// Assert: the zero-bid quote is discarded, leaving one venue.
	assert.Empty(t, opps)
}
