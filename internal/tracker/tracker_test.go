package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"arbitrage-bot-go/internal/database"
	"arbitrage-bot-go/internal/exchange"
	"arbitrage-bot-go/internal/risk"
	"arbitrage-bot-go/internal/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockOrderPlacer is a mock implementation of the OrderPlacer interface.
type MockOrderPlacer struct {
	mock.Mock
}

func (m *MockOrderPlacer) CreateOrder(ctx context.Context, exchangeID, symbol, side, orderType string, amount, price float64) (*exchange.Order, error) {
	args := m.Called(exchangeID, side, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchange.Order), args.Error(1)
}

func (m *MockOrderPlacer) DryRun() bool {
	args := m.Called()
	return args.Get(0).(bool)
}

// setupTracker creates a tracker over a mock order placer and fresh in-memory
// databases.
func setupTracker(t *testing.T) (*Tracker, *MockOrderPlacer, *risk.Guard, *database.Store) {
	t.Helper()

	db, err := database.NewDatabase("file::memory:")
	assert.NoError(t, err)
	shadowDB, err := database.NewShadowDatabase("file::memory:")
	assert.NoError(t, err)
	store := database.NewStore(db, shadowDB, zap.NewNop())

	guard := risk.NewGuard(risk.Limits{
		MaxCapitalPerTradeUSD:      500,
		MaxDailyLossUSD:            1000,
		MaxOpenTrades:              5,
		MaxBalanceUsagePerExchange: 0.5,
		MaxTradesPerHour:           50,
		MaxAPIErrors:               20,
		APIErrorWindow:             5 * time.Minute,
	}, zap.NewNop())

	orders := new(MockOrderPlacer)
	orders.On("DryRun").Return(false).Maybe()

	return NewTracker(orders, guard, store, zap.NewNop()), orders, guard, store
}

func testOpportunity() scanner.Opportunity {
	return scanner.Opportunity{
		Symbol:           "BTC/USDT",
		BuyExchange:      "kraken",
		SellExchange:     "okx",
		BuyPrice:         50000,
		SellPrice:        50500,
		RawSpreadPercent: 1.0,
		NetSpreadPercent: 0.84,
	}
}

func testBalances() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"kraken": {"USDT": 100000},
		"okx":    {"BTC": 1.0},
	}
}

var testParams = ExecuteParams{
	MinSpreadPercent:   0.3,
	MaxSlippagePercent: 0.15,
	DefaultFeePercent:  0.1,
}

func TestExecute_BothLegsSucceed(t *testing.T) {
	// Arrange
	tr, orders, guard, store := setupTracker(t)
	// Capital cap: 500/50000 = 0.01 base units.
	orders.On("CreateOrder", "kraken", "buy", 0.01).
		Return(&exchange.Order{ID: "B1", Exchange: "kraken"}, nil)
	orders.On("CreateOrder", "okx", "sell", 0.01).
		Return(&exchange.Order{ID: "S1", Exchange: "okx"}, nil)

	// Act
	trade := tr.Execute(context.Background(), testOpportunity(), testBalances(), testParams)

	// Assert
	assert.NotNil(t, trade)
	assert.Equal(t, StatusCompleted, trade.Status)
	// cost = 500, revenue = 505, fees = 1005 * 0.1% = 1.005.
	assert.InDelta(t, 3.995, trade.EstimatedProfitUSD, 1e-9)
	assert.InDelta(t, 3.995, guard.DailyPnl(), 1e-9)

	// Completed trade left the pending set and entered history and storage.
	assert.Equal(t, 0, tr.OpenTradesCount())
	assert.Len(t, tr.History(), 1)
	records, err := store.RecentTrades(10)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.InDelta(t, 3.995, records[0].PnlUSD, 1e-9)
	orders.AssertExpectations(t)
}

func TestExecute_FailureReasonTags(t *testing.T) {
	rejection := &exchange.RejectedError{Exchange: "x", Code: "51008", Message: "insufficient balance"}
	transport := errors.New("connection reset")

	testCases := []struct {
		name           string
		buyErr         error
		sellErr        error
		expectedReason string
		expectPartial  bool
	}{
		{name: "Buy leg rejected", buyErr: rejection, expectedReason: ReasonBuyFailed},
		{name: "Buy leg transport error", buyErr: transport, expectedReason: ReasonBuyException},
		{name: "Sell leg rejected", sellErr: rejection, expectedReason: ReasonSellFailed, expectPartial: true},
		{name: "Sell leg transport error", sellErr: transport, expectedReason: ReasonSellException, expectPartial: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			tr, orders, guard, store := setupTracker(t)
			if tc.buyErr != nil {
				orders.On("CreateOrder", "kraken", "buy", 0.01).Return(nil, tc.buyErr)
			} else {
				orders.On("CreateOrder", "kraken", "buy", 0.01).
					Return(&exchange.Order{ID: "B1", Exchange: "kraken"}, nil)
				orders.On("CreateOrder", "okx", "sell", 0.01).Return(nil, tc.sellErr)
			}

			// Act
			trade := tr.Execute(context.Background(), testOpportunity(), testBalances(), testParams)

			// Assert
			assert.NotNil(t, trade)
			assert.Equal(t, StatusFailed, trade.Status)
			assert.Equal(t, tc.expectedReason, trade.FailureReason)
			if tc.expectPartial {
				// The filled buy leg survives as an unhedged position.
				assert.NotNil(t, trade.PartialOrder)
				assert.Equal(t, "B1", trade.PartialOrder.ID)
			} else {
				assert.Nil(t, trade.PartialOrder)
			}

			// Failed trades reach the in-memory history but never storage.
			assert.Len(t, tr.History(), 1)
			records, err := store.RecentTrades(10)
			assert.NoError(t, err)
			assert.Empty(t, records)
			assert.Equal(t, 0.0, guard.DailyPnl())
		})
	}
}

func TestExecute_ReducesSizeToSellSideInventory(t *testing.T) {
	// Arrange
	tr, orders, _, _ := setupTracker(t)
	balances := testBalances()
	balances["okx"]["BTC"] = 0.004

	orders.On("CreateOrder", "kraken", "buy", 0.004).
		Return(&exchange.Order{ID: "B1"}, nil)
	orders.On("CreateOrder", "okx", "sell", 0.004).
		Return(&exchange.Order{ID: "S1"}, nil)

	// Act
	trade := tr.Execute(context.Background(), testOpportunity(), balances, testParams)

	// Assert
	assert.NotNil(t, trade)
	assert.Equal(t, 0.004, trade.PositionSize)
	orders.AssertExpectations(t)
}

func TestExecute_DropsOpportunityBeforeTradeExists(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(opp *scanner.Opportunity, balances map[string]map[string]float64, p *ExecuteParams)
		expected string
	}{
		{
			name: "No quote balance on buy exchange",
			mutate: func(opp *scanner.Opportunity, balances map[string]map[string]float64, p *ExecuteParams) {
				balances["kraken"]["USDT"] = 0
			},
		},
		{
			name: "No base inventory on sell exchange",
			mutate: func(opp *scanner.Opportunity, balances map[string]map[string]float64, p *ExecuteParams) {
				balances["okx"]["BTC"] = 0
			},
		},
		{
			name: "Spread after slippage below minimum",
			mutate: func(opp *scanner.Opportunity, balances map[string]map[string]float64, p *ExecuteParams) {
				opp.NetSpreadPercent = 0.4 // 0.4 - 0.15 < 0.3
			},
		},
		{
			name: "Malformed symbol",
			mutate: func(opp *scanner.Opportunity, balances map[string]map[string]float64, p *ExecuteParams) {
				opp.Symbol = "BTCUSDT"
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			tr, orders, _, _ := setupTracker(t)
			opp := testOpportunity()
			balances := testBalances()
			p := testParams
			tc.mutate(&opp, balances, &p)

			// Act
			trade := tr.Execute(context.Background(), opp, balances, p)

			// Assert: dropped before any order was placed.
			assert.Nil(t, trade)
			assert.Equal(t, 0, tr.OpenTradesCount())
			assert.Empty(t, tr.History())
			orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestTerminalTransitionHappensOnce(t *testing.T) {
	// Arrange
	tr, _, guard, _ := setupTracker(t)
	trade := &Trade{ID: "T1", Status: StatusPending, PositionSize: 0.01, BuyPrice: 50000, SellPrice: 50500}
	tr.pending[trade.ID] = trade

	// Act
	tr.complete(trade, &exchange.Order{ID: "B1"}, &exchange.Order{ID: "S1"}, testParams)
	tr.markFailed(trade, ReasonSellException, nil)

	// Assert: the second transition is a no-op.
	assert.Equal(t, StatusCompleted, trade.Status)
	assert.Empty(t, trade.FailureReason)
	assert.Len(t, tr.History(), 1)
	assert.InDelta(t, 3.995, guard.DailyPnl(), 1e-9)
}

func TestHistoryRingEvictsOldestFirst(t *testing.T) {
	// Arrange
	tr, _, _, _ := setupTracker(t)

	// Act
	for i := 0; i < maxHistory+5; i++ {
		tr.archive(&Trade{ID: fmt.Sprintf("T%d", i), Status: StatusFailed})
	}

	// Assert
	history := tr.History()
	assert.Len(t, history, maxHistory)
	assert.Equal(t, "T5", history[0].ID)
	assert.Equal(t, fmt.Sprintf("T%d", maxHistory+4), history[maxHistory-1].ID)
}
