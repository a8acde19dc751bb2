package exchange

import (
	"context"
	"fmt"

	"arbitrage-bot-go/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultTakerFee is used for venues missing from the fee table.
const defaultTakerFee = 0.001

// Manager holds one client per enabled venue and routes calls by venue id.
// In dry-run mode orders are simulated instead of submitted.
type Manager struct {
	clients map[string]Client
	fees    map[string]config.FeePair
	dryRun  bool
	logger  *zap.Logger
}

// NewManager builds clients for each enabled venue. Venues that fail to
// initialize are logged and skipped rather than aborting startup.
func NewManager(cfg *config.Exchanges, dryRun bool, logger *zap.Logger) *Manager {
	m := &Manager{
		clients: make(map[string]Client),
		fees:    cfg.Fees,
		dryRun:  dryRun,
		logger:  logger,
	}

	for _, id := range cfg.Enabled {
		client, err := newClient(id, cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize exchange", zap.String("exchange", id), zap.Error(err))
			continue
		}
		m.clients[id] = client
		logger.Info("Initialized exchange", zap.String("exchange", id))
	}

	return m
}

// newClient selects the venue implementation by id.
func newClient(id string, cfg *config.Exchanges, logger *zap.Logger) (Client, error) {
	switch id {
	case "binance":
		return NewBinanceClient(cfg, logger), nil
	case "kraken":
		return NewKrakenClient(cfg, logger), nil
	case "okx":
		return NewOKXClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported exchange %q", id)
	}
}

// Register adds or replaces a venue client. Used by tests to install fakes.
func (m *Manager) Register(client Client) {
	m.clients[client.Name()] = client
}

// ExchangeIDs returns the ids of all initialized venues.
func (m *Manager) ExchangeIDs() []string {
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	return ids
}

// TakerFee returns the taker fee rate for a venue as a fraction, falling back
// to the default when the venue is not in the fee table.
func (m *Manager) TakerFee(exchangeID string) float64 {
	if fees, ok := m.fees[exchangeID]; ok && fees.Taker > 0 {
		return fees.Taker
	}
	return defaultTakerFee
}

// GetTicker fetches the current best bid/ask for a symbol on a venue.
func (m *Manager) GetTicker(ctx context.Context, exchangeID, symbol string) (*Ticker, error) {
	client, ok := m.clients[exchangeID]
	if !ok {
		return nil, fmt.Errorf("exchange %q not initialized", exchangeID)
	}
	ticker, err := client.GetTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker for %s on %s: %w", symbol, exchangeID, err)
	}
	return ticker, nil
}

// GetBalances fetches free balances per asset for a venue.
func (m *Manager) GetBalances(ctx context.Context, exchangeID string) (map[string]float64, error) {
	client, ok := m.clients[exchangeID]
	if !ok {
		return nil, fmt.Errorf("exchange %q not initialized", exchangeID)
	}
	balances, err := client.GetBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balances for %s: %w", exchangeID, err)
	}
	return balances, nil
}

// CreateOrder submits an order on a venue. In dry-run mode the order is
// simulated and logged without touching the venue.
func (m *Manager) CreateOrder(ctx context.Context, exchangeID, symbol, side, orderType string, amount, price float64) (*Order, error) {
	client, ok := m.clients[exchangeID]
	if !ok {
		return nil, fmt.Errorf("exchange %q not initialized", exchangeID)
	}

	l := m.logger.With(
		zap.String("exchange", exchangeID),
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.String("type", orderType),
		zap.Float64("amount", amount),
	)

	if m.dryRun {
		l.Info("[DRY_RUN] Simulated order")
		return &Order{
			ID:       "SIMULATED-" + uuid.NewString(),
			Symbol:   symbol,
			Side:     side,
			Type:     orderType,
			Amount:   amount,
			Price:    price,
			Status:   "simulated",
			Exchange: exchangeID,
		}, nil
	}

	order, err := client.CreateOrder(ctx, symbol, side, orderType, amount, price)
	if err != nil {
		l.Error("Order submission failed", zap.Error(err))
		return nil, fmt.Errorf("failed to create %s order on %s: %w", side, exchangeID, err)
	}
	l.Info("Order created", zap.String("order_id", order.ID))
	return order, nil
}

// DryRun reports whether the manager simulates orders.
func (m *Manager) DryRun() bool {
	return m.dryRun
}
