package database

import (
	"fmt"
	"time"

	"arbitrage-bot-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const heartbeatKey = "last_heartbeat"

// Store wraps the trade and shadow databases behind the storage contract the
// decision loop consumes: append-only trade inserts, windowed aggregates,
// bounded keyed parameters and a heartbeat marker.
type Store struct {
	db       *gorm.DB
	shadowDB *gorm.DB
	logger   *zap.Logger
}

// NewStore creates a Store over the main and shadow databases.
func NewStore(db, shadowDB *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, shadowDB: shadowDB, logger: logger}
}

// Stats is an aggregate over a set of trades.
type Stats struct {
	TotalTrades    int64   `json:"total_trades"`
	TotalPnlUSD    float64 `json:"total_pnl_usd"`
	AvgPnlPerTrade float64 `json:"avg_pnl_per_trade"`
	BestTradePnl   float64 `json:"best_trade_pnl"`
	WorstTradePnl  float64 `json:"worst_trade_pnl"`
	WinRate        float64 `json:"win_rate"`
}

// DailyPnl is one row of the per-day PnL summary.
type DailyPnl struct {
	Date          string  `json:"date"`
	TotalPnl      float64 `json:"total_pnl"`
	TradeCount    int64   `json:"trade_count"`
	WinningTrades int64   `json:"winning_trades"`
	LosingTrades  int64   `json:"losing_trades"`
}

// PairStats is the historical performance aggregate for a symbol or a
// venue pair, consumed by the dynamic position sizer.
type PairStats struct {
	TradeCount     int64   `json:"trade_count"`
	AvgPnlPerTrade float64 `json:"avg_pnl_per_trade"`
	AvgSpread      float64 `json:"avg_spread"`
	BestPnl        float64 `json:"best_pnl"`
	WorstPnl       float64 `json:"worst_pnl"`
	WinRate        float64 `json:"win_rate"`
	AvgSlippage    float64 `json:"avg_slippage"`
}

// InsertTrade appends a completed trade record. The core never updates or
// deletes trade rows.
func (s *Store) InsertTrade(rec *models.TradeRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// RecentTrades returns the most recent trades, newest first.
func (s *Store) RecentTrades(limit int) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	err := s.db.Order("timestamp desc").Limit(limit).Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}
	return trades, nil
}

type statsRow struct {
	TotalTrades   int64
	TotalPnl      float64
	AvgPnl        float64
	BestPnl       float64
	WorstPnl      float64
	WinningTrades int64
}

// OverallStats returns all-time aggregate trading statistics.
func (s *Store) OverallStats() (Stats, error) {
	var row statsRow
	err := s.db.Model(&models.TradeRecord{}).
		Select(`COUNT(*) as total_trades,
			COALESCE(SUM(pnl_usd), 0) as total_pnl,
			COALESCE(AVG(pnl_usd), 0) as avg_pnl,
			COALESCE(MAX(pnl_usd), 0) as best_pnl,
			COALESCE(MIN(pnl_usd), 0) as worst_pnl,
			COALESCE(SUM(CASE WHEN pnl_usd > 0 THEN 1 ELSE 0 END), 0) as winning_trades`).
		Scan(&row).Error
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query overall stats: %w", err)
	}
	return statsFromRow(row), nil
}

// StatsSince returns aggregate statistics for trades at or after the cutoff.
func (s *Store) StatsSince(cutoff time.Time) (Stats, error) {
	var row statsRow
	err := s.db.Model(&models.TradeRecord{}).
		Select(`COUNT(*) as total_trades,
			COALESCE(SUM(pnl_usd), 0) as total_pnl,
			COALESCE(AVG(pnl_usd), 0) as avg_pnl,
			COALESCE(MAX(pnl_usd), 0) as best_pnl,
			COALESCE(MIN(pnl_usd), 0) as worst_pnl,
			COALESCE(SUM(CASE WHEN pnl_usd > 0 THEN 1 ELSE 0 END), 0) as winning_trades`).
		Where("timestamp >= ?", cutoff).
		Scan(&row).Error
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query stats since %s: %w", cutoff, err)
	}
	return statsFromRow(row), nil
}

func statsFromRow(row statsRow) Stats {
	stats := Stats{
		TotalTrades:    row.TotalTrades,
		TotalPnlUSD:    row.TotalPnl,
		AvgPnlPerTrade: row.AvgPnl,
		BestTradePnl:   row.BestPnl,
		WorstTradePnl:  row.WorstPnl,
	}
	if row.TotalTrades > 0 {
		stats.WinRate = float64(row.WinningTrades) / float64(row.TotalTrades) * 100
	}
	return stats
}

// DailyPnlSummary returns a per-day PnL breakdown for the last N days.
func (s *Store) DailyPnlSummary(days int) ([]DailyPnl, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	var summary []DailyPnl
	err := s.db.Model(&models.TradeRecord{}).
		Select(`DATE(timestamp) as date,
			COALESCE(SUM(pnl_usd), 0) as total_pnl,
			COUNT(*) as trade_count,
			COALESCE(SUM(CASE WHEN pnl_usd > 0 THEN 1 ELSE 0 END), 0) as winning_trades,
			COALESCE(SUM(CASE WHEN pnl_usd <= 0 THEN 1 ELSE 0 END), 0) as losing_trades`).
		Where("DATE(timestamp) >= ?", cutoff).
		Group("DATE(timestamp)").
		Order("DATE(timestamp) asc").
		Scan(&summary).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query daily pnl summary: %w", err)
	}
	return summary, nil
}

// SymbolExposureToday returns today's cumulative amount*buy_price for a symbol.
func (s *Store) SymbolExposureToday(symbol string) (float64, error) {
	today := time.Now().UTC().Format("2006-01-02")

	var exposure float64
	err := s.db.Model(&models.TradeRecord{}).
		Select("COALESCE(SUM(amount * buy_price), 0)").
		Where("symbol = ? AND DATE(timestamp) = ?", symbol, today).
		Scan(&exposure).Error
	if err != nil {
		return 0, fmt.Errorf("failed to query exposure for %s: %w", symbol, err)
	}
	return exposure, nil
}

type pairStatsRow struct {
	TradeCount int64
	AvgPnl     float64
	AvgSpread  float64
	BestPnl    float64
	WorstPnl   float64
	Wins       int64
}

// PairPerformance computes performance statistics for a symbol over a
// trailing number of days. Win rate defaults to 0.5 when no history exists so
// that routes without data are sized neutrally.
func (s *Store) PairPerformance(symbol string, days int) (PairStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var row pairStatsRow
	err := s.db.Model(&models.TradeRecord{}).
		Select(`COUNT(*) as trade_count,
			COALESCE(AVG(pnl_usd), 0) as avg_pnl,
			COALESCE(AVG(net_spread_percent), 0) as avg_spread,
			COALESCE(MAX(pnl_usd), 0) as best_pnl,
			COALESCE(MIN(pnl_usd), 0) as worst_pnl,
			COALESCE(SUM(CASE WHEN pnl_usd > 0 THEN 1 ELSE 0 END), 0) as wins`).
		Where("symbol = ? AND timestamp >= ?", symbol, cutoff).
		Scan(&row).Error
	if err != nil {
		return PairStats{}, fmt.Errorf("failed to query pair performance for %s: %w", symbol, err)
	}
	return pairStatsFromRow(row), nil
}

// VenuePairPerformance computes performance statistics for a buy/sell venue
// route over a trailing number of days.
func (s *Store) VenuePairPerformance(buyExchange, sellExchange string, days int) (PairStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var row pairStatsRow
	err := s.db.Model(&models.TradeRecord{}).
		Select(`COUNT(*) as trade_count,
			COALESCE(AVG(pnl_usd), 0) as avg_pnl,
			COALESCE(AVG(net_spread_percent), 0) as avg_spread,
			COALESCE(MAX(pnl_usd), 0) as best_pnl,
			COALESCE(MIN(pnl_usd), 0) as worst_pnl,
			COALESCE(SUM(CASE WHEN pnl_usd > 0 THEN 1 ELSE 0 END), 0) as wins`).
		Where("buy_exchange = ? AND sell_exchange = ? AND timestamp >= ?", buyExchange, sellExchange, cutoff).
		Scan(&row).Error
	if err != nil {
		return PairStats{}, fmt.Errorf("failed to query venue pair performance: %w", err)
	}
	return pairStatsFromRow(row), nil
}

func pairStatsFromRow(row pairStatsRow) PairStats {
	winRate := 0.5
	if row.TradeCount > 0 {
		winRate = float64(row.Wins) / float64(row.TradeCount)
	}
	return PairStats{
		TradeCount:     row.TradeCount,
		AvgPnlPerTrade: row.AvgPnl,
		AvgSpread:      row.AvgSpread,
		BestPnl:        row.BestPnl,
		WorstPnl:       row.WorstPnl,
		WinRate:        winRate,
	}
}

// SavePerformanceScore persists a computed route score.
func (s *Store) SavePerformanceScore(score *models.PerformanceScore) error {
	if err := s.db.Create(score).Error; err != nil {
		return fmt.Errorf("failed to save performance score: %w", err)
	}
	return nil
}

// InsertShadowTrade persists a hypothetical trade to the shadow store.
func (s *Store) InsertShadowTrade(rec *models.ShadowTrade) error {
	if err := s.shadowDB.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert shadow trade: %w", err)
	}
	return nil
}

// RecentShadowTrades returns the most recent shadow trades, newest first.
func (s *Store) RecentShadowTrades(limit int) ([]models.ShadowTrade, error) {
	var trades []models.ShadowTrade
	err := s.shadowDB.Order("timestamp desc").Limit(limit).Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent shadow trades: %w", err)
	}
	return trades, nil
}

// ShadowStatsSince returns aggregate statistics over the shadow store.
func (s *Store) ShadowStatsSince(cutoff time.Time) (Stats, error) {
	var row statsRow
	err := s.shadowDB.Model(&models.ShadowTrade{}).
		Select(`COUNT(*) as total_trades,
			COALESCE(SUM(pnl_usd), 0) as total_pnl,
			COALESCE(AVG(pnl_usd), 0) as avg_pnl,
			COALESCE(MAX(pnl_usd), 0) as best_pnl,
			COALESCE(MIN(pnl_usd), 0) as worst_pnl,
			COALESCE(SUM(CASE WHEN pnl_usd > 0 THEN 1 ELSE 0 END), 0) as winning_trades`).
		Where("timestamp >= ?", cutoff).
		Scan(&row).Error
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query shadow stats: %w", err)
	}
	return statsFromRow(row), nil
}

// SetHeartbeat upserts the liveness marker read by external monitoring.
func (s *Store) SetHeartbeat(ts time.Time) error {
	state := models.SystemState{Key: heartbeatKey, Value: ts.UTC().Format(time.RFC3339)}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&state).Error
	if err != nil {
		return fmt.Errorf("failed to set heartbeat: %w", err)
	}
	return nil
}

// GetHeartbeat returns the last recorded heartbeat, or the zero time when no
// heartbeat has been written yet.
func (s *Store) GetHeartbeat() (time.Time, error) {
	var state models.SystemState
	err := s.db.Where("key = ?", heartbeatKey).First(&state).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get heartbeat: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, state.Value)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed heartbeat value %q: %w", state.Value, err)
	}
	return ts, nil
}
