package database

import (
	"errors"
	"fmt"
	"math"

	"arbitrage-bot-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ParameterDefault describes a seed row for the parameters table.
type ParameterDefault struct {
	Value       float64
	Min         float64
	Max         float64
	Description string
}

// DefaultParameters are the tunables exposed to the dashboard. New parameters
// added here appear in the dashboard automatically after the next seeding.
var DefaultParameters = map[string]ParameterDefault{
	"MAX_CAPITAL_PER_TRADE_USD": {
		Value: 500.0, Min: 1.0, Max: 10000.0,
		Description: "Maximum capital per single trade in USD",
	},
	"MAX_DAILY_LOSS_USD": {
		Value: 1000.0, Min: 5.0, Max: 50000.0,
		Description: "Maximum daily loss before circuit breaker triggers",
	},
	"MAX_TRADES_PER_HOUR": {
		Value: 50.0, Min: 1.0, Max: 500.0,
		Description: "Maximum number of trades per hour",
	},
	"MAX_SYMBOL_EXPOSURE_USD": {
		Value: 2000.0, Min: 10.0, Max: 100000.0,
		Description: "Maximum exposure per symbol in USD",
	},
	"MAX_BALANCE_USAGE_PER_EXCHANGE": {
		Value: 0.5, Min: 0.05, Max: 0.9,
		Description: "Maximum fraction of exchange balance to use (0.0-1.0)",
	},
	"MIN_SPREAD_PERCENT": {
		Value: 0.3, Min: 0.05, Max: 5.0,
		Description: "Minimum spread percentage for arbitrage",
	},
	"VOLATILITY_THRESHOLD_PERCENT": {
		Value: 2.0, Min: 0.5, Max: 10.0,
		Description: "Maximum volatility percentage for trading",
	},
	"SAFETY_MARGIN_SPREAD": {
		Value: 0.15, Min: 0.05, Max: 5.0,
		Description: "Additional safety margin for spread calculation",
	},
}

// SeedParameters populates the parameters table with defaults when empty.
func (s *Store) SeedParameters() error {
	var count int64
	if err := s.db.Model(&models.Parameter{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count parameters: %w", err)
	}
	if count > 0 {
		return nil
	}

	for name, def := range DefaultParameters {
		param := models.Parameter{
			Name:        name,
			Value:       def.Value,
			MinValue:    def.Min,
			MaxValue:    def.Max,
			Description: def.Description,
		}
		if err := s.db.Create(&param).Error; err != nil {
			return fmt.Errorf("failed to seed parameter %s: %w", name, err)
		}
	}
	s.logger.Info("Seeded default parameters", zap.Int("count", len(DefaultParameters)))
	return nil
}

// AllParameters returns every parameter row, ordered by name.
func (s *Store) AllParameters() ([]models.Parameter, error) {
	var params []models.Parameter
	if err := s.db.Order("name asc").Find(&params).Error; err != nil {
		return nil, fmt.Errorf("failed to query parameters: %w", err)
	}
	return params, nil
}

// GetParameter returns a single parameter by name, or nil when unknown.
func (s *Store) GetParameter(name string) (*models.Parameter, error) {
	var param models.Parameter
	err := s.db.Where("name = ?", name).First(&param).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get parameter %s: %w", name, err)
	}
	return &param, nil
}

// UpdateParameter sets a parameter value after validating it against the
// stored [min, max] bounds. Rejections carry a descriptive message and leave
// the row untouched.
func (s *Store) UpdateParameter(name string, value float64) error {
	param, err := s.GetParameter(name)
	if err != nil {
		return err
	}
	if param == nil {
		return fmt.Errorf("unknown parameter %q", name)
	}
	if value < param.MinValue || value > param.MaxValue {
		return fmt.Errorf("value %.4f for %s out of allowed range (%.4f - %.4f)",
			value, name, param.MinValue, param.MaxValue)
	}

	if err := s.db.Model(param).Update("value", value).Error; err != nil {
		return fmt.Errorf("failed to update parameter %s: %w", name, err)
	}
	s.logger.Info("Parameter updated",
		zap.String("name", name),
		zap.Float64("value", value),
	)
	return nil
}

// UpdateParameterLimited applies an automated parameter change with the delta
// clamped to changeLimitPercent of the previous value, so the optimizer can
// only move tunables gradually. Returns the value actually stored.
func (s *Store) UpdateParameterLimited(name string, value, changeLimitPercent float64) (float64, error) {
	param, err := s.GetParameter(name)
	if err != nil {
		return 0, err
	}
	if param == nil {
		return 0, fmt.Errorf("unknown parameter %q", name)
	}

	maxChange := math.Abs(param.Value) * (changeLimitPercent / 100)
	clamped := value
	if value > param.Value+maxChange {
		clamped = param.Value + maxChange
	} else if value < param.Value-maxChange {
		clamped = param.Value - maxChange
	}
	if clamped != value {
		s.logger.Warn("Parameter change limited",
			zap.String("name", name),
			zap.Float64("requested", value),
			zap.Float64("capped", clamped),
		)
	}

	if err := s.UpdateParameter(name, clamped); err != nil {
		return 0, err
	}
	return clamped, nil
}
