package models

import "gorm.io/gorm"

// Parameter is a runtime tunable editable from the dashboard. Updates are
// validated against the inclusive [MinValue, MaxValue] range before saving.
type Parameter struct {
	gorm.Model
	Name        string  `json:"name" gorm:"uniqueIndex;not null"`
	Value       float64 `json:"value" gorm:"not null"`
	MinValue    float64 `json:"min_value" gorm:"not null"`
	MaxValue    float64 `json:"max_value" gorm:"not null"`
	Description string  `json:"description"`
}
