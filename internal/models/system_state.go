package models

import "gorm.io/gorm"

// SystemState is a keyed liveness/status marker read by external monitoring.
// The bot upserts a "last_heartbeat" row on a fixed interval.
type SystemState struct {
	gorm.Model
	Key   string `json:"key" gorm:"uniqueIndex;not null"`
	Value string `json:"value" gorm:"not null"`
}
