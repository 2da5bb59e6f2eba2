package models

import (
	"time"

	"gorm.io/datatypes"
)

// CalorieEstimate caches calorie lookups for free-text meal descriptions.
type CalorieEstimate struct {
	Query string `gorm:"type:varchar(255);not null;primaryKey"` // Normalized description.

	Calories int            `gorm:"not null;default:0"`               // Rounded calorie estimate.
	Foods    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Per-food breakdown returned by the provider.

	LastSeenAt time.Time `gorm:"not null;index"`          // Last lookup timestamp.
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime"` // Update timestamp.
}
