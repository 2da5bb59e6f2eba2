package models

import "time"

// User represents an account that records meals.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string `gorm:"type:varchar(50);not null;uniqueIndex"` // Unique login name (lower case).
	Password string `gorm:"type:text;not null"`                    // Hashed password.

	RoleID uint64 `gorm:"not null;index"`    // Assigned role ID.
	Role   *Role  `gorm:"foreignKey:RoleID"` // Assigned role.

	DailyCalories int `gorm:"not null;default:0"` // Daily calorie budget.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
