package models

import "time"

// Meal is a single calorie entry owned by a user.
type Meal struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64    `gorm:"not null;index:idx_meals_user_date,priority:1"`           // Owning user ID.
	Date   time.Time `gorm:"type:date;not null;index:idx_meals_user_date,priority:2"` // Calendar day (midnight UTC).
	Time   time.Time `gorm:"not null"`                                                // Meal time on Date's day.

	Calories    int     `gorm:"not null;default:0"`  // Calorie count.
	Description *string `gorm:"type:varchar(255)"`   // Optional free text.
	WithinLimit bool    `gorm:"not null"`            // Day total below the user's budget.
}
